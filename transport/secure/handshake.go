package secure

import (
	"context"
	"crypto/rand"
	"io"

	E "github.com/sagernet/sing-cio/common/exceptions"
	"github.com/sagernet/sing-cio/common/log"
	N "github.com/sagernet/sing-cio/common/network"
	"github.com/sagernet/sing-cio/common/replay"

	"github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

const (
	SaltSize = 32
	KeySize  = 32

	subkeyContext = "sing-cio 2024-09 session subkey"
)

const (
	alertProtocol byte = 1
	alertReplayed byte = 2
)

var (
	ErrProtocol   = E.New("secure protocol error")
	ErrReplayed   = E.New("replayed salt")
	ErrMissingPSK = E.New("missing psk")
)

type Config struct {
	PSK []byte
	// ReplayFilter rejects client salts already seen. Only servers use it.
	ReplayFilter  replay.Filter
	HighWaterMark int
	Logger        logrus.FieldLogger
	// Rand defaults to crypto/rand.
	Rand io.Reader
}

func (c Config) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.NewLogger("secure")
}

func (c Config) random() io.Reader {
	if c.Rand != nil {
		return c.Rand
	}
	return rand.Reader
}

func SessionKey(psk []byte, salt []byte) []byte {
	material := make([]byte, len(psk)+len(salt))
	copy(material, psk)
	copy(material[len(psk):], salt)
	key := make([]byte, KeySize)
	blake3.DeriveKey(key, subkeyContext, material)
	return key
}

// Client runs the client handshake over socket. The socket is cancelled if
// the handshake fails.
func Client(ctx context.Context, socket N.Socket, config Config) (*Session, error) {
	records, err := clientHandshake(ctx, socket, config)
	if err != nil {
		socket.Cancel(err)
		return nil, err
	}
	config.logger().Debug("handshake completed with ", socket.RemoteAddr())
	return newSession(ctx, socket, records, config), nil
}

func clientHandshake(ctx context.Context, socket N.Socket, config Config) (*RecordConn, error) {
	if len(config.PSK) == 0 {
		return nil, ErrMissingPSK
	}
	records := NewRecordConn(socket.AttachForReading(), socket.AttachForWriting())
	clientSalt := make([]byte, SaltSize)
	_, err := io.ReadFull(config.random(), clientSalt)
	if err != nil {
		return nil, E.Cause(err, "generate salt")
	}
	err = records.WriteRecord(ctx, Record{Type: RecordHandshake, Payload: clientSalt})
	if err != nil {
		return nil, E.Cause(err, "write client hello")
	}
	response, err := records.ReadRecord(ctx)
	if err != nil {
		return nil, E.Cause(err, "read server hello")
	}
	switch response.Type {
	case RecordHandshake:
	case RecordAlert:
		return nil, alertError(response.Payload)
	default:
		return nil, E.Extend(ErrProtocol, "unexpected ", response.Type, " record in handshake")
	}
	if len(response.Payload) != SaltSize {
		return nil, E.Extend(ErrProtocol, "bad server salt length")
	}
	err = records.SetKeys(SessionKey(config.PSK, response.Payload), SessionKey(config.PSK, clientSalt))
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Server runs the server handshake over socket. A replayed client salt is
// answered with an alert and fails with ErrReplayed.
func Server(ctx context.Context, socket N.Socket, config Config) (*Session, error) {
	records, err := serverHandshake(ctx, socket, config)
	if err != nil {
		socket.Cancel(err)
		return nil, err
	}
	config.logger().Debug("handshake completed with ", socket.RemoteAddr())
	return newSession(ctx, socket, records, config), nil
}

func serverHandshake(ctx context.Context, socket N.Socket, config Config) (*RecordConn, error) {
	if len(config.PSK) == 0 {
		return nil, ErrMissingPSK
	}
	records := NewRecordConn(socket.AttachForReading(), socket.AttachForWriting())
	request, err := records.ReadRecord(ctx)
	if err != nil {
		return nil, E.Cause(err, "read client hello")
	}
	if request.Type != RecordHandshake || len(request.Payload) != SaltSize {
		sendAlert(ctx, records, alertProtocol)
		return nil, E.Extend(ErrProtocol, "bad client hello")
	}
	clientSalt := request.Payload
	if config.ReplayFilter != nil && !config.ReplayFilter.Check(clientSalt) {
		sendAlert(ctx, records, alertReplayed)
		config.logger().Warn("replayed salt from ", socket.RemoteAddr())
		return nil, ErrReplayed
	}
	serverSalt := make([]byte, SaltSize)
	_, err = io.ReadFull(config.random(), serverSalt)
	if err != nil {
		return nil, E.Cause(err, "generate salt")
	}
	err = records.WriteRecord(ctx, Record{Type: RecordHandshake, Payload: serverSalt})
	if err != nil {
		return nil, E.Cause(err, "write server hello")
	}
	err = records.SetKeys(SessionKey(config.PSK, clientSalt), SessionKey(config.PSK, serverSalt))
	if err != nil {
		return nil, err
	}
	return records, nil
}

func sendAlert(ctx context.Context, records *RecordConn, code byte) {
	err := records.WriteRecord(ctx, Record{Type: RecordAlert, Payload: []byte{code}})
	if err == nil {
		_ = records.CloseWrite(ctx)
	}
}

func alertError(payload []byte) error {
	if len(payload) == 1 && payload[0] == alertReplayed {
		return ErrReplayed
	}
	return E.Extend(ErrProtocol, "handshake alert")
}
