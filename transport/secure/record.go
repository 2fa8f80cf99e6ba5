package secure

import (
	"context"
	"crypto/cipher"
	"encoding/binary"
	"io"
	"strconv"

	"github.com/sagernet/sing-cio/common/channel"
	E "github.com/sagernet/sing-cio/common/exceptions"

	"golang.org/x/crypto/chacha20poly1305"
)

type RecordType uint8

const (
	RecordChangeCipherSpec RecordType = 20
	RecordAlert            RecordType = 21
	RecordHandshake        RecordType = 22
	RecordApplicationData  RecordType = 23
)

func (t RecordType) String() string {
	switch t {
	case RecordChangeCipherSpec:
		return "change_cipher_spec"
	case RecordAlert:
		return "alert"
	case RecordHandshake:
		return "handshake"
	case RecordApplicationData:
		return "application_data"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

const (
	recordVersion    = 0x0303
	recordHeaderSize = 5
	MaxPayloadSize   = 16 * 1024
)

type Record struct {
	Type    RecordType
	Payload []byte
}

type RecordReader interface {
	// ReadRecord returns io.EOF once the peer ends the stream between
	// records.
	ReadRecord(ctx context.Context) (Record, error)
}

type RecordWriter interface {
	WriteRecord(ctx context.Context, record Record) error
	CloseWrite(ctx context.Context) error
}

var (
	_ RecordReader = (*RecordConn)(nil)
	_ RecordWriter = (*RecordConn)(nil)
)

// RecordConn frames records over a pair of byte channels. Once keys are
// set every payload is sealed with its header as additional data.
type RecordConn struct {
	input  channel.ReadChannel
	output channel.WriteChannel

	readCipher  cipher.AEAD
	readNonce   []byte
	writeCipher cipher.AEAD
	writeNonce  []byte
}

func NewRecordConn(input channel.ReadChannel, output channel.WriteChannel) *RecordConn {
	return &RecordConn{
		input:  input,
		output: output,
	}
}

func (c *RecordConn) SetKeys(readKey []byte, writeKey []byte) error {
	readCipher, err := chacha20poly1305.New(readKey)
	if err != nil {
		return E.Cause(err, "create read cipher")
	}
	writeCipher, err := chacha20poly1305.New(writeKey)
	if err != nil {
		return E.Cause(err, "create write cipher")
	}
	c.readCipher = readCipher
	c.readNonce = make([]byte, readCipher.NonceSize())
	c.writeCipher = writeCipher
	c.writeNonce = make([]byte, writeCipher.NonceSize())
	return nil
}

func (c *RecordConn) ReadRecord(ctx context.Context) (Record, error) {
	var header [recordHeaderSize]byte
	err := channel.ReadFully(ctx, c.input, header[:])
	if err != nil {
		return Record{}, err
	}
	if binary.BigEndian.Uint16(header[1:3]) != recordVersion {
		return Record{}, E.Extend(ErrProtocol, "bad record version")
	}
	length := int(binary.BigEndian.Uint16(header[3:5]))
	maxLength := MaxPayloadSize
	if c.readCipher != nil {
		maxLength += c.readCipher.Overhead()
	}
	if length > maxLength {
		return Record{}, E.Extend(ErrProtocol, "record too large: ", length)
	}
	payload := make([]byte, length)
	err = channel.ReadFully(ctx, c.input, payload)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, err
	}
	if c.readCipher != nil {
		payload, err = c.readCipher.Open(payload[:0], c.readNonce, payload, header[:])
		if err != nil {
			return Record{}, E.Cause(err, "open record")
		}
		increaseNonce(c.readNonce)
	}
	return Record{Type: RecordType(header[0]), Payload: payload}, nil
}

func (c *RecordConn) WriteRecord(ctx context.Context, record Record) error {
	if len(record.Payload) > MaxPayloadSize {
		return E.New("record too large: ", len(record.Payload))
	}
	length := len(record.Payload)
	if c.writeCipher != nil {
		length += c.writeCipher.Overhead()
	}
	buffer, err := c.output.WriteBuffer()
	if err != nil {
		return err
	}
	var header [recordHeaderSize]byte
	header[0] = byte(record.Type)
	binary.BigEndian.PutUint16(header[1:3], recordVersion)
	binary.BigEndian.PutUint16(header[3:5], uint16(length))
	buffer.Write(header[:])
	if c.writeCipher != nil {
		sealed := c.writeCipher.Seal(make([]byte, 0, length), c.writeNonce, record.Payload, header[:])
		increaseNonce(c.writeNonce)
		buffer.Write(sealed)
	} else {
		buffer.Write(record.Payload)
	}
	return c.output.Flush(ctx)
}

func (c *RecordConn) CloseWrite(ctx context.Context) error {
	return c.output.FlushAndClose(ctx)
}

func (c *RecordConn) Cancel(cause error) {
	c.input.Cancel(cause)
	c.output.Cancel(cause)
}

func increaseNonce(nonce []byte) {
	for i := range nonce {
		nonce[i]++
		if nonce[i] != 0 {
			return
		}
	}
}
