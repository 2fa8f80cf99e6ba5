package secure

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/sagernet/sing-cio/common/channel"
	E "github.com/sagernet/sing-cio/common/exceptions"
	M "github.com/sagernet/sing-cio/common/metadata"
	N "github.com/sagernet/sing-cio/common/network"
	"github.com/sagernet/sing-cio/common/task"

	"github.com/sirupsen/logrus"
)

var _ N.Socket = (*Session)(nil)

// Session exposes an established record channel as two plain byte
// streams. An inbound pump unwraps application data into the read side
// and an outbound pump wraps the write side into records.
type Session struct {
	socket  N.Socket
	records *RecordConn
	logger  logrus.FieldLogger

	input  *sessionReader
	output *sessionWriter

	ctx    context.Context
	cancel context.CancelFunc

	access sync.Mutex
	cause  error
	err    error
	done   chan struct{}
}

func newSession(ctx context.Context, socket N.Socket, records *RecordConn, config Config) *Session {
	var options []channel.Option
	if config.HighWaterMark > 0 {
		options = append(options, channel.WithHighWaterMark(config.HighWaterMark))
	}
	session := &Session{
		socket:  socket,
		records: records,
		logger:  config.logger(),
		done:    make(chan struct{}),
	}
	session.input = &sessionReader{channel.New(options...), session}
	session.output = &sessionWriter{channel.New(options...), session}
	session.ctx, session.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go session.run()
	return session
}

func (s *Session) run() {
	var group task.Group
	group.Append("inbound", s.inbound)
	group.Append("outbound", s.outbound)
	err := group.Run(s.ctx)
	s.access.Lock()
	if s.cause != nil {
		err = s.cause
	} else if E.IsClosedOrCanceled(err) {
		err = nil
	}
	s.err = err
	s.access.Unlock()
	if err != nil {
		s.logger.Debug("session with ", s.socket.RemoteAddr(), " closed: ", err)
		s.teardown(err)
	} else {
		s.teardown(net.ErrClosed)
	}
	s.socket.Close()
	close(s.done)
}

func (s *Session) teardown(cause error) {
	s.cancel()
	s.records.Cancel(cause)
	s.input.ByteChannel.Cancel(cause)
	s.output.ByteChannel.Cancel(cause)
}

// inbound copies application data records into the read side until the
// peer ends the stream.
func (s *Session) inbound(ctx context.Context) error {
	for {
		record, err := s.records.ReadRecord(ctx)
		if err == io.EOF {
			return s.input.ByteChannel.Close()
		}
		if err != nil {
			s.input.ByteChannel.Cancel(err)
			return err
		}
		if record.Type != RecordApplicationData {
			err = E.Extend(ErrProtocol, "unexpected ", record.Type, " record")
			s.input.ByteChannel.Cancel(err)
			return err
		}
		err = channel.WriteFully(s.input.ByteChannel, record.Payload)
		if err == nil {
			err = s.input.ByteChannel.Flush(ctx)
		}
		if err != nil {
			return err
		}
	}
}

// outbound wraps whatever the write side offers into application data
// records until it ends.
func (s *Session) outbound(ctx context.Context) error {
	scratch := make([]byte, MaxPayloadSize)
	for {
		n, err := channel.ReadAvailable(ctx, s.output.ByteChannel, scratch)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		err = s.records.WriteRecord(ctx, Record{Type: RecordApplicationData, Payload: scratch[:n]})
		if err != nil {
			if E.IsMulti(err, channel.ErrClosedForWrite) || E.IsClosed(err) {
				return nil
			}
			return err
		}
	}
	err := s.records.CloseWrite(ctx)
	if err != nil && (E.IsMulti(err, channel.ErrClosedForWrite) || E.IsClosed(err)) {
		return nil
	}
	return err
}

func (s *Session) AttachForReading() channel.ReadChannel {
	return s.input
}

func (s *Session) AttachForWriting() channel.WriteChannel {
	return s.output
}

func (s *Session) LocalAddr() M.Socksaddr {
	return s.socket.LocalAddr()
}

func (s *Session) RemoteAddr() M.Socksaddr {
	return s.socket.RemoteAddr()
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Err() error {
	select {
	case <-s.done:
	default:
		return nil
	}
	s.access.Lock()
	defer s.access.Unlock()
	return s.err
}

// Close tears the session down without waiting for staged bytes.
func (s *Session) Close() error {
	s.teardown(net.ErrClosed)
	return nil
}

func (s *Session) Cancel(cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	s.access.Lock()
	if s.cause == nil {
		s.cause = cause
	}
	s.access.Unlock()
	s.teardown(cause)
}

// sessionReader cancels the whole session when the application cancels
// its read side.
type sessionReader struct {
	*channel.ByteChannel
	session *Session
}

func (r *sessionReader) Cancel(cause error) {
	r.session.Cancel(cause)
}

// sessionWriter cancels the whole session when the application cancels
// its write side. A graceful close only ends the outbound direction.
type sessionWriter struct {
	*channel.ByteChannel
	session *Session
}

func (w *sessionWriter) Cancel(cause error) {
	w.session.Cancel(cause)
}

func (w *sessionWriter) CloseWithError(cause error) error {
	if cause == nil {
		return w.ByteChannel.Close()
	}
	w.session.Cancel(cause)
	return nil
}
