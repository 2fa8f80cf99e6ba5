//go:build linux || darwin

package tcp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sagernet/sing-cio/common/channel"
	M "github.com/sagernet/sing-cio/common/metadata"
	N "github.com/sagernet/sing-cio/common/network"
	"github.com/sagernet/sing-cio/common/selector"

	"golang.org/x/sys/unix"
)

var _ N.Socket = (*Socket)(nil)

// Socket is a connected non-blocking TCP socket driven by a selector.
// The descriptor is closed once both attached directions are closed; a
// direction that was never attached counts as closed.
type Socket struct {
	manager    *selector.Manager
	selectable *selector.Selectable
	options    Options
	localAddr  M.Socksaddr
	remoteAddr M.Socksaddr

	// fdAccess guards fd against release during a syscall.
	fdAccess sync.RWMutex
	fd       int

	access   sync.Mutex
	reader   *readAdapter
	writer   *writeAdapter
	released bool
	cause    error
	done     chan struct{}
}

func newSocket(manager *selector.Manager, selectable *selector.Selectable, local M.Socksaddr, remote M.Socksaddr, options Options) *Socket {
	return &Socket{
		manager:    manager,
		selectable: selectable,
		options:    options,
		localAddr:  local,
		remoteAddr: remote,
		fd:         selectable.FD(),
		done:       make(chan struct{}),
	}
}

func (s *Socket) AttachForReading() channel.ReadChannel {
	s.access.Lock()
	defer s.access.Unlock()
	if s.reader == nil {
		s.reader = newReadAdapter(s)
		if s.released {
			s.reader.cancelled(s.closedCause())
		}
	}
	return s.reader
}

func (s *Socket) AttachForWriting() channel.WriteChannel {
	s.access.Lock()
	defer s.access.Unlock()
	if s.writer == nil {
		s.writer = newWriteAdapter(s)
		if s.released {
			s.writer.cancelled(s.closedCause())
		}
	}
	return s.writer
}

func (s *Socket) closedCause() error {
	if s.cause != nil {
		return s.cause
	}
	return net.ErrClosed
}

func (s *Socket) LocalAddr() M.Socksaddr {
	return s.localAddr
}

func (s *Socket) RemoteAddr() M.Socksaddr {
	return s.remoteAddr
}

func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) Err() error {
	select {
	case <-s.done:
	default:
		return nil
	}
	s.access.Lock()
	defer s.access.Unlock()
	return s.cause
}

// Close releases the socket at once, dropping bytes staged but not yet
// flushed. Use FlushAndClose on the write channel for a graceful shutdown.
func (s *Socket) Close() error {
	s.cancel(net.ErrClosed, false)
	return nil
}

func (s *Socket) Cancel(cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	s.cancel(cause, true)
}

func (s *Socket) cancel(cause error, record bool) {
	s.access.Lock()
	if record && s.cause == nil && !s.released {
		s.cause = cause
	}
	reader, writer := s.reader, s.writer
	s.access.Unlock()
	if reader != nil {
		reader.Cancel(cause)
	}
	if writer != nil {
		writer.Cancel(cause)
	}
	s.checkClosed(nil)
}

// checkClosed is the close notification of both adapters.
func (s *Socket) checkClosed(cause error) {
	s.access.Lock()
	if s.released {
		s.access.Unlock()
		return
	}
	if cause != nil && s.cause == nil {
		s.cause = cause
	}
	readClosed := s.reader == nil || s.reader.isClosed()
	writeClosed := s.writer == nil || s.writer.isClosed()
	if !readClosed || !writeClosed {
		s.access.Unlock()
		return
	}
	s.released = true
	s.access.Unlock()
	s.release()
}

func (s *Socket) release() {
	s.selectable.Close()
	s.manager.NotifyClosed(s.selectable)
	s.fdAccess.Lock()
	if s.fd != -1 {
		unix.Close(s.fd)
		s.fd = -1
	}
	s.fdAccess.Unlock()
	close(s.done)
}

// syscall runs f with the descriptor, failing with net.ErrClosed once the
// socket is released.
func (s *Socket) syscall(f func(fd int) (int, error)) (int, error) {
	s.fdAccess.RLock()
	defer s.fdAccess.RUnlock()
	if s.fd == -1 {
		return 0, net.ErrClosed
	}
	return f(s.fd)
}

// wait selects interest under the adapter close context and timeout. It
// reports whether the timeout fired.
func (s *Socket) wait(ctx context.Context, closed context.Context, interest selector.Interest, timeout time.Duration) (bool, error) {
	selectCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(closed, cancel)
	defer stop()
	var timeoutCtx context.Context = selectCtx
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		timeoutCtx, cancelTimeout = context.WithTimeout(selectCtx, timeout)
		defer cancelTimeout()
	}
	s.selectable.SetInterest(interest, true)
	err := s.manager.Select(timeoutCtx, s.selectable, interest)
	if err == nil {
		return false, nil
	}
	if timeout > 0 && ctx.Err() == nil && closed.Err() == nil && timeoutCtx.Err() == context.DeadlineExceeded {
		return true, err
	}
	return false, err
}
