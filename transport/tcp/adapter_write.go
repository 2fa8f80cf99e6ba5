//go:build linux || darwin

package tcp

import (
	"context"
	"sync/atomic"

	"github.com/sagernet/sing-cio/common/buf"
	"github.com/sagernet/sing-cio/common/channel"
	E "github.com/sagernet/sing-cio/common/exceptions"
	"github.com/sagernet/sing-cio/common/selector"

	"golang.org/x/sys/unix"
)

var _ channel.WriteChannel = (*writeAdapter)(nil)

// writeAdapter stages bytes locally and writes them on Flush, selecting
// WRITE whenever the socket accepts nothing.
type writeAdapter struct {
	socket       *Socket
	buffer       buf.Chain
	closed       atomic.Pointer[closeToken]
	closedCtx    context.Context
	cancelClosed context.CancelFunc
}

func newWriteAdapter(socket *Socket) *writeAdapter {
	adapter := &writeAdapter{socket: socket}
	adapter.closedCtx, adapter.cancelClosed = context.WithCancel(context.Background())
	return adapter
}

func (w *writeAdapter) WriteBuffer() (*buf.Chain, error) {
	token := w.closed.Load()
	if token != nil {
		if token.cause != nil {
			return nil, token.cause
		}
		return nil, channel.ErrClosedForWrite
	}
	return &w.buffer, nil
}

func (w *writeAdapter) Flush(ctx context.Context) error {
	if cause := w.ClosedCause(); cause != nil {
		return cause
	}
	for !w.buffer.IsEmpty() {
		head := w.buffer.Head()
		n, err := w.socket.syscall(func(fd int) (int, error) {
			return unix.Write(fd, head)
		})
		switch {
		case n > 0:
			w.buffer.Discard(n)
		case err == nil, err == unix.EINTR:
		case isRetryable(err):
			timedOut, err := w.socket.wait(ctx, w.closedCtx, selector.InterestWrite, w.socket.options.WriteTimeout)
			if timedOut {
				w.Cancel(ErrWriteTimeout)
				return w.ClosedCause()
			}
			if err != nil {
				if cause := w.ClosedCause(); cause != nil {
					return cause
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.Cancel(err)
				return w.ClosedCause()
			}
		default:
			w.Cancel(E.Cause(err, "write"))
			return w.ClosedCause()
		}
	}
	return nil
}

// FlushAndClose writes every staged byte, then half-closes the socket.
// A failed flush cancels the channel.
func (w *writeAdapter) FlushAndClose(ctx context.Context) error {
	if w.closed.Load() != nil {
		return w.ClosedCause()
	}
	err := w.Flush(ctx)
	if err != nil {
		w.Cancel(err)
		return err
	}
	if !w.closed.CompareAndSwap(nil, &closeToken{}) {
		return w.ClosedCause()
	}
	w.cancelClosed()
	w.socket.selectable.SetInterest(selector.InterestWrite, false)
	_, err = w.socket.syscall(func(fd int) (int, error) {
		return 0, unix.Shutdown(fd, unix.SHUT_WR)
	})
	if err != nil && err != unix.ENOTCONN {
		err = E.Cause(err, "shutdown write")
	} else {
		err = nil
	}
	w.socket.checkClosed(nil)
	return err
}

// Close blocks until staged bytes are written, bounded by WriteTimeout.
func (w *writeAdapter) Close() error {
	return w.FlushAndClose(context.Background())
}

func (w *writeAdapter) CloseWithError(cause error) error {
	if cause == nil {
		return w.Close()
	}
	w.Cancel(cause)
	return nil
}

func (w *writeAdapter) Cancel(cause error) {
	if !w.cancelled(cause) {
		return
	}
	w.socket.checkClosed(w.ClosedCause())
}

func (w *writeAdapter) cancelled(cause error) bool {
	if !w.closed.CompareAndSwap(nil, &closeToken{channel.Cancelled(cause)}) {
		return false
	}
	w.cancelClosed()
	w.socket.selectable.SetInterest(selector.InterestWrite, false)
	return true
}

func (w *writeAdapter) IsClosedForWrite() bool {
	return w.closed.Load() != nil
}

func (w *writeAdapter) isClosed() bool {
	return w.closed.Load() != nil
}

func (w *writeAdapter) ClosedCause() error {
	token := w.closed.Load()
	if token == nil {
		return nil
	}
	return token.cause
}
