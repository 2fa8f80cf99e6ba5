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

type closeToken struct {
	cause error
}

var _ channel.ReadChannel = (*readAdapter)(nil)

// readAdapter reads from the socket straight into its buffer, selecting
// READ whenever the socket has nothing to give.
type readAdapter struct {
	socket       *Socket
	buffer       buf.Chain
	closed       atomic.Pointer[closeToken]
	closedCtx    context.Context
	cancelClosed context.CancelFunc
}

func newReadAdapter(socket *Socket) *readAdapter {
	adapter := &readAdapter{socket: socket}
	adapter.closedCtx, adapter.cancelClosed = context.WithCancel(context.Background())
	socket.selectable.SetInterest(selector.InterestRead, true)
	return adapter
}

func (r *readAdapter) AwaitContent(ctx context.Context, min int) (bool, error) {
	if cause := r.ClosedCause(); cause != nil {
		return false, cause
	}
	for r.buffer.Len() < min && r.closed.Load() == nil {
		free := r.buffer.FreeBytes()
		n, err := r.socket.syscall(func(fd int) (int, error) {
			return unix.Read(fd, free)
		})
		switch {
		case n > 0:
			r.buffer.Commit(n)
		case err == nil:
			r.closeFromNetwork()
		case err == unix.EINTR:
		case isRetryable(err):
			timedOut, err := r.socket.wait(ctx, r.closedCtx, selector.InterestRead, r.socket.options.ReadTimeout)
			if timedOut {
				r.Cancel(ErrReadTimeout)
				return false, r.ClosedCause()
			}
			if err != nil {
				if cause := r.ClosedCause(); cause != nil {
					return false, cause
				}
				if ctx.Err() != nil {
					return false, ctx.Err()
				}
				r.Cancel(err)
				return false, r.ClosedCause()
			}
		default:
			r.Cancel(E.Cause(err, "read"))
			return false, r.ClosedCause()
		}
	}
	if cause := r.ClosedCause(); cause != nil {
		return false, cause
	}
	return r.buffer.Len() >= min, nil
}

func (r *readAdapter) ReadBuffer() (*buf.Chain, error) {
	if cause := r.ClosedCause(); cause != nil {
		return nil, cause
	}
	return &r.buffer, nil
}

func (r *readAdapter) IsClosedForRead() bool {
	token := r.closed.Load()
	return token != nil && (token.cause != nil || r.buffer.IsEmpty())
}

func (r *readAdapter) ClosedCause() error {
	token := r.closed.Load()
	if token == nil {
		return nil
	}
	return token.cause
}

func (r *readAdapter) isClosed() bool {
	return r.closed.Load() != nil
}

func (r *readAdapter) closeFromNetwork() {
	if !r.closed.CompareAndSwap(nil, &closeToken{}) {
		return
	}
	r.socket.selectable.SetInterest(selector.InterestRead, false)
	r.socket.checkClosed(nil)
}

func (r *readAdapter) Cancel(cause error) {
	if !r.cancelled(cause) {
		return
	}
	r.socket.checkClosed(r.ClosedCause())
}

func (r *readAdapter) cancelled(cause error) bool {
	if !r.closed.CompareAndSwap(nil, &closeToken{channel.Cancelled(cause)}) {
		return false
	}
	r.cancelClosed()
	r.socket.selectable.SetInterest(selector.InterestRead, false)
	return true
}
