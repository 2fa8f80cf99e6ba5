package suspend

import (
	"context"
	"sync/atomic"

	E "github.com/sagernet/sing-cio/common/exceptions"
)

var ErrConcurrentWait = E.New("another waiter displaced this one")

type waiter struct {
	done      chan struct{}
	displaced atomic.Bool
}

func (w *waiter) wake() {
	close(w.done)
}

type closedToken struct {
	cause error
}

type state struct {
	waiter *waiter
	closed *closedToken
}

// Slot holds at most one suspended waiter together with a terminal closed
// state. A Resume that races with a waiter registering is never lost: the
// waiter re-checks its condition after registering.
type Slot struct {
	current atomic.Pointer[state]
}

// SleepWhile blocks while condition reports true and the slot is open.
// It returns the close cause, or the context error if ctx is done first.
// A second concurrent sleeper displaces the first one, which then fails with
// ErrConcurrentWait unless its condition has cleared.
func (s *Slot) SleepWhile(ctx context.Context, condition func() bool) error {
	for condition() {
		current := s.current.Load()
		if current != nil && current.closed != nil {
			return current.closed.cause
		}
		self := &state{waiter: &waiter{done: make(chan struct{})}}
		if !s.current.CompareAndSwap(current, self) {
			continue
		}
		if current != nil {
			current.waiter.displaced.Store(true)
			current.waiter.wake()
		}
		if !condition() {
			if s.current.CompareAndSwap(self, nil) {
				return nil
			}
			<-self.waiter.done
			continue
		}
		select {
		case <-self.waiter.done:
			if self.waiter.displaced.Load() && condition() {
				return ErrConcurrentWait
			}
		case <-ctx.Done():
			if !s.current.CompareAndSwap(self, nil) {
				<-self.waiter.done
			}
			return ctx.Err()
		}
	}
	return nil
}

// Resume wakes the suspended waiter, if any.
func (s *Slot) Resume() {
	for {
		current := s.current.Load()
		if current == nil || current.closed != nil {
			return
		}
		if s.current.CompareAndSwap(current, nil) {
			current.waiter.wake()
			return
		}
	}
}

// Close moves the slot into the closed state and resumes the waiter.
// Only the first call takes effect. Later sleepers return cause.
func (s *Slot) Close(cause error) {
	closed := &state{closed: &closedToken{cause: cause}}
	for {
		current := s.current.Load()
		if current != nil && current.closed != nil {
			return
		}
		if s.current.CompareAndSwap(current, closed) {
			if current != nil {
				current.waiter.wake()
			}
			return
		}
	}
}

func (s *Slot) IsClosed() bool {
	current := s.current.Load()
	return current != nil && current.closed != nil
}

// Cause returns the close cause, nil while open or after a clean close.
func (s *Slot) Cause() error {
	current := s.current.Load()
	if current == nil || current.closed == nil {
		return nil
	}
	return current.closed.cause
}
