package selector

import (
	"sync/atomic"

	E "github.com/sagernet/sing-cio/common/exceptions"
)

var ErrSelectableClosed = E.New("selectable closed")

type CancelledError struct {
	cause error
}

func (e *CancelledError) Error() string {
	return "selectable cancelled: " + e.cause.Error()
}

func (e *CancelledError) Unwrap() error {
	return e.cause
}

type suspension struct {
	done chan error
}

func newSuspension() *suspension {
	return &suspension{done: make(chan error, 1)}
}

type closeState struct {
	cause error
}

// Selectable is the readiness state of one socket: the interests it is
// registered for and at most one waiter per interest.
type Selectable struct {
	fd          int
	interests   atomic.Uint32
	suspensions [4]atomic.Pointer[suspension]
	closed      atomic.Pointer[closeState]

	// owned by the selector loop
	osInterest Interest
}

func NewSelectable(fd int) *Selectable {
	return &Selectable{fd: fd}
}

func (s *Selectable) FD() int {
	return s.fd
}

func (s *Selectable) Interests() Interest {
	return Interest(s.interests.Load())
}

// SetInterest sets or clears the interest flags. A waiter may only select an
// interest that is set.
func (s *Selectable) SetInterest(interest Interest, state bool) {
	for {
		current := s.interests.Load()
		next := current &^ uint32(interest)
		if state {
			next = current | uint32(interest)
		}
		if current == next || s.interests.CompareAndSwap(current, next) {
			return
		}
	}
}

// pendingInterests returns the set interests that have a waiter.
func (s *Selectable) pendingInterests() Interest {
	var pending Interest
	s.Interests().each(func(flag Interest) {
		if s.suspensions[flag.index()].Load() != nil {
			pending |= flag
		}
	})
	return pending
}

func (s *Selectable) IsClosed() bool {
	return s.closed.Load() != nil
}

func (s *Selectable) closeCause() error {
	state := s.closed.Load()
	if state == nil {
		return nil
	}
	return state.cause
}

// Close resolves every pending waiter with ErrSelectableClosed.
func (s *Selectable) Close() error {
	s.close(ErrSelectableClosed)
	return nil
}

// Cancel resolves every pending waiter with a *CancelledError wrapping cause.
func (s *Selectable) Cancel(cause error) {
	if cause == nil {
		cause = ErrSelectableClosed
	}
	s.close(&CancelledError{cause})
}

func (s *Selectable) close(cause error) bool {
	if !s.closed.CompareAndSwap(nil, &closeState{cause}) {
		return false
	}
	s.interests.Store(0)
	s.resolveAll(cause)
	return true
}

func (s *Selectable) resolve(interest Interest, err error) bool {
	waiter := s.suspensions[interest.index()].Swap(nil)
	if waiter == nil {
		return false
	}
	waiter.done <- err
	return true
}

func (s *Selectable) resolveAll(err error) {
	interestAll.each(func(flag Interest) {
		s.resolve(flag, err)
	})
}
