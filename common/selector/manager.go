package selector

import (
	"context"
	"sync"
	"sync/atomic"

	E "github.com/sagernet/sing-cio/common/exceptions"
	"github.com/sagernet/sing-cio/common/log"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"
)

var (
	ErrSelectorClosed  = E.New("selector closed")
	ErrInvalidInterest = E.New("invalid interest")
)

type readyEvent struct {
	fd     int
	ready  Interest
	failed error
}

// poller is the OS readiness backend. Update and Wait are only called from
// the loop goroutine; Wakeup from any goroutine.
type poller interface {
	Update(fd int, previous Interest, next Interest) error
	Wait(events []readyEvent) (int, error)
	Wakeup()
	Close() error
}

// Manager turns OS readiness into resumed waiters. A single loop goroutine
// owns the OS registration; other goroutines hand it selectables through
// the publish queue.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger logrus.FieldLogger
	poller poller

	access   sync.Mutex
	queue    *queue.Queue
	closed   bool
	shutdown error
	done     chan struct{}

	closeOnce sync.Once
	closeErr  error

	pending   atomic.Int64
	cancelled atomic.Int64

	registered map[int]*Selectable
}

func NewManager(ctx context.Context, logger logrus.FieldLogger) (*Manager, error) {
	if logger == nil {
		logger = log.NewLogger("selector")
	}
	poller, err := newPoller()
	if err != nil {
		return nil, E.Cause(err, "create poller")
	}
	ctx, cancel := context.WithCancel(ctx)
	manager := &Manager{
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
		poller:     poller,
		queue:      queue.New(),
		done:       make(chan struct{}),
		registered: make(map[int]*Selectable),
	}
	go manager.loop()
	return manager, nil
}

// Select blocks until the OS reports interest ready on selectable. The
// interest must be a single flag that is set on selectable. The flag is
// cleared when the waiter is resumed.
func (m *Manager) Select(ctx context.Context, selectable *Selectable, interest Interest) error {
	if !interest.isSingle() {
		return E.Extend(ErrInvalidInterest, interest)
	}
	if cause := selectable.closeCause(); cause != nil {
		return cause
	}
	if selectable.Interests()&interest == 0 {
		return E.Extend(ErrInvalidInterest, interest, " is not set on fd ", selectable.fd)
	}
	slot := &selectable.suspensions[interest.index()]
	waiter := newSuspension()
	if !slot.CompareAndSwap(nil, waiter) {
		return E.Extend(ErrInvalidInterest, interest, " already pending on fd ", selectable.fd)
	}
	m.pending.Add(1)
	defer m.pending.Add(-1)
	if cause := selectable.closeCause(); cause != nil {
		if slot.CompareAndSwap(waiter, nil) {
			return cause
		}
		return <-waiter.done
	}
	err := m.publish(selectable)
	if err != nil {
		if slot.CompareAndSwap(waiter, nil) {
			return err
		}
		return <-waiter.done
	}
	select {
	case err = <-waiter.done:
		return err
	case <-ctx.Done():
		if slot.CompareAndSwap(waiter, nil) {
			selectable.SetInterest(interest, false)
			_ = m.publish(selectable)
		} else {
			<-waiter.done
		}
		return ctx.Err()
	}
}

// NotifyClosed asks the loop to drop the OS registration of a closed
// selectable. Call it before closing the file descriptor.
func (m *Manager) NotifyClosed(selectable *Selectable) {
	_ = m.publish(selectable)
}

func (m *Manager) publish(selectable *Selectable) error {
	m.access.Lock()
	if m.closed {
		cause := m.shutdown
		m.access.Unlock()
		return cause
	}
	m.queue.Add(selectable)
	m.access.Unlock()
	m.poller.Wakeup()
	return nil
}

// Pending returns the number of in-flight Select calls.
func (m *Manager) Pending() int64 {
	return m.pending.Load()
}

// Cancelled returns the number of selectables cancelled by poll errors.
func (m *Manager) Cancelled() int64 {
	return m.cancelled.Load()
}

func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close stops the loop and resolves every pending waiter with
// ErrSelectorClosed.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.access.Lock()
		if !m.closed {
			m.closed = true
			m.shutdown = ErrSelectorClosed
		}
		m.access.Unlock()
		m.cancel()
		m.poller.Wakeup()
		<-m.done
		m.closeErr = m.poller.Close()
	})
	return m.closeErr
}

func (m *Manager) loop() {
	var cause error = ErrSelectorClosed
	defer func() {
		m.terminate(cause)
	}()
	events := make([]readyEvent, 64)
	for {
		m.processQueue()
		if m.ctx.Err() != nil {
			return
		}
		n, err := m.poller.Wait(events)
		if err != nil {
			m.logger.Error("poll: ", err)
			cause = E.Cause(err, "selector poll")
			return
		}
		for _, event := range events[:n] {
			selectable := m.registered[event.fd]
			if selectable == nil {
				continue
			}
			if event.failed != nil {
				m.cancelSelectable(selectable, event.failed)
				continue
			}
			ready := event.ready & selectable.osInterest
			ready.each(func(flag Interest) {
				if selectable.suspensions[flag.index()].Load() == nil {
					return
				}
				selectable.SetInterest(flag, false)
				selectable.resolve(flag, nil)
			})
			m.applyInterest(selectable)
		}
	}
}

func (m *Manager) processQueue() {
	for {
		m.access.Lock()
		if m.queue.Length() == 0 {
			m.access.Unlock()
			return
		}
		selectable := m.queue.Remove().(*Selectable)
		m.access.Unlock()
		m.applyInterest(selectable)
	}
}

func (m *Manager) applyInterest(selectable *Selectable) {
	if selectable.IsClosed() {
		m.unregister(selectable)
		return
	}
	next := selectable.pendingInterests()
	if next == selectable.osInterest && (next == 0 || m.registered[selectable.fd] == selectable) {
		return
	}
	if next == 0 {
		m.unregister(selectable)
		return
	}
	if current := m.registered[selectable.fd]; current != nil && current != selectable {
		m.unregister(current)
	}
	err := m.poller.Update(selectable.fd, selectable.osInterest, next)
	if err != nil {
		m.cancelSelectable(selectable, E.Cause(err, "register fd ", selectable.fd, " for ", next))
		return
	}
	selectable.osInterest = next
	m.registered[selectable.fd] = selectable
}

func (m *Manager) unregister(selectable *Selectable) {
	if m.registered[selectable.fd] != selectable {
		return
	}
	delete(m.registered, selectable.fd)
	if selectable.osInterest != 0 {
		err := m.poller.Update(selectable.fd, selectable.osInterest, 0)
		if err != nil && !selectable.IsClosed() {
			m.logger.Debug("unregister fd ", selectable.fd, ": ", err)
		}
	}
	selectable.osInterest = 0
}

func (m *Manager) cancelSelectable(selectable *Selectable, cause error) {
	m.logger.Debug("cancel fd ", selectable.fd, ": ", cause)
	m.cancelled.Add(1)
	selectable.Cancel(cause)
	m.unregister(selectable)
}

func (m *Manager) terminate(cause error) {
	m.access.Lock()
	if !m.closed {
		m.closed = true
		m.shutdown = cause
	}
	var queued []*Selectable
	for m.queue.Length() > 0 {
		queued = append(queued, m.queue.Remove().(*Selectable))
	}
	m.access.Unlock()
	for _, selectable := range m.registered {
		selectable.resolveAll(cause)
		selectable.osInterest = 0
	}
	for _, selectable := range queued {
		selectable.resolveAll(cause)
	}
	m.registered = make(map[int]*Selectable)
	close(m.done)
}
