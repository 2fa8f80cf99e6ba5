package pool

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sagernet/sing-cio/common/channel"
	E "github.com/sagernet/sing-cio/common/exceptions"
	"github.com/sagernet/sing-cio/common/log"
	M "github.com/sagernet/sing-cio/common/metadata"
	N "github.com/sagernet/sing-cio/common/network"
	"github.com/sagernet/sing-cio/transport/tcp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddress = M.Socksaddr{Addr: netip.MustParseAddr("192.0.2.1"), Port: 443}

type gateConnector struct {
	establishing atomic.Int32
	peak         atomic.Int32
	started      chan struct{}
	proceed      chan struct{}
}

func newGateConnector() *gateConnector {
	return &gateConnector{
		started: make(chan struct{}, 64),
		proceed: make(chan struct{}),
	}
}

func (c *gateConnector) connect(ctx context.Context, address M.Socksaddr, options tcp.Options) (N.Socket, error) {
	current := c.establishing.Add(1)
	for {
		peak := c.peak.Load()
		if current <= peak || c.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	c.started <- struct{}{}
	defer c.establishing.Add(-1)
	select {
	case <-c.proceed:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestFactory(limit int, addressLimit int, connect ConnectFunc) *ConnectionFactory {
	return NewConnectionFactory(nil, limit, addressLimit, WithConnectFunc(connect), WithLogger(log.Discard()))
}

func expectStarted(t *testing.T, connector *gateConnector) {
	t.Helper()
	select {
	case <-connector.started:
	case <-time.After(time.Second):
		t.Fatal("connect not started")
	}
}

func expectIdle(t *testing.T, connector *gateConnector) {
	t.Helper()
	select {
	case <-connector.started:
		t.Fatal("connect started beyond the limit")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAddressLimit(t *testing.T) {
	t.Parallel()
	const total, limit = 6, 2
	connector := newGateConnector()
	factory := newTestFactory(total, limit, connector.connect)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var group sync.WaitGroup
	for i := 0; i < total; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			_, err := factory.Connect(ctx, testAddress, tcp.DefaultOptions())
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < limit; i++ {
		expectStarted(t, connector)
	}
	expectIdle(t, connector)

	for i := 0; i < total-limit; i++ {
		connector.proceed <- struct{}{}
		require.Eventually(t, func() bool {
			return factory.Outstanding() == 1
		}, time.Second, 5*time.Millisecond)
		factory.Release(testAddress)
		expectStarted(t, connector)
	}
	for i := 0; i < limit; i++ {
		connector.proceed <- struct{}{}
	}
	group.Wait()
	assert.LessOrEqual(t, connector.peak.Load(), int32(limit))
	assert.Equal(t, int64(limit), factory.Outstanding())
}

func TestSerializedConnect(t *testing.T) {
	t.Parallel()
	connector := newGateConnector()
	factory := newTestFactory(1, 1, connector.connect)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := make(chan error, 1)
	go func() {
		_, err := factory.Connect(ctx, testAddress, tcp.DefaultOptions())
		first <- err
	}()
	expectStarted(t, connector)
	connector.proceed <- struct{}{}
	require.NoError(t, <-first)

	second := make(chan error, 1)
	go func() {
		_, err := factory.Connect(ctx, testAddress, tcp.DefaultOptions())
		second <- err
	}()
	expectIdle(t, connector)
	factory.Release(testAddress)
	expectStarted(t, connector)
	connector.proceed <- struct{}{}
	require.NoError(t, <-second)
	factory.Release(testAddress)
	assert.Zero(t, factory.Outstanding())
}

func TestConnectFailureReleasesPermits(t *testing.T) {
	t.Parallel()
	failure := E.New("refused")
	var attempts atomic.Int32
	factory := newTestFactory(1, 1, func(ctx context.Context, address M.Socksaddr, options tcp.Options) (N.Socket, error) {
		attempts.Add(1)
		return nil, failure
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		_, err := factory.Connect(ctx, testAddress, tcp.DefaultOptions())
		require.ErrorIs(t, err, failure)
	}
	assert.Equal(t, int32(3), attempts.Load())
	assert.Zero(t, factory.Outstanding())
}

func TestConnectCancelledWhileWaiting(t *testing.T) {
	t.Parallel()
	connector := newGateConnector()
	factory := newTestFactory(1, 1, connector.connect)
	go func() {
		_, _ = factory.Connect(context.Background(), testAddress, tcp.DefaultOptions())
	}()
	expectStarted(t, connector)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := factory.Connect(ctx, testAddress, tcp.DefaultOptions())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	connector.proceed <- struct{}{}
	require.Eventually(t, func() bool {
		return factory.Outstanding() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestReleaseUnknownAddress(t *testing.T) {
	t.Parallel()
	factory := newTestFactory(1, 1, newGateConnector().connect)
	assert.Panics(t, func() {
		factory.Release(testAddress)
	})
}

type closableSocket struct {
	address   M.Socksaddr
	done      chan struct{}
	closeOnce sync.Once
}

func newClosableSocket(address M.Socksaddr) *closableSocket {
	return &closableSocket{address: address, done: make(chan struct{})}
}

func (s *closableSocket) AttachForReading() channel.ReadChannel  { return channel.Empty() }
func (s *closableSocket) AttachForWriting() channel.WriteChannel { return channel.New() }
func (s *closableSocket) LocalAddr() M.Socksaddr                 { return M.Socksaddr{} }
func (s *closableSocket) RemoteAddr() M.Socksaddr                { return s.address }
func (s *closableSocket) Done() <-chan struct{}                  { return s.done }
func (s *closableSocket) Err() error                             { return nil }
func (s *closableSocket) Cancel(cause error)                     { s.Close() }

func (s *closableSocket) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

func TestDialSocketReleasesOnDone(t *testing.T) {
	t.Parallel()
	options := tcp.DefaultOptions()
	options.NoDelay = false
	var dialedOptions tcp.Options
	factory := newTestFactory(1, 1, func(ctx context.Context, address M.Socksaddr, options tcp.Options) (N.Socket, error) {
		dialedOptions = options
		return newClosableSocket(address), nil
	})
	WithOptions(options)(factory)
	var dialer N.Dialer = factory
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	socket, err := dialer.DialSocket(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, testAddress, socket.RemoteAddr())
	assert.Equal(t, options, dialedOptions)
	assert.Equal(t, int64(1), factory.Outstanding())

	blocked, cancelBlocked := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelBlocked()
	_, err = dialer.DialSocket(blocked, testAddress)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, socket.Close())
	require.Eventually(t, func() bool {
		return factory.Outstanding() == 0
	}, time.Second, 5*time.Millisecond)
	next, err := dialer.DialSocket(ctx, testAddress)
	require.NoError(t, err)
	require.NoError(t, next.Close())
}
