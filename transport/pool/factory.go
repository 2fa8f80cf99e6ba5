package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sagernet/sing-cio/common/log"
	M "github.com/sagernet/sing-cio/common/metadata"
	N "github.com/sagernet/sing-cio/common/network"
	"github.com/sagernet/sing-cio/common/selector"
	"github.com/sagernet/sing-cio/transport/tcp"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var _ N.Dialer = (*ConnectionFactory)(nil)

type ConnectFunc func(ctx context.Context, address M.Socksaddr, options tcp.Options) (N.Socket, error)

type Option func(factory *ConnectionFactory)

func WithConnectFunc(connect ConnectFunc) Option {
	return func(factory *ConnectionFactory) {
		factory.connect = connect
	}
}

// WithOptions sets the socket options used by DialSocket.
func WithOptions(options tcp.Options) Option {
	return func(factory *ConnectionFactory) {
		factory.options = options
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(factory *ConnectionFactory) {
		factory.logger = logger
	}
}

// ConnectionFactory bounds connection establishment by a global limit and
// a per-destination limit. Every successful Connect holds one permit of
// each until the matching Release.
type ConnectionFactory struct {
	connect      ConnectFunc
	options      tcp.Options
	logger       logrus.FieldLogger
	global       *semaphore.Weighted
	addressLimit int64

	access    sync.Mutex
	addresses map[M.Socksaddr]*semaphore.Weighted

	outstanding atomic.Int64
}

func NewConnectionFactory(manager *selector.Manager, connectionsLimit int, addressConnectionsLimit int, options ...Option) *ConnectionFactory {
	if connectionsLimit <= 0 {
		connectionsLimit = 1
	}
	if addressConnectionsLimit <= 0 || addressConnectionsLimit > connectionsLimit {
		addressConnectionsLimit = connectionsLimit
	}
	factory := &ConnectionFactory{
		options:      tcp.DefaultOptions(),
		global:       semaphore.NewWeighted(int64(connectionsLimit)),
		addressLimit: int64(addressConnectionsLimit),
		addresses:    make(map[M.Socksaddr]*semaphore.Weighted),
	}
	for _, option := range options {
		option(factory)
	}
	if factory.connect == nil {
		factory.connect = func(ctx context.Context, address M.Socksaddr, options tcp.Options) (N.Socket, error) {
			socket, err := tcp.Connect(ctx, manager, address, options)
			if err != nil {
				return nil, err
			}
			return socket, nil
		}
	}
	if factory.logger == nil {
		factory.logger = log.NewLogger("pool")
	}
	return factory
}

func (f *ConnectionFactory) addressSemaphore(address M.Socksaddr) *semaphore.Weighted {
	f.access.Lock()
	defer f.access.Unlock()
	addressSemaphore, loaded := f.addresses[address]
	if !loaded {
		addressSemaphore = semaphore.NewWeighted(f.addressLimit)
		f.addresses[address] = addressSemaphore
	}
	return addressSemaphore
}

// Connect waits for a global permit and then a permit for address before
// establishing the connection. Permits acquired by a failed attempt are
// released before the error is returned.
func (f *ConnectionFactory) Connect(ctx context.Context, address M.Socksaddr, options tcp.Options) (N.Socket, error) {
	err := f.global.Acquire(ctx, 1)
	if err != nil {
		return nil, err
	}
	socket, err := f.connectAddress(ctx, address, options)
	if err != nil {
		f.global.Release(1)
		f.logger.Debug("connect ", address, ": ", err)
		return nil, err
	}
	f.outstanding.Add(1)
	f.logger.Debug("connected ", address)
	return socket, nil
}

func (f *ConnectionFactory) connectAddress(ctx context.Context, address M.Socksaddr, options tcp.Options) (N.Socket, error) {
	addressSemaphore := f.addressSemaphore(address)
	err := addressSemaphore.Acquire(ctx, 1)
	if err != nil {
		return nil, err
	}
	socket, err := f.connect(ctx, address, options)
	if err != nil {
		addressSemaphore.Release(1)
		return nil, err
	}
	return socket, nil
}

// DialSocket connects to destination with the factory options. The permits
// are released once the returned socket is done.
func (f *ConnectionFactory) DialSocket(ctx context.Context, destination M.Socksaddr) (N.Socket, error) {
	socket, err := f.Connect(ctx, destination, f.options)
	if err != nil {
		return nil, err
	}
	go func() {
		<-socket.Done()
		f.Release(destination)
	}()
	return socket, nil
}

// Release returns the permits held by a connection to address. It panics
// when no connection to address is outstanding.
func (f *ConnectionFactory) Release(address M.Socksaddr) {
	f.access.Lock()
	addressSemaphore, loaded := f.addresses[address]
	f.access.Unlock()
	if !loaded {
		panic("pool: release of unknown address " + address.String())
	}
	// semaphore.Weighted panics on a release without a matching acquire
	addressSemaphore.Release(1)
	f.global.Release(1)
	f.outstanding.Add(-1)
}

// Outstanding returns the number of connections not yet released.
func (f *ConnectionFactory) Outstanding() int64 {
	return f.outstanding.Load()
}
