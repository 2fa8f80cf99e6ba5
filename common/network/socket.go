package network

import (
	"context"

	"github.com/sagernet/sing-cio/common/channel"
	M "github.com/sagernet/sing-cio/common/metadata"
)

// Socket is a connected byte stream exposed as a pair of channels.
// Closing both channels, or calling Close, releases the underlying handle.
type Socket interface {
	AttachForReading() channel.ReadChannel
	AttachForWriting() channel.WriteChannel
	LocalAddr() M.Socksaddr
	RemoteAddr() M.Socksaddr
	Close() error
	Cancel(cause error)
	// Done is closed once both directions are closed.
	Done() <-chan struct{}
	// Err returns the first cancellation cause after Done.
	Err() error
}

type Dialer interface {
	DialSocket(ctx context.Context, destination M.Socksaddr) (Socket, error)
}

type SocketHandler interface {
	NewSocket(ctx context.Context, socket Socket) error
}

type SocketHandlerFunc func(ctx context.Context, socket Socket) error

func (f SocketHandlerFunc) NewSocket(ctx context.Context, socket Socket) error {
	return f(ctx, socket)
}
