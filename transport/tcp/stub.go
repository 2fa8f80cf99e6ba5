//go:build !linux && !darwin

package tcp

import (
	"context"

	E "github.com/sagernet/sing-cio/common/exceptions"
	M "github.com/sagernet/sing-cio/common/metadata"
	N "github.com/sagernet/sing-cio/common/network"
	"github.com/sagernet/sing-cio/common/selector"

	"github.com/sirupsen/logrus"
)

var errUnsupported = E.New("tcp sockets not supported on this platform")

type Socket struct {
	N.Socket
}

func Connect(ctx context.Context, manager *selector.Manager, destination M.Socksaddr, options Options) (*Socket, error) {
	return nil, errUnsupported
}

type Listener struct{}

func Listen(manager *selector.Manager, address M.Socksaddr, options Options) (*Listener, error) {
	return nil, errUnsupported
}

func (l *Listener) Addr() M.Socksaddr {
	return M.Socksaddr{}
}

func (l *Listener) Accept(ctx context.Context) (*Socket, error) {
	return nil, errUnsupported
}

func (l *Listener) Serve(ctx context.Context, handler N.SocketHandler, logger logrus.FieldLogger) error {
	return errUnsupported
}

func (l *Listener) Close() error {
	return nil
}
