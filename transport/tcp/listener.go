//go:build linux || darwin

package tcp

import (
	"context"
	"net"
	"sync"

	E "github.com/sagernet/sing-cio/common/exceptions"
	"github.com/sagernet/sing-cio/common/log"
	M "github.com/sagernet/sing-cio/common/metadata"
	N "github.com/sagernet/sing-cio/common/network"
	"github.com/sagernet/sing-cio/common/selector"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Listener accepts connections through the ACCEPT interest.
type Listener struct {
	manager    *selector.Manager
	selectable *selector.Selectable
	options    Options
	addr       M.Socksaddr
	closeOnce  sync.Once
}

func Listen(manager *selector.Manager, address M.Socksaddr, options Options) (*Listener, error) {
	if !address.IsIP() {
		return nil, E.New("listen address must be an IP: ", address)
	}
	fd, err := newSocketFD(address.SocketFamily())
	if err != nil {
		return nil, err
	}
	if options.ReuseAddress {
		err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if err != nil {
			unix.Close(fd)
			return nil, E.Cause(err, "set SO_REUSEADDR")
		}
	}
	err = unix.Bind(fd, address.Sockaddr())
	if err != nil {
		unix.Close(fd)
		return nil, E.Cause(err, "bind ", address)
	}
	backlog := options.Backlog
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	err = unix.Listen(fd, backlog)
	if err != nil {
		unix.Close(fd)
		return nil, E.Cause(err, "listen ", address)
	}
	sockaddr, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, E.Cause(err, "getsockname")
	}
	return &Listener{
		manager:    manager,
		selectable: selector.NewSelectable(fd),
		options:    options,
		addr:       M.SocksaddrFromSockaddr(sockaddr),
	}, nil
}

func (l *Listener) Addr() M.Socksaddr {
	return l.addr
}

func (l *Listener) Accept(ctx context.Context) (*Socket, error) {
	for {
		if l.selectable.IsClosed() {
			return nil, net.ErrClosed
		}
		fd, _, err := unix.Accept(l.selectable.FD())
		switch {
		case err == nil:
			socket, err := l.newAccepted(fd)
			if err != nil {
				return nil, err
			}
			return socket, nil
		case err == unix.EINTR, err == unix.ECONNABORTED:
		case isRetryable(err):
			l.selectable.SetInterest(selector.InterestAccept, true)
			err = l.manager.Select(ctx, l.selectable, selector.InterestAccept)
			if err != nil {
				if E.IsMulti(err, selector.ErrSelectableClosed) {
					return nil, net.ErrClosed
				}
				return nil, err
			}
		default:
			if l.selectable.IsClosed() {
				return nil, net.ErrClosed
			}
			return nil, E.Cause(err, "accept")
		}
	}
}

func (l *Listener) newAccepted(fd int) (*Socket, error) {
	unix.CloseOnExec(fd)
	err := unix.SetNonblock(fd, true)
	if err == nil {
		err = applyOptions(fd, l.options)
	}
	var local, remote M.Socksaddr
	if err == nil {
		local, remote, err = socketAddresses(fd)
	}
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return newSocket(l.manager, selector.NewSelectable(fd), local, remote, l.options), nil
}

// Serve accepts until the listener is closed, running handler for each
// socket in its own goroutine. The socket is closed when handler returns.
func (l *Listener) Serve(ctx context.Context, handler N.SocketHandler, logger logrus.FieldLogger) error {
	if logger == nil {
		logger = log.NewLogger("listener")
	}
	for {
		socket, err := l.Accept(ctx)
		if err != nil {
			if E.IsClosedOrCanceled(err) {
				return nil
			}
			return err
		}
		go func() {
			defer socket.Close()
			hErr := handler.NewSocket(ctx, socket)
			if hErr != nil && !E.IsClosedOrCanceled(hErr) {
				logger.Error("connection from ", socket.RemoteAddr(), ": ", hErr)
			}
		}()
	}
}

func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.selectable.Close()
		l.manager.NotifyClosed(l.selectable)
		err = unix.Close(l.selectable.FD())
	})
	return err
}
