//go:build linux || darwin

package tcp

import (
	"context"
	"syscall"

	E "github.com/sagernet/sing-cio/common/exceptions"
	"github.com/sagernet/sing-cio/common/log"
	M "github.com/sagernet/sing-cio/common/metadata"
	"github.com/sagernet/sing-cio/common/selector"

	"golang.org/x/sys/unix"
)

var logger = log.NewLogger("tcp")

// connectAttempt makes one connection attempt and reports whether the OS
// connected the socket to itself.
type connectAttempt func(ctx context.Context, manager *selector.Manager, address M.Socksaddr, options Options) (*Socket, bool, error)

// Connect establishes a connection to destination, trying each resolved
// address in turn. A connection the OS looped back onto itself is dropped
// and retried.
func Connect(ctx context.Context, manager *selector.Manager, destination M.Socksaddr, options Options) (*Socket, error) {
	addresses, err := M.Resolve(ctx, nil, destination)
	if err != nil {
		return nil, err
	}
	var errors []error
	for _, address := range addresses {
		socket, err := connectAddress(ctx, manager, address, options, connectOnce)
		if err == nil {
			return socket, nil
		}
		errors = append(errors, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, E.Cause(E.Errors(errors...), "connect to ", destination)
}

func connectAddress(ctx context.Context, manager *selector.Manager, address M.Socksaddr, options Options, attempt connectAttempt) (*Socket, error) {
	for {
		socket, selfConnect, err := attempt(ctx, manager, address, options)
		if err != nil {
			return nil, err
		}
		if !selfConnect {
			return socket, nil
		}
		logger.Debug("self-connect detected on ", address, ", retrying")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

func connectOnce(ctx context.Context, manager *selector.Manager, address M.Socksaddr, options Options) (*Socket, bool, error) {
	fd, err := newSocketFD(address.SocketFamily())
	if err != nil {
		return nil, false, err
	}
	selectable := selector.NewSelectable(fd)
	abort := func(cause error) (*Socket, bool, error) {
		closeSelectable(manager, selectable)
		return nil, false, cause
	}
	err = applyOptions(fd, options)
	if err != nil {
		return abort(err)
	}
	err = unix.Connect(fd, address.Sockaddr())
	if err == unix.EINPROGRESS || err == unix.EINTR {
		selectable.SetInterest(selector.InterestConnect, true)
		err = manager.Select(ctx, selectable, selector.InterestConnect)
		if err != nil {
			return abort(err)
		}
		var socketError int
		socketError, err = unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err == nil && socketError != 0 {
			err = syscall.Errno(socketError)
		}
	}
	if err != nil {
		return abort(E.Cause(err, "connect"))
	}
	local, remote, err := socketAddresses(fd)
	if err != nil {
		return abort(err)
	}
	if isSelfConnect(local, remote) {
		closeSelectable(manager, selectable)
		return nil, true, nil
	}
	return newSocket(manager, selectable, local, remote, options), false, nil
}

// isSelfConnect reports whether the OS connected the socket to itself.
func isSelfConnect(local M.Socksaddr, remote M.Socksaddr) bool {
	if local.Port != remote.Port {
		return false
	}
	return remote.Addr.IsUnspecified() || local.Addr == remote.Addr
}

func closeSelectable(manager *selector.Manager, selectable *selector.Selectable) {
	selectable.Close()
	manager.NotifyClosed(selectable)
	unix.Close(selectable.FD())
}
