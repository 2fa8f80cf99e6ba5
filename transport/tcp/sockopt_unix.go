//go:build linux || darwin

package tcp

import (
	"syscall"

	E "github.com/sagernet/sing-cio/common/exceptions"
	M "github.com/sagernet/sing-cio/common/metadata"

	"golang.org/x/sys/unix"
)

func newSocketFD(family int) (int, error) {
	syscall.ForkLock.RLock()
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err == nil {
		unix.CloseOnExec(fd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return -1, E.Cause(err, "create socket")
	}
	err = unix.SetNonblock(fd, true)
	if err != nil {
		unix.Close(fd)
		return -1, E.Cause(err, "set non-blocking")
	}
	return fd, nil
}

func applyOptions(fd int, options Options) error {
	if options.NoDelay {
		err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		if err != nil {
			return E.Cause(err, "set TCP_NODELAY")
		}
	}
	if options.KeepAlive {
		err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		if err != nil {
			return E.Cause(err, "set SO_KEEPALIVE")
		}
	}
	if options.Linger != 0 {
		linger := &unix.Linger{Onoff: 1}
		if options.Linger > 0 {
			linger.Linger = int32(options.Linger.Seconds())
		}
		err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, linger)
		if err != nil {
			return E.Cause(err, "set SO_LINGER")
		}
	}
	if options.ReceiveBufferSize > 0 {
		err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, options.ReceiveBufferSize)
		if err != nil {
			return E.Cause(err, "set SO_RCVBUF")
		}
	}
	if options.SendBufferSize > 0 {
		err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, options.SendBufferSize)
		if err != nil {
			return E.Cause(err, "set SO_SNDBUF")
		}
	}
	return nil
}

func socketAddresses(fd int) (local M.Socksaddr, remote M.Socksaddr, err error) {
	localSockaddr, err := unix.Getsockname(fd)
	if err != nil {
		return local, remote, E.Cause(err, "getsockname")
	}
	remoteSockaddr, err := unix.Getpeername(fd)
	if err != nil {
		return local, remote, E.Cause(err, "getpeername")
	}
	return M.SocksaddrFromSockaddr(localSockaddr), M.SocksaddrFromSockaddr(remoteSockaddr), nil
}

func isRetryable(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}
