//go:build unix

package metadata

import (
	"net/netip"

	"golang.org/x/sys/unix"
)

func SocksaddrFromSockaddr(sa unix.Sockaddr) Socksaddr {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return Socksaddr{Addr: netip.AddrFrom4(addr.Addr), Port: uint16(addr.Port)}
	case *unix.SockaddrInet6:
		return Socksaddr{Addr: netip.AddrFrom16(addr.Addr), Port: uint16(addr.Port)}.Unwrap()
	default:
		return Socksaddr{}
	}
}

func (ap Socksaddr) Sockaddr() unix.Sockaddr {
	if ap.Addr.Is4() {
		return &unix.SockaddrInet4{
			Port: int(ap.Port),
			Addr: ap.Addr.As4(),
		}
	}
	return &unix.SockaddrInet6{
		Port: int(ap.Port),
		Addr: ap.Addr.As16(),
	}
}

func (ap Socksaddr) SocketFamily() int {
	if ap.Addr.Is4() {
		return unix.AF_INET
	}
	return unix.AF_INET6
}
