package metadata

import (
	"context"
	"net"
	"net/netip"
	"strconv"

	E "github.com/sagernet/sing-cio/common/exceptions"
)

// Socksaddr is a destination given either as an IP address or as a domain
// name, plus a port.
type Socksaddr struct {
	Addr netip.Addr
	Fqdn string
	Port uint16
}

func (ap Socksaddr) Network() string {
	return "tcp"
}

func (ap Socksaddr) IsIP() bool {
	return ap.Addr.IsValid()
}

func (ap Socksaddr) IsFqdn() bool {
	return !ap.IsIP() && ap.Fqdn != ""
}

func (ap Socksaddr) IsValid() bool {
	return ap.Addr.IsValid() || ap.Fqdn != ""
}

func (ap Socksaddr) AddrString() string {
	if ap.Addr.IsValid() {
		return ap.Addr.String()
	}
	return ap.Fqdn
}

func (ap Socksaddr) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr, ap.Port)
}

func (ap Socksaddr) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{
		IP:   ap.Addr.AsSlice(),
		Port: int(ap.Port),
	}
}

func (ap Socksaddr) String() string {
	return net.JoinHostPort(ap.AddrString(), strconv.Itoa(int(ap.Port)))
}

// Unwrap maps IPv4-mapped IPv6 addresses back to IPv4.
func (ap Socksaddr) Unwrap() Socksaddr {
	if ap.Addr.Is4In6() {
		ap.Addr = netip.AddrFrom4(ap.Addr.As4())
	}
	return ap
}

func SocksaddrFromNetIP(ap netip.AddrPort) Socksaddr {
	return Socksaddr{
		Addr: ap.Addr(),
		Port: ap.Port(),
	}.Unwrap()
}

func SocksaddrFromNet(addr net.Addr) Socksaddr {
	switch netAddr := addr.(type) {
	case Socksaddr:
		return netAddr
	case *net.TCPAddr:
		return SocksaddrFromNetIP(netAddr.AddrPort())
	case *net.UDPAddr:
		return SocksaddrFromNetIP(netAddr.AddrPort())
	default:
		return Socksaddr{}
	}
}

func ParseSocksaddr(address string) (Socksaddr, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return Socksaddr{}, E.Cause(err, "parse address ", address)
	}
	return ParseSocksaddrHostPort(host, port)
}

func ParseSocksaddrHostPort(host string, portString string) (Socksaddr, error) {
	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil {
		return Socksaddr{}, E.Cause(err, "parse port ", portString)
	}
	if host == "" {
		return Socksaddr{Addr: netip.IPv4Unspecified(), Port: uint16(port)}, nil
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return Socksaddr{Fqdn: host, Port: uint16(port)}, nil
	}
	return Socksaddr{Addr: addr, Port: uint16(port)}.Unwrap(), nil
}

// Resolve returns the candidate IP destinations for ap.
func Resolve(ctx context.Context, resolver *net.Resolver, ap Socksaddr) ([]Socksaddr, error) {
	if ap.IsIP() {
		return []Socksaddr{ap.Unwrap()}, nil
	}
	if !ap.IsFqdn() {
		return nil, E.New("invalid destination")
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addresses, err := resolver.LookupNetIP(ctx, "ip", ap.Fqdn)
	if err != nil {
		return nil, E.Cause(err, "lookup ", ap.Fqdn)
	}
	destinations := make([]Socksaddr, 0, len(addresses))
	for _, addr := range addresses {
		destinations = append(destinations, Socksaddr{Addr: addr, Port: ap.Port}.Unwrap())
	}
	if len(destinations) == 0 {
		return nil, E.New("lookup ", ap.Fqdn, ": no addresses")
	}
	return destinations, nil
}
