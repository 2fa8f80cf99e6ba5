package metadata

import (
	"context"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSocksaddr(t *testing.T) {
	t.Parallel()
	address, err := ParseSocksaddr("127.0.0.1:8080")
	require.NoError(t, err)
	require.True(t, address.IsIP())
	require.Equal(t, netip.MustParseAddr("127.0.0.1"), address.Addr)
	require.Equal(t, uint16(8080), address.Port)
	require.Equal(t, "127.0.0.1:8080", address.String())

	address, err = ParseSocksaddr("[::ffff:10.0.0.1]:53")
	require.NoError(t, err)
	require.True(t, address.Addr.Is4())

	address, err = ParseSocksaddr("example.com:443")
	require.NoError(t, err)
	require.True(t, address.IsFqdn())
	require.Equal(t, "example.com:443", address.String())

	_, err = ParseSocksaddr("example.com:99999")
	require.Error(t, err)
	_, err = ParseSocksaddr("missing-port")
	require.Error(t, err)
}

func TestSocksaddrFromNet(t *testing.T) {
	t.Parallel()
	address := SocksaddrFromNet(&net.TCPAddr{IP: net.IPv4(192, 168, 1, 1), Port: 22})
	require.Equal(t, "192.168.1.1:22", address.String())
	require.False(t, SocksaddrFromNet(&net.UnixAddr{Name: "/tmp/socket"}).IsValid())
}

func TestResolveIP(t *testing.T) {
	t.Parallel()
	destinations, err := Resolve(context.Background(), nil, Socksaddr{Addr: netip.MustParseAddr("::1"), Port: 1})
	require.NoError(t, err)
	require.Len(t, destinations, 1)
	_, err = Resolve(context.Background(), nil, Socksaddr{})
	require.Error(t, err)
}
