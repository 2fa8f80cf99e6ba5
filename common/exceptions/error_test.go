package exceptions

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCauseAndExtend(t *testing.T) {
	t.Parallel()
	base := New("connection refused")
	caused := Cause(base, "connect ", "127.0.0.1:80")
	require.Equal(t, "connect 127.0.0.1:80: connection refused", caused.Error())
	require.ErrorIs(t, caused, base)
	extended := Extend(base, "after 3 attempts")
	require.Equal(t, "connection refused: after 3 attempts", extended.Error())
	require.ErrorIs(t, extended, base)
}

func TestErrors(t *testing.T) {
	t.Parallel()
	require.NoError(t, Errors(nil, nil))
	single := New("single")
	require.Same(t, single, Errors(nil, single))
	joined := Errors(io.EOF, net.ErrClosed)
	require.ErrorIs(t, joined, io.EOF)
	require.ErrorIs(t, joined, net.ErrClosed)
	require.True(t, IsClosed(joined))
	require.False(t, IsClosed(New("other")))
}

func TestIsClosedOrCanceled(t *testing.T) {
	t.Parallel()
	require.True(t, IsClosedOrCanceled(Cause(context.Canceled, "read")))
	require.False(t, IsClosed(context.Canceled))
	require.False(t, IsClosedOrCanceled(errors.New("boom")))
}

func TestIsTimeout(t *testing.T) {
	t.Parallel()
	err := Cause(NewTimeout("read timed out"), "socket")
	require.True(t, IsTimeout(err))
	require.False(t, IsTimeout(io.EOF))
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())
}
