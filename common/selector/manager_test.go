//go:build linux || darwin

package selector

import (
	"context"
	"testing"
	"time"

	E "github.com/sagernet/sing-cio/common/exceptions"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		manager.Close()
	})
	return manager
}

func newSocketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	for _, fd := range fds {
		require.NoError(t, unix.SetNonblock(fd, true))
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func selectAsync(manager *Manager, selectable *Selectable, interest Interest) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- manager.Select(context.Background(), selectable, interest)
	}()
	return done
}

func TestInterestString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "NONE", Interest(0).String())
	assert.Equal(t, "READ", InterestRead.String())
	assert.Equal(t, "WRITE|ACCEPT", (InterestWrite | InterestAccept).String())
}

func TestSelectRead(t *testing.T) {
	t.Parallel()
	manager := newTestManager(t)
	local, remote := newSocketPair(t)
	selectable := NewSelectable(local)
	selectable.SetInterest(InterestRead, true)
	done := selectAsync(manager, selectable, InterestRead)
	select {
	case err := <-done:
		t.Fatal("resumed before readiness: ", err)
	case <-time.After(50 * time.Millisecond):
	}
	_, err := unix.Write(remote, []byte("ping"))
	require.NoError(t, err)
	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("read readiness not delivered")
	}
	require.Zero(t, selectable.Interests()&InterestRead)
}

func TestSelectWrite(t *testing.T) {
	t.Parallel()
	manager := newTestManager(t)
	local, _ := newSocketPair(t)
	selectable := NewSelectable(local)
	selectable.SetInterest(InterestWrite, true)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, manager.Select(ctx, selectable, InterestWrite))
}

func TestSelectInvalidInterest(t *testing.T) {
	t.Parallel()
	manager := newTestManager(t)
	local, _ := newSocketPair(t)
	selectable := NewSelectable(local)
	err := manager.Select(context.Background(), selectable, InterestRead)
	require.ErrorIs(t, err, ErrInvalidInterest)
	selectable.SetInterest(InterestRead|InterestWrite, true)
	err = manager.Select(context.Background(), selectable, InterestRead|InterestWrite)
	require.ErrorIs(t, err, ErrInvalidInterest)
}

func TestCloseSelectableWhileWaiting(t *testing.T) {
	t.Parallel()
	manager := newTestManager(t)
	local, _ := newSocketPair(t)
	selectable := NewSelectable(local)
	selectable.SetInterest(InterestRead, true)
	done := selectAsync(manager, selectable, InterestRead)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, selectable.Close())
	manager.NotifyClosed(selectable)
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrSelectableClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter left parked after close")
	}
	require.ErrorIs(t, manager.Select(context.Background(), selectable, InterestRead), ErrSelectableClosed)
	require.NoError(t, selectable.Close())
}

func TestCancelSelectable(t *testing.T) {
	t.Parallel()
	manager := newTestManager(t)
	local, _ := newSocketPair(t)
	selectable := NewSelectable(local)
	selectable.SetInterest(InterestRead, true)
	done := selectAsync(manager, selectable, InterestRead)
	time.Sleep(20 * time.Millisecond)
	cause := E.New("peer reset")
	selectable.Cancel(cause)
	selectable.Cancel(E.New("ignored"))
	select {
	case err := <-done:
		require.ErrorIs(t, err, cause)
		var cancelled *CancelledError
		require.ErrorAs(t, err, &cancelled)
	case <-time.After(time.Second):
		t.Fatal("waiter left parked after cancel")
	}
}

func TestSelectContext(t *testing.T) {
	t.Parallel()
	manager := newTestManager(t)
	local, remote := newSocketPair(t)
	selectable := NewSelectable(local)
	selectable.SetInterest(InterestRead, true)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, manager.Select(ctx, selectable, InterestRead), context.DeadlineExceeded)
	require.Zero(t, selectable.Interests())

	selectable.SetInterest(InterestRead, true)
	_, err := unix.Write(remote, []byte{1})
	require.NoError(t, err)
	ctx, cancel = context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, manager.Select(ctx, selectable, InterestRead))
}

func TestCloseManager(t *testing.T) {
	t.Parallel()
	manager, err := NewManager(context.Background(), nil)
	require.NoError(t, err)
	local, _ := newSocketPair(t)
	selectable := NewSelectable(local)
	selectable.SetInterest(InterestRead, true)
	done := selectAsync(manager, selectable, InterestRead)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())
	select {
	case err = <-done:
		require.ErrorIs(t, err, ErrSelectorClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter left parked after manager close")
	}
	selectable.SetInterest(InterestRead, true)
	require.ErrorIs(t, manager.Select(context.Background(), selectable, InterestRead), ErrSelectorClosed)
	require.Zero(t, manager.Pending())
}

func TestIndependentInterests(t *testing.T) {
	t.Parallel()
	manager := newTestManager(t)
	local, remote := newSocketPair(t)
	selectable := NewSelectable(local)
	selectable.SetInterest(InterestRead|InterestWrite, true)
	readDone := selectAsync(manager, selectable, InterestRead)
	writeDone := selectAsync(manager, selectable, InterestWrite)
	select {
	case err := <-writeDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("write readiness not delivered")
	}
	select {
	case <-readDone:
		t.Fatal("read resumed without data")
	case <-time.After(30 * time.Millisecond):
	}
	_, err := unix.Write(remote, []byte{1})
	require.NoError(t, err)
	select {
	case err = <-readDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("read readiness not delivered")
	}
}

func TestRegistrationFailureIsolated(t *testing.T) {
	t.Parallel()
	manager := newTestManager(t)
	broken := NewSelectable(1 << 24)
	broken.SetInterest(InterestRead, true)
	local, remote := newSocketPair(t)
	healthy := NewSelectable(local)
	healthy.SetInterest(InterestRead, true)
	healthyDone := selectAsync(manager, healthy, InterestRead)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := manager.Select(ctx, broken, InterestRead)
	var cancelled *CancelledError
	require.ErrorAs(t, err, &cancelled)
	require.Equal(t, int64(1), manager.Cancelled())

	_, err = unix.Write(remote, []byte{1})
	require.NoError(t, err)
	select {
	case err = <-healthyDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("unrelated selectable not resumed after a registration failure")
	}
}
