package suspend

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	E "github.com/sagernet/sing-cio/common/exceptions"

	"github.com/stretchr/testify/require"
)

func TestSlotResume(t *testing.T) {
	t.Parallel()
	var (
		slot  Slot
		ready atomic.Bool
	)
	done := make(chan error, 1)
	go func() {
		done <- slot.SleepWhile(context.Background(), func() bool { return !ready.Load() })
	}()
	time.Sleep(20 * time.Millisecond)
	ready.Store(true)
	slot.Resume()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not resumed")
	}
}

func TestSlotNoLostWakeup(t *testing.T) {
	t.Parallel()
	for i := 0; i < 1000; i++ {
		var (
			slot  Slot
			ready atomic.Bool
		)
		done := make(chan error, 1)
		go func() {
			done <- slot.SleepWhile(context.Background(), func() bool { return !ready.Load() })
		}()
		ready.Store(true)
		slot.Resume()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("wakeup lost at iteration ", i)
		}
	}
}

func TestSlotClose(t *testing.T) {
	t.Parallel()
	var slot Slot
	cause := E.New("shutdown")
	done := make(chan error, 1)
	go func() {
		done <- slot.SleepWhile(context.Background(), func() bool { return true })
	}()
	time.Sleep(20 * time.Millisecond)
	slot.Close(cause)
	slot.Close(E.New("ignored"))
	select {
	case err := <-done:
		require.ErrorIs(t, err, cause)
	case <-time.After(time.Second):
		t.Fatal("waiter not resumed on close")
	}
	require.True(t, slot.IsClosed())
	require.ErrorIs(t, slot.Cause(), cause)
	require.ErrorIs(t, slot.SleepWhile(context.Background(), func() bool { return true }), cause)
	require.NoError(t, slot.SleepWhile(context.Background(), func() bool { return false }))
}

func TestSlotContextCancel(t *testing.T) {
	t.Parallel()
	var slot Slot
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := slot.SleepWhile(ctx, func() bool { return true })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, slot.IsClosed())
	slot.Resume()
}

func TestSlotDisplacedWaiter(t *testing.T) {
	t.Parallel()
	var slot Slot
	first := make(chan error, 1)
	go func() {
		first <- slot.SleepWhile(context.Background(), func() bool { return true })
	}()
	time.Sleep(20 * time.Millisecond)
	second := make(chan error, 1)
	go func() {
		second <- slot.SleepWhile(context.Background(), func() bool { return true })
	}()
	select {
	case err := <-first:
		require.ErrorIs(t, err, ErrConcurrentWait)
	case <-time.After(time.Second):
		t.Fatal("displaced waiter not resumed")
	}
	slot.Close(nil)
	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second waiter not resumed")
	}
}
