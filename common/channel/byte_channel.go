package channel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sagernet/sing-cio/common/buf"
	"github.com/sagernet/sing-cio/common/suspend"
)

var (
	_ ReadChannel  = (*ByteChannel)(nil)
	_ WriteChannel = (*ByteChannel)(nil)
)

type closeToken struct {
	cause error
}

// ByteChannel is a single-producer single-consumer byte stream.
//
// The producer stages bytes in its write buffer and publishes them with
// Flush. The consumer pulls published bytes into its read buffer. Only the
// handoff between the two goes through flushAccess.
type ByteChannel struct {
	highWaterMark int

	writeBuffer buf.Chain
	readBuffer  buf.Chain

	flushAccess     sync.Mutex
	flushBuffer     buf.Chain
	flushBufferSize atomic.Int64

	closed    atomic.Pointer[closeToken]
	readSlot  suspend.Slot
	writeSlot suspend.Slot
}

type Option func(c *ByteChannel)

func WithHighWaterMark(size int) Option {
	return func(c *ByteChannel) {
		if size > 0 {
			c.highWaterMark = size
		}
	}
}

func New(options ...Option) *ByteChannel {
	channel := &ByteChannel{highWaterMark: DefaultHighWaterMark}
	for _, option := range options {
		option(channel)
	}
	return channel
}

func (c *ByteChannel) AwaitContent(ctx context.Context, min int) (bool, error) {
	if cause := c.ClosedCause(); cause != nil {
		return false, cause
	}
	for c.readBuffer.Len() < min {
		if c.flushBufferSize.Load() > 0 {
			c.moveFlushToReadBuffer()
			continue
		}
		if c.closed.Load() != nil {
			if c.flushBufferSize.Load() > 0 {
				continue
			}
			break
		}
		err := c.readSlot.SleepWhile(ctx, func() bool {
			return c.flushBufferSize.Load() == 0 && c.closed.Load() == nil
		})
		if err != nil {
			return false, err
		}
	}
	if c.readBuffer.Len() < c.highWaterMark && c.flushBufferSize.Load() > 0 {
		c.moveFlushToReadBuffer()
	}
	if cause := c.ClosedCause(); cause != nil {
		return false, cause
	}
	return c.readBuffer.Len() >= min, nil
}

func (c *ByteChannel) ReadBuffer() (*buf.Chain, error) {
	if cause := c.ClosedCause(); cause != nil {
		return nil, cause
	}
	if c.readBuffer.IsEmpty() {
		c.moveFlushToReadBuffer()
	}
	return &c.readBuffer, nil
}

func (c *ByteChannel) WriteBuffer() (*buf.Chain, error) {
	token := c.closed.Load()
	if token != nil {
		if token.cause != nil {
			return nil, token.cause
		}
		return nil, ErrClosedForWrite
	}
	return &c.writeBuffer, nil
}

// Flush publishes staged bytes and blocks while the published but
// unconsumed byte count is at or above the high-water mark.
func (c *ByteChannel) Flush(ctx context.Context) error {
	if cause := c.ClosedCause(); cause != nil {
		return cause
	}
	c.flushWriteBuffer()
	if c.flushBufferSize.Load() < int64(c.highWaterMark) {
		return nil
	}
	err := c.writeSlot.SleepWhile(ctx, func() bool {
		return c.flushBufferSize.Load() >= int64(c.highWaterMark) && c.closed.Load() == nil
	})
	if err != nil {
		return err
	}
	return c.ClosedCause()
}

func (c *ByteChannel) flushWriteBuffer() {
	if c.writeBuffer.IsEmpty() {
		return
	}
	c.flushAccess.Lock()
	moved := c.writeBuffer.MoveTo(&c.flushBuffer, -1)
	c.flushBufferSize.Add(int64(moved))
	c.flushAccess.Unlock()
	c.readSlot.Resume()
}

func (c *ByteChannel) moveFlushToReadBuffer() {
	c.flushAccess.Lock()
	moved := c.flushBuffer.MoveTo(&c.readBuffer, -1)
	c.flushBufferSize.Add(-int64(moved))
	c.flushAccess.Unlock()
	c.writeSlot.Resume()
}

// Close publishes staged bytes regardless of backpressure and marks the
// channel closed for write. It must be called by the producer.
func (c *ByteChannel) Close() error {
	c.flushWriteBuffer()
	c.markClosed()
	return nil
}

// FlushAndClose flushes respecting backpressure, then closes. The channel is
// closed even if the flush fails.
func (c *ByteChannel) FlushAndClose(ctx context.Context) error {
	err := c.Flush(ctx)
	c.flushWriteBuffer()
	c.markClosed()
	return err
}

func (c *ByteChannel) markClosed() {
	if !c.closed.CompareAndSwap(nil, &closeToken{}) {
		return
	}
	c.readSlot.Close(nil)
	c.writeSlot.Close(nil)
}

func (c *ByteChannel) CloseWithError(cause error) error {
	if cause == nil {
		return c.Close()
	}
	c.Cancel(cause)
	return nil
}

// Cancel fails every current and future operation with a *CancelledError
// wrapping cause. Only the first call takes effect.
func (c *ByteChannel) Cancel(cause error) {
	token := &closeToken{cause: Cancelled(cause)}
	if !c.closed.CompareAndSwap(nil, token) {
		return
	}
	c.readSlot.Close(token.cause)
	c.writeSlot.Close(token.cause)
}

func (c *ByteChannel) ClosedCause() error {
	token := c.closed.Load()
	if token == nil {
		return nil
	}
	return token.cause
}

func (c *ByteChannel) IsClosedForWrite() bool {
	return c.closed.Load() != nil
}

func (c *ByteChannel) IsClosedForRead() bool {
	token := c.closed.Load()
	if token == nil {
		return false
	}
	if token.cause != nil {
		return true
	}
	return c.flushBufferSize.Load() == 0 && c.readBuffer.IsEmpty()
}
