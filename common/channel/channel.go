package channel

import (
	"context"

	"github.com/sagernet/sing-cio/common/buf"
	E "github.com/sagernet/sing-cio/common/exceptions"
)

// DefaultHighWaterMark bounds the flushed but unconsumed bytes of a channel.
const DefaultHighWaterMark = 8 * 1024

type ReadChannel interface {
	// AwaitContent blocks until at least min bytes are readable or nothing
	// more can arrive, reporting whether min bytes are available.
	AwaitContent(ctx context.Context, min int) (bool, error)
	// ReadBuffer returns the consumer-local buffer.
	ReadBuffer() (*buf.Chain, error)
	IsClosedForRead() bool
	ClosedCause() error
	Cancel(cause error)
}

type WriteChannel interface {
	// WriteBuffer returns the producer-local staging buffer.
	WriteBuffer() (*buf.Chain, error)
	Flush(ctx context.Context) error
	FlushAndClose(ctx context.Context) error
	Close() error
	CloseWithError(cause error) error
	Cancel(cause error)
	IsClosedForWrite() bool
	ClosedCause() error
}

var (
	ErrClosedForWrite    = E.New("channel closed for write")
	ErrCancelled         = E.New("channel cancelled")
	ErrLineTooLong       = E.New("line exceeds limit")
	ErrDelimiterMismatch = E.New("delimiter mismatch")
)

type CancelledError struct {
	cause error
}

func Cancelled(cause error) error {
	if cause == nil {
		cause = context.Canceled
	}
	if cancelled, isCancelled := E.Cast[*CancelledError](cause); isCancelled {
		return cancelled
	}
	return &CancelledError{cause}
}

func (e *CancelledError) Error() string {
	return "channel cancelled: " + e.cause.Error()
}

func (e *CancelledError) Unwrap() error {
	return e.cause
}

func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}
