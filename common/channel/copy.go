package channel

import (
	"context"
	"math"
)

func CopyTo(ctx context.Context, source ReadChannel, destination WriteChannel) (int64, error) {
	return CopyToLimit(ctx, source, destination, math.MaxInt64)
}

// CopyToLimit moves up to limit bytes, flushing destination after every
// chunk. On failure both sides are cancelled with the error.
func CopyToLimit(ctx context.Context, source ReadChannel, destination WriteChannel, limit int64) (int64, error) {
	var copied int64
	for copied < limit {
		ok, err := source.AwaitContent(ctx, 1)
		if err != nil {
			return copied, copyFailed(source, destination, err)
		}
		if !ok {
			break
		}
		input, err := source.ReadBuffer()
		if err != nil {
			return copied, copyFailed(source, destination, err)
		}
		output, err := destination.WriteBuffer()
		if err != nil {
			return copied, copyFailed(source, destination, err)
		}
		size := int64(input.Len())
		if size > limit-copied {
			size = limit - copied
		}
		copied += int64(input.MoveTo(output, int(size)))
		err = destination.Flush(ctx)
		if err != nil {
			return copied, copyFailed(source, destination, err)
		}
	}
	return copied, nil
}

func copyFailed(source ReadChannel, destination WriteChannel, err error) error {
	source.Cancel(err)
	_ = destination.CloseWithError(err)
	return err
}

// CopyAndClose copies until end of stream, then flushes and closes
// destination.
func CopyAndClose(ctx context.Context, source ReadChannel, destination WriteChannel) (int64, error) {
	copied, err := CopyTo(ctx, source, destination)
	if err != nil {
		return copied, err
	}
	return copied, destination.FlushAndClose(ctx)
}
