package channel

import (
	"context"
	"io"

	E "github.com/sagernet/sing-cio/common/exceptions"
)

// FromReader returns a channel fed from reader until it reports io.EOF.
// Other reader errors cancel the channel.
func FromReader(ctx context.Context, reader io.Reader, options ...Option) *ByteChannel {
	return Writer(ctx, func(ctx context.Context, writer WriteChannel) error {
		for {
			buffer, err := writer.WriteBuffer()
			if err != nil {
				return err
			}
			n, err := reader.Read(buffer.FreeBytes())
			buffer.Commit(n)
			if flushErr := writer.Flush(ctx); flushErr != nil {
				return flushErr
			}
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return E.Cause(err, "read source")
			}
		}
	}, options...).Channel
}

type channelReader struct {
	ctx     context.Context
	channel ReadChannel
}

// AsReader adapts c to io.Reader. Reads block under ctx.
func AsReader(ctx context.Context, c ReadChannel) io.Reader {
	return &channelReader{ctx, c}
}

func (r *channelReader) Read(p []byte) (n int, err error) {
	return ReadAvailable(r.ctx, r.channel, p)
}

func (r *channelReader) WriteTo(w io.Writer) (n int64, err error) {
	return readTo(r.ctx, r.channel, w, 1<<63-1)
}

type channelWriter struct {
	ctx     context.Context
	channel WriteChannel
}

// AsWriter adapts c to io.WriteCloser. Every Write flushes.
func AsWriter(ctx context.Context, c WriteChannel) io.WriteCloser {
	return &channelWriter{ctx, c}
}

func (w *channelWriter) Write(p []byte) (n int, err error) {
	err = WriteFully(w.channel, p)
	if err != nil {
		return
	}
	err = w.channel.Flush(w.ctx)
	if err != nil {
		return
	}
	return len(p), nil
}

func (w *channelWriter) Close() error {
	return w.channel.FlushAndClose(w.ctx)
}
