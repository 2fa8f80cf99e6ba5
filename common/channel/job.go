package channel

import (
	"context"
)

// Job is a goroutine bound to a channel.
type Job struct {
	Channel *ByteChannel
	done    chan struct{}
	err     error
}

func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err returns the block result once Done is closed.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Writer runs block as the producer of a new channel. A failing block
// cancels the channel. A returning block flushes and closes it.
func Writer(ctx context.Context, block func(ctx context.Context, writer WriteChannel) error, options ...Option) *Job {
	job := &Job{
		Channel: New(options...),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(job.done)
		err := block(ctx, job.Channel)
		if err != nil {
			job.Channel.Cancel(err)
			job.err = err
			return
		}
		job.err = job.Channel.FlushAndClose(ctx)
	}()
	return job
}

// Reader runs block as the consumer of a new channel. A failing block
// cancels the channel. A returning block closes it, so later writes fail.
func Reader(ctx context.Context, block func(ctx context.Context, reader ReadChannel) error, options ...Option) *Job {
	job := &Job{
		Channel: New(options...),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(job.done)
		err := block(ctx, job.Channel)
		if err != nil {
			job.Channel.Cancel(err)
			job.err = err
			return
		}
		job.Channel.markClosed()
	}()
	return job
}
