package tcp

import (
	"time"

	E "github.com/sagernet/sing-cio/common/exceptions"
)

var (
	ErrReadTimeout  = E.NewTimeout("socket read timed out")
	ErrWriteTimeout = E.NewTimeout("socket write timed out")
)

type Options struct {
	NoDelay   bool
	KeepAlive bool
	// Linger sets SO_LINGER. Zero keeps the system default, a negative value
	// resets the connection on close.
	Linger            time.Duration
	ReceiveBufferSize int
	SendBufferSize    int
	// ReadTimeout and WriteTimeout bound each wait for readiness. Zero waits
	// forever.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ReuseAddress bool
	Backlog      int
}

func DefaultOptions() Options {
	return Options{
		NoDelay:      true,
		KeepAlive:    true,
		ReuseAddress: true,
	}
}
