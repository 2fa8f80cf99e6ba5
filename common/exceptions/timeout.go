package exceptions

import (
	"errors"
	"fmt"
	"net"
)

type TimeoutError interface {
	Timeout() bool
}

func IsTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		//nolint:staticcheck
		return netErr.Temporary() && netErr.Timeout()
	}
	if timeoutErr, isTimeout := Cast[TimeoutError](err); isTimeout {
		return timeoutErr.Timeout()
	}
	return false
}

type timeoutError struct {
	message string
}

func (e *timeoutError) Error() string {
	return e.message
}

func (e *timeoutError) Timeout() bool {
	return true
}

func (e *timeoutError) Temporary() bool {
	return true
}

var _ net.Error = (*timeoutError)(nil)

// NewTimeout creates a net.Error reporting Timeout.
func NewTimeout(message ...any) error {
	return &timeoutError{fmt.Sprint(message...)}
}
