package exceptions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

type Exception interface {
	error
	Cause() error
}

type causeError struct {
	message string
	cause   error
}

func (e *causeError) Error() string {
	return e.message + ": " + e.cause.Error()
}

func (e *causeError) Cause() error {
	return e.cause
}

func (e *causeError) Unwrap() error {
	return e.cause
}

type extendedError struct {
	message string
	cause   error
}

func (e *extendedError) Error() string {
	if e.message == "" {
		return e.cause.Error()
	}
	return e.cause.Error() + ": " + e.message
}

func (e *extendedError) Cause() error {
	return e.cause
}

func (e *extendedError) Unwrap() error {
	return e.cause
}

func New(message ...any) error {
	return errors.New(fmt.Sprint(message...))
}

// Cause prefixes cause with message, "message: cause".
func Cause(cause error, message ...any) error {
	if cause == nil {
		panic("cause on an nil error")
	}
	return &causeError{fmt.Sprint(message...), cause}
}

// Extend suffixes cause with message, "cause: message".
func Extend(cause error, message ...any) error {
	if cause == nil {
		panic("extend on an nil error")
	}
	return &extendedError{fmt.Sprint(message...), cause}
}

func IsClosedOrCanceled(err error) bool {
	return IsMulti(err, io.EOF, net.ErrClosed, io.ErrClosedPipe, os.ErrClosed, syscall.EPIPE, syscall.ECONNRESET, syscall.ENOTCONN, context.Canceled, context.DeadlineExceeded)
}

func IsClosed(err error) bool {
	return IsMulti(err, io.EOF, net.ErrClosed, io.ErrClosedPipe, os.ErrClosed, syscall.EPIPE, syscall.ECONNRESET, syscall.ENOTCONN)
}
