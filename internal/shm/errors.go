package shm

import (
	"errors"
	"fmt"
)

// Channel error codes.
const (
	CodeAllocationFailed = "allocation_failed"
	CodeMapFailed        = "map_failed"
	CodeConsumerGone     = "consumer_gone"
	CodeClosed           = "closed"
)

// Sentinels matched by ChannelError through errors.Is.
var (
	ErrAllocationFailed = errors.New("shared memory allocation failed")
	ErrMapFailed        = errors.New("shared memory map failed")
	ErrConsumerGone     = errors.New("shared memory segment removed by peer")
	ErrClosed           = errors.New("shared channel closed")
)

// ChannelError is returned by every SharedChannel operation. It is fatal to
// the channel only; callers report "not connected" and carry on.
type ChannelError struct {
	Code    string
	Name    string
	Message string
	Cause   error
}

func (e *ChannelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("shm %s: %s: %v", e.Name, e.Message, e.Cause)
	}
	return fmt.Sprintf("shm %s: %s", e.Name, e.Message)
}

func (e *ChannelError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for e.Code.
func (e *ChannelError) Is(target error) bool {
	switch e.Code {
	case CodeAllocationFailed:
		return target == ErrAllocationFailed
	case CodeMapFailed:
		return target == ErrMapFailed
	case CodeConsumerGone:
		return target == ErrConsumerGone
	case CodeClosed:
		return target == ErrClosed
	}
	return false
}

func newError(code, name, message string, cause error) *ChannelError {
	return &ChannelError{Code: code, Name: name, Message: message, Cause: cause}
}
