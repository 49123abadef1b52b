package vdevice

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeRegistrationFailed = "registration_failed"
	CodeFormatMismatch     = "format_mismatch"
	CodeInactive           = "inactive"
)

// Sentinels matched by Error through errors.Is.
var (
	ErrRegistrationFailed = errors.New("device registration failed")
	ErrFormatMismatch     = errors.New("frame does not match the active format")
	ErrInactive           = errors.New("stream inactive")
)

// Error is returned by device and receiver operations.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorCode lets the message channel reply with the code.
func (e *Error) ErrorCode() string {
	return e.Code
}

// Is matches the package sentinels by code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrRegistrationFailed:
		return e.Code == CodeRegistrationFailed
	case ErrFormatMismatch:
		return e.Code == CodeFormatMismatch
	case ErrInactive:
		return e.Code == CodeInactive
	}
	return false
}

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
