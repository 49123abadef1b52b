package msgchannel

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeNotConnected = "not_connected"
	CodeBusy         = "busy"
	CodeRemote       = "remote"
	CodeEncoding     = "encoding"
	CodeTimeout      = "timeout"
)

// Sentinels matched by Error through errors.Is.
var (
	ErrNotConnected = errors.New("message channel not connected")
	ErrBusy         = errors.New("message channel busy")
)

// Error is returned through operation completions.
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

// Is matches ErrNotConnected and ErrBusy by code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotConnected:
		return e.Code == CodeNotConnected
	case ErrBusy:
		return e.Code == CodeBusy
	}
	return false
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// RemoteError builds the error for a reply with OK=false.
func RemoteError(r Reply) *Error {
	msg := r.Error
	if r.Code != "" {
		msg = r.Code + ": " + msg
	}
	return &Error{Code: CodeRemote, Message: msg}
}
