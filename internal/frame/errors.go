package frame

import "errors"

// Validation error codes.
const (
	CodeSizeMismatch      = "size_mismatch"
	CodeInsufficientData  = "insufficient_data"
	CodeUnsupportedFormat = "unsupported_format"
	CodeInvalidDimensions = "invalid_dimensions"
)

// ErrInvalidFrame matches every ValidationError via errors.Is.
var ErrInvalidFrame = errors.New("invalid frame")

// ValidationError rejects a single frame. It never aborts a stream.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is reports whether target is ErrInvalidFrame or a ValidationError with the same code.
func (e *ValidationError) Is(target error) bool {
	if target == ErrInvalidFrame {
		return true
	}
	var other *ValidationError
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

// HasCode reports whether err is a ValidationError with the given code.
func HasCode(err error, code string) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Code == code
	}
	return false
}
