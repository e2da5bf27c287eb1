package apperr

import (
	"errors"
	"fmt"
)

const (
	CodeConfiguration = "configuration"
	CodeValidation    = "validation"
	CodeNotFound      = "not_found"
	CodeConflict      = "conflict"
	CodeUnavailable   = "unavailable"
	CodeInternal      = "internal"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("version conflict")
)

type Error struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func StatusForCode(code string) int {
	switch code {
	case CodeConfiguration, CodeValidation:
		return 400
	case CodeNotFound:
		return 404
	case CodeConflict:
		return 409
	case CodeUnavailable:
		return 503
	default:
		return 500
	}
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: StatusForCode(code)}
}

func Wrap(code string, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Status: StatusForCode(code), Err: err}
}

func NotFound(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...), Status: 404, Err: ErrNotFound}
}

func Conflict(format string, args ...any) error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...), Status: 409, Err: ErrConflict}
}

func Validation(format string, args ...any) error {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

// ConfigurationError reports malformed engine input. Invariant names the
// broken structural rule, e.g. "five_forces" or "intensity_range".
type ConfigurationError struct {
	Invariant string
	Detail    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %s", e.Invariant, e.Detail)
}

func (e *ConfigurationError) Unwrap() error {
	return New(CodeConfiguration, e.Detail)
}

func Configuration(invariant, format string, args ...any) error {
	return &ConfigurationError{Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
}

// As resolves err to an *Error, falling back to an internal error.
func As(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Code: CodeInternal, Message: err.Error(), Status: 500, Err: err}
}

func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
