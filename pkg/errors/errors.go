// Package errors provides coded errors shared by the plinth packages.
//
// Codes are stable strings suitable for the HTTP bridge and for event
// payloads:
//
//	err := errors.New(errors.ErrCodeInvalidConfig, "outline thickness %v must be positive", v)
//	if errors.Is(err, errors.ErrCodeInvalidConfig) {
//	    // reject the mount
//	}
//
//	err = errors.Wrap(errors.ErrCodeFetchFailed, cause, "fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	// Construction and lookup
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
	ErrCodeMissingMount  Code = "MISSING_MOUNT"

	// Asset loading
	ErrCodeFetchFailed  Code = "FETCH_FAILED"
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeDecodeFailed Code = "DECODE_FAILED"
	ErrCodeUnsupported  Code = "UNSUPPORTED"

	// Viewer state
	ErrCodeDisposed    Code = "DISPOSED"
	ErrCodeNoSelection Code = "NO_SELECTION"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates an Error wrapping cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether any *Error in err's chain carries code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode returns the code of the outermost *Error in err's chain, or "".
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns the message without the code prefix for coded errors,
// and err.Error() otherwise.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
