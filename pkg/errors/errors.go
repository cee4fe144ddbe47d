// Package errors provides structured error types for tessera.
//
// Every failure in the mosaic pipeline is fatal: nothing is retried, and the
// run aborts with a human-readable message. The codes defined here let the
// CLI and the HTTP server tell failure categories apart without string
// matching:
//   - IMAGE_DECODE: a source or target image could not be decoded
//   - EMPTY_IMAGE, UNREADABLE_PIXELS: color sampling failures
//   - NO_ELIGIBLE_CANDIDATE: every candidate reached the repeat limit
//   - INVALID_CONFIGURATION: out-of-range sizes, limits, or blend factors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeEmptyImage, "cell %v has no pixels", rect)
//	if errors.Is(err, errors.ErrCodeEmptyImage) {
//	    // Handle sampling error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeImageDecode, origErr, "decode %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidConfig Code = "INVALID_CONFIGURATION"
	ErrCodeFileNotFound  Code = "FILE_NOT_FOUND"

	// Image errors
	ErrCodeImageDecode      Code = "IMAGE_DECODE"
	ErrCodeEmptyImage       Code = "EMPTY_IMAGE"
	ErrCodeUnreadablePixels Code = "UNREADABLE_PIXELS"

	// Matching errors
	ErrCodeNoEligibleCandidate Code = "NO_ELIGIBLE_CANDIDATE"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
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

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err carries the given error code anywhere in its chain.
// An outer *Error with a different code does not hide an inner match, so a
// sampling failure wrapped by the grid walker is still reported as such.
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

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// RootCode returns the innermost error code in the chain. This is the code
// that names the original failure (e.g. EMPTY_IMAGE beneath an assignment
// wrapper). Returns empty string if the chain has no *Error.
func RootCode(err error) Code {
	var code Code
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		code = e.Code
		err = e.Cause
	}
	return code
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix, followed by
// the cause's user message when there is one.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + UserMessage(e.Cause)
		}
		return e.Message
	}
	return err.Error()
}
