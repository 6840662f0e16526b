// Package errors is the structured error type shared by the rdpmon
// commands. Every error a user sees names what failed, the underlying
// cause when there is one, and what to do next.
package errors

import (
	"errors"
	"strings"
)

// Codes group errors by the subsystem that raised them. The JSON envelope
// maps them to its own stable codes.
const (
	ErrConfig   = "CONFIG"
	ErrRegistry = "REGISTRY"
	ErrProbe    = "PROBE"
	ErrExec     = "EXEC"
	ErrSSH      = "SSH"
)

// Error is a coded failure with an optional cause and a hint for the user.
// It prints as:
//
//	✗ <Message>
//
//	  <Cause>
//
//	  <Suggestion>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New returns an Error without a cause.
func New(code, message, suggestion string) *Error {
	return &Error{Code: code, Message: message, Suggestion: suggestion}
}

// WrapWithCode returns an Error whose cause is err.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	e := New(code, message, suggestion)
	e.Cause = err
	return e
}

func (e *Error) Error() string {
	sections := []string{"✗ " + e.Message}
	if e.Cause != nil {
		sections = append(sections, "  "+e.Cause.Error())
	}
	if e.Suggestion != "" {
		sections = append(sections, "  "+e.Suggestion)
	}
	return strings.Join(sections, "\n\n") + "\n"
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// CodeOf returns the code of the outermost *Error in err's chain, or ""
// when there is none.
func CodeOf(err error) string {
	var coded *Error
	if err == nil || !errors.As(err, &coded) {
		return ""
	}
	return coded.Code
}

// IsCode reports whether err carries an *Error with the given code.
func IsCode(err error, code string) bool {
	return code != "" && CodeOf(err) == code
}
