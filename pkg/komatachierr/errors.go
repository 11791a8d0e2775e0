// Package komatachierr defines the error taxonomy shared by every component:
// a small closed set of kinds, not an open set of Go error types.
package komatachierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the fixed categories the core
// recognizes. Callers switch on Kind, never on the underlying message.
type Kind string

const (
	NotFound             Kind = "NotFound"
	Corrupt              Kind = "Corrupt"
	IO                   Kind = "IO"
	NotLoaded            Kind = "NotLoaded"
	AlreadyExists        Kind = "AlreadyExists"
	InputTooLarge        Kind = "InputTooLarge"
	ModelCallError       Kind = "ModelCallError"
	TokenBudgetExhausted Kind = "TokenBudgetExhausted"
	CompactionExhausted  Kind = "CompactionExhausted"
	TurnBudgetExhausted  Kind = "TurnBudgetExhausted"
)

// Error is the single error type every component returns. Path is optional
// (set for storage-layer errors); Cause is the wrapped underlying error, if
// any.
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error with no path and no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error that chains an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithPath attaches a file path to the error for diagnostic purposes.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
