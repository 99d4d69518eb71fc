// Package errors provides the typed errors returned by strategies and the scaling engine.
package errors

import (
	"errors"
	"fmt"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// Error kinds. Every failure inside the pipeline carries exactly one of these.
const (
	KindConfiguration = "Configuration"
	KindPrecondition  = "Precondition"
	KindConsistency   = "Consistency"
	KindNotFound      = "NotFound"
)

// FieldError names a single offending configuration or dataset field.
type FieldError struct {
	Kind    string `json:"kind"`
	Field   string `json:"field"`
	Message string `json:"message,omitempty"`
}

func (f *FieldError) Error() string {
	return fmt.Sprintf("%s (%s): %s", f.Field, f.Kind, f.Message)
}

func NewFieldError(kind, field, reason string) FieldError {
	return FieldError{Kind: kind, Field: field, Message: reason}
}

// Sentinels usable with errors.Is.
var (
	Configuration *Error = NewWithKind(KindConfiguration)
	Precondition  *Error = NewWithKind(KindPrecondition)
	Consistency   *Error = NewWithKind(KindConsistency)
	NotFound      *Error = NewWithKind(KindNotFound)
)

// Error is a custom error type for passing more information
type Error struct {
	// Kind is the returned error type
	Kind string `json:"kind"`
	// Message is the human readable string that indicate the error
	Message string `json:"message"`
	// Fields lists the missing or invalid fields, if any.
	Fields []FieldError `json:"fields,omitempty"`

	cause error
}

var _ error = (*Error)(nil)

func New(message string) *Error {
	return &Error{Kind: "Unknown", Message: message}
}

func NewWithKind(kind string) *Error {
	return &Error{Kind: kind}
}

func Wrap(err error) *Error {
	return &Error{cause: err}
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s] ", e.Kind)
	if e.Message != "" {
		str += e.Message
	}
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	return str
}

// Reason returns a copy of the error with kind set to given value
func (e *Error) Reason(kind string) *Error {
	err := *e
	err.Kind = kind
	return &err
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Wrap returns a copy of the error with the cause set
func (e *Error) Wrap(cause error) *Error {
	err := *e
	err.cause = cause
	return &err
}

// Explain makes a copy of the error with given message
func (e *Error) Explain(message string, args ...any) *Error {
	err := *e
	err.Message = fmt.Sprintf(message, args...)
	return &err
}

// WithField returns a copy of error with the field appended.
func (e *Error) WithField(kind, field, message string) *Error {
	newError := *e
	newError.Fields = append(append([]FieldError(nil), e.Fields...), NewFieldError(kind, field, message))
	return &newError
}

// Field returns the first offending field name, or "".
func (e *Error) Field() string {
	if e == nil || len(e.Fields) == 0 {
		return ""
	}
	return e.Fields[0].Field
}

// Is implements the needed interface for errors.Is
// It checks kind for equality
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if other, ok := target.(*Error); ok {
		return other.Kind == e.Kind
	}
	if e.cause != nil {
		return Is(e.cause, target)
	}
	return false
}

// MissingConfig reports a required param_config key that is absent.
func MissingConfig(key, scope string) *Error {
	return Configuration.
		Explain("Missing %s in %s", key, scope).
		WithField("missing", key, "required")
}

// MissingDataset reports a required dataset key that is absent from a bundle.
func MissingDataset(key string) *Error {
	return Precondition.
		Explain("Missing %s in dataset", key).
		WithField("missing", key, "required")
}

// Configurationf builds a configuration error.
func Configurationf(format string, args ...any) *Error {
	return Configuration.Explain(format, args...)
}

// Preconditionf builds a precondition error.
func Preconditionf(format string, args ...any) *Error {
	return Precondition.Explain(format, args...)
}

// Consistencyf builds a consistency error.
func Consistencyf(format string, args ...any) *Error {
	return Consistency.Explain(format, args...)
}

// NotFoundf builds a not-found error.
func NotFoundf(format string, args ...any) *Error {
	return NotFound.Explain(format, args...)
}

// FieldOf extracts the first offending field of err, if err is an *Error.
func FieldOf(err error) string {
	var e *Error
	if As(err, &e) {
		return e.Field()
	}
	return ""
}
