// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidBar      = errors.New("invalid bar")
	ErrOutOfOrderBar   = errors.New("bar out of order")
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrUnsupportedMode = errors.New("unsupported mode")
	ErrSeekOutOfRange  = errors.New("seek target out of range")
	ErrDataNotFound    = errors.New("data not found")
	ErrDatabaseError   = errors.New("database error")
	ErrSinkClosed      = errors.New("sink closed")
	ErrFingerprint     = errors.New("fingerprint mismatch")
)

// BarError reports a bar rejected at the engine boundary.
type BarError struct {
	Index  int
	Field  string
	Reason string
	Err    error
}

func (e *BarError) Error() string {
	return fmt.Sprintf("bar %d rejected [%s]: %s: %v", e.Index, e.Field, e.Reason, e.Err)
}

func (e *BarError) Unwrap() error {
	return e.Err
}

// NewBarError creates a new BarError.
func NewBarError(index int, field, reason string, err error) *BarError {
	return &BarError{
		Index:  index,
		Field:  field,
		Reason: reason,
		Err:    err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError wrapping ErrConfigInvalid.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     ErrConfigInvalid,
	}
}

// NewModeError creates a ValidationError for an unknown mode parameter.
func NewModeError(field string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: "unsupported value",
		Err:     ErrUnsupportedMode,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Stream   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Stream, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Stream, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, stream, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Stream:   stream,
		Message:  message,
		Err:      err,
	}
}

// SinkError represents a failure delivering events to an external sink.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink error [%s]: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// NewSinkError creates a new SinkError.
func NewSinkError(sink string, err error) *SinkError {
	return &SinkError{Sink: sink, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
