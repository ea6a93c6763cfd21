// Package errors provides structured errors for seisqc.
// Errors carry a code, context and a short stack trace.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Ingest errors (1xx)
	CodeInvalidEntry   Code = "E101"
	CodeStreamMismatch Code = "E102"
	CodeDecodeFailed   Code = "E103"

	// Plugin errors (2xx)
	CodeUnknownPlugin Code = "E201"

	// Output errors (3xx)
	CodeSinkFailure Code = "E301"

	// Configuration errors (4xx)
	CodeConfigParse   Code = "E401"
	CodeConfigInvalid Code = "E402"

	CodeUnknown Code = "E999"
)

// QCError is the base error type of seisqc.
type QCError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *QCError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *QCError) Unwrap() error {
	return e.Cause
}

// Is matches any *QCError with the same code.
func (e *QCError) Is(target error) bool {
	if t, ok := target.(*QCError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *QCError) WithContext(key string, value interface{}) *QCError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new QCError.
func New(code Code, message string) *QCError {
	return &QCError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error. It returns nil when err is nil.
func Wrap(err error, code Code, message string) *QCError {
	if err == nil {
		return nil
	}

	return &QCError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *QCError {
	if err == nil {
		return nil
	}
	e := Wrap(err, code, fmt.Sprintf(format, args...))
	e.StackTrace = captureStack(2)
	return e
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *QCError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// InvalidEntry reports a QC parameter rejected at append.
func InvalidEntry(reason string) *QCError {
	return New(CodeInvalidEntry, "invalid qc parameter").WithContext("reason", reason)
}

// StreamMismatch reports a push into a buffer bound to another stream.
func StreamMismatch(bound, got string) *QCError {
	return New(CodeStreamMismatch, "buffer bound to another stream").
		WithContext("bound", bound).
		WithContext("got", got)
}

// UnknownPlugin reports a lookup of an unregistered QC plugin.
func UnknownPlugin(name string) *QCError {
	return New(CodeUnknownPlugin, "unknown qc plugin").WithContext("name", name)
}

// SinkFailure wraps an error returned by a report sink.
func SinkFailure(sink string, err error) *QCError {
	return Wrap(err, CodeSinkFailure, "report sink failed").WithContext("sink", sink)
}

// ConfigParse wraps a configuration decoding error for key.
func ConfigParse(key string, err error) *QCError {
	return Wrap(err, CodeConfigParse, "cannot parse configuration option").WithContext("key", key)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var qcErr *QCError
	if errors.As(err, &qcErr) {
		return qcErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var qcErr *QCError
	if errors.As(err, &qcErr) {
		return qcErr.Code
	}
	return CodeUnknown
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
