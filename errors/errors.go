// Package errors defines the error taxonomy shared by the pipeline, the
// built-in middlewares and the provider adapters. Every error carries a
// stable code used both for logging and for response mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind tags the variant of an AppError.
type Kind string

const (
	KindApplication  Kind = "application"
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindAggregate    Kind = "aggregate"
)

// AppError is the single error type produced by fnkit. The Kind selects which
// of Violations or Failures is meaningful.
type AppError struct {
	Kind       Kind
	Code       string
	Message    string
	Status     int
	Data       map[string]any
	Violations []Violation
	Failures   []Failure
	Cause      error
}

// Violation describes one failed schema constraint.
type Violation struct {
	Field    string `json:"field"`
	Kind     string `json:"kind"`
	Expected string `json:"expected,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Failure is one sub-error of an aggregate.
type Failure struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Err     error          `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	switch e.Kind {
	case KindValidation:
		if len(e.Violations) > 0 {
			fmt.Fprintf(&b, " (%d violations)", len(e.Violations))
		}
	case KindAggregate:
		fmt.Fprintf(&b, " (%d failures)", len(e.Failures))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap exposes the cause and, for aggregates, every sub-error so that
// errors.Is and errors.As can look through them.
func (e *AppError) Unwrap() []error {
	var errs []error
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// WithData attaches a data entry and returns the same error.
func (e *AppError) WithData(key string, value any) *AppError {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// Application creates a generic application error. A zero status defaults
// to 500.
func Application(code, message string, status int) *AppError {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return &AppError{
		Kind:    KindApplication,
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// Internal creates a 500 application error wrapping cause.
func Internal(message string, cause error) *AppError {
	return Application(CodeInternal, message, http.StatusInternalServerError).WithCause(cause)
}

// NotFound creates a 404 application error.
func NotFound(message string) *AppError {
	return Application(CodeNotFound, message, http.StatusNotFound)
}

// Validation creates a validation error carrying every violation.
func Validation(violations []Violation) *AppError {
	return &AppError{
		Kind:       KindValidation,
		Code:       CodeValidation,
		Message:    "event failed validation",
		Status:     http.StatusBadRequest,
		Violations: violations,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Kind:    KindUnauthorized,
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// Forbidden creates a 403 error of the unauthorized kind.
func Forbidden(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return &AppError{
		Kind:    KindUnauthorized,
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
	}
}

// Aggregate wraps every failure into one error.
func Aggregate(code, message string, failures []Failure) *AppError {
	return &AppError{
		Kind:     KindAggregate,
		Code:     code,
		Message:  message,
		Status:   http.StatusInternalServerError,
		Failures: failures,
	}
}

// FailureFrom converts any error into an aggregate entry, keeping the code and
// data of an AppError when there is one. Other errors get the generic
// internal message; their text stays in Err for logging only.
func FailureFrom(err error, data map[string]any) Failure {
	f := Failure{Code: CodeInternal, Message: InternalMessage, Err: err, Data: data}
	if appErr, ok := As(err); ok {
		f.Code = appErr.Code
		f.Message = appErr.Message
		if len(appErr.Data) > 0 {
			merged := make(map[string]any, len(appErr.Data)+len(data))
			for k, v := range appErr.Data {
				merged[k] = v
			}
			for k, v := range data {
				merged[k] = v
			}
			f.Data = merged
		}
	}
	return f
}

// As finds the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	if err == nil {
		return nil, false
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries an AppError with the given code.
func Is(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// IsKind reports whether err carries an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// StatusOf maps err to an HTTP status, defaulting to 500 for unrecognized
// errors.
func StatusOf(err error) int {
	if appErr, ok := As(err); ok && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// CodeOf returns the error code, or CodeInternal for unrecognized errors.
func CodeOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}
