package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers and handlers can react without string matching
type ErrorKind string

const (
	KindConfiguration   ErrorKind = "configuration"
	KindValidation      ErrorKind = "validation"
	KindDataUnavailable ErrorKind = "data_unavailable"
	KindOptimization    ErrorKind = "optimization"
	KindNotFound        ErrorKind = "not_found"
	KindUnknown         ErrorKind = "unknown"
)

// ConfigurationError means a config document is malformed or inconsistent.
// It is fatal at startup; at request time it signals a misconfigured service.
type ConfigurationError struct {
	Source string
	Msg    string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return formatError("configuration error", e.Source, e.Msg, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ValidationError means a caller supplied an invalid request
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Msg
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Msg)
}

// DataUnavailableError means no live, cached or backup data could be produced
type DataUnavailableError struct {
	Fund string
	Msg  string
	Err  error
}

func (e *DataUnavailableError) Error() string {
	return formatError("data unavailable", e.Fund, e.Msg, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// OptimizationError means the solver failed to converge or the problem is infeasible
type OptimizationError struct {
	Problem string
	Msg     string
	Err     error
}

func (e *OptimizationError) Error() string {
	return formatError("optimization failed", e.Problem, e.Msg, e.Err)
}

func (e *OptimizationError) Unwrap() error { return e.Err }

// NotFoundError means a requested resource does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ConfigErrorf builds a ConfigurationError with a formatted message
func ConfigErrorf(source, format string, args ...interface{}) error {
	return &ConfigurationError{Source: source, Msg: fmt.Sprintf(format, args...)}
}

// ValidationErrorf builds a ValidationError with a formatted message
func ValidationErrorf(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the taxonomy kind of err, looking through wrapping
func KindOf(err error) ErrorKind {
	var cfgErr *ConfigurationError
	var valErr *ValidationError
	var dataErr *DataUnavailableError
	var optErr *OptimizationError
	var notFound *NotFoundError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &valErr):
		return KindValidation
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &dataErr):
		return KindDataUnavailable
	case errors.As(err, &optErr):
		return KindOptimization
	case errors.As(err, &cfgErr):
		return KindConfiguration
	default:
		return KindUnknown
	}
}

func formatError(prefix, subject, msg string, err error) string {
	s := prefix
	if subject != "" {
		s += " (" + subject + ")"
	}
	if msg != "" {
		s += ": " + msg
	}
	if err != nil {
		s += ": " + err.Error()
	}
	return s
}
