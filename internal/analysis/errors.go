package analysis

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is a network-level failure (DNS, TLS, connection reset)
// before the service produced a response. Always worth retrying.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServiceError is a response the service did produce but we cannot use:
// a non-2xx status, a missing header, or a body with an unexpected shape.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("service error (status %d): %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("service error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status class suggests a transient condition.
// Rate limiting and server-side failures are transient; other client errors
// (auth, validation) will not heal on their own.
func (e *ServiceError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ParseError means a succeeded job's payload could not be mapped to a Receipt.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing analysis result: %s", e.Reason)
}

// Retryable classifies an error from any Client operation.
func Retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}
