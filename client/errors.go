package client

import (
	"errors"
	"fmt"
)

// ErrEmptySegment is matched by every ValidationError raised for a path
// that contains "//" after normalization.
var ErrEmptySegment = errors.New("invalid path: contains empty segments")

// ValidationError reports a malformed path. It is raised before any
// network activity and is never retried.
type ValidationError struct {
	Path   string
	Reason error
}

func (e *ValidationError) Error() string {
	return e.Reason.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// HTTPError is a non-2xx response that was not retried, or the last 5xx
// after retries were exhausted.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// NetworkError wraps a failure that happened before a usable response was
// obtained: connection, DNS, timeout, or an undecodable 2xx body.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not
// an *HTTPError.
func StatusCode(err error) int {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.StatusCode
	}
	return 0
}
