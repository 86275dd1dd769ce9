package client

import (
	"context"
	"errors"
	"fmt"
)

// StatusError is returned when the service answers with a non-2xx status
type StatusError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

// DecodeError is returned when a response body cannot be parsed
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether err comes from a request whose context was cancelled,
// which is how superseded polls end
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
