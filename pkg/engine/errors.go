package engine

import (
	"errors"
	"fmt"
)

// ErrStreamNotEstablished marks failures that happened before the first byte of the
// stream body arrived. Callers may fall back to the non-streaming endpoint.
var ErrStreamNotEstablished = errors.New("event stream not established")

// HTTPError represents a non-success response from the engine.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// StreamError wraps the cause of a stream that could not be established.
type StreamError struct {
	ThreadID string
	Err      error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%v for thread %s: %v", ErrStreamNotEstablished, e.ThreadID, e.Err)
}

func (e *StreamError) Unwrap() []error {
	return []error{ErrStreamNotEstablished, e.Err}
}

// IsStreamNotEstablished reports whether err happened before any stream data arrived.
func IsStreamNotEstablished(err error) bool {
	return errors.Is(err, ErrStreamNotEstablished)
}
