package run

import (
	"errors"
	"fmt"
)

// ConnectionLostMessage prefixes the error of a session whose stream died mid-run.
const ConnectionLostMessage = "Connection lost during execution"

var (
	// ErrConnectionLost marks a stream that failed after data had been received.
	ErrConnectionLost = errors.New(ConnectionLostMessage)

	// Resume precondition errors. None of them reach the network.
	ErrMissingThreadID    = errors.New("thread id is required")
	ErrNoPendingInterrupt = errors.New("no interrupt is pending")
	ErrCommentRequired    = errors.New("a comment is required for this decision")
	ErrInvalidDecision    = errors.New("decision must be approved or rejected")
	ErrNotWaiting         = errors.New("session is not waiting for approval")
	ErrSessionNotFound    = errors.New("session not found")

	// ErrStreamActive is returned when a resume is attempted while a read loop for the
	// session is still consuming events.
	ErrStreamActive = errors.New("an event stream is already active for this session")
)

// ResumeError wraps a failed resume dispatched by the interrupt handler.
type ResumeError struct {
	ThreadID string
	NodeID   string
	Err      error
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("resume of thread %s at node %s failed: %v", e.ThreadID, e.NodeID, e.Err)
}

func (e *ResumeError) Unwrap() error {
	return e.Err
}

// IsPreconditionError reports whether err was rejected locally before any request was made.
func IsPreconditionError(err error) bool {
	return errors.Is(err, ErrMissingThreadID) ||
		errors.Is(err, ErrNoPendingInterrupt) ||
		errors.Is(err, ErrCommentRequired) ||
		errors.Is(err, ErrInvalidDecision) ||
		errors.Is(err, ErrNotWaiting)
}
