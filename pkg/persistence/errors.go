// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionNotFound indicates no session is stored for the given thread id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidThreadID indicates a thread id that cannot be used as a storage key.
	ErrInvalidThreadID = errors.New("invalid thread id")
)

// SessionError wraps session-related errors with additional context.
type SessionError struct {
	Op       string // Operation being performed (e.g., "Get", "Save", "Delete")
	ThreadID string
	Err      error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s operation failed for session %s: %v", e.Op, e.ThreadID, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for session errors.
func (e *SessionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewSessionError creates a new session error with context.
func NewSessionError(op, threadID string, err error) *SessionError {
	return &SessionError{
		Op:       op,
		ThreadID: threadID,
		Err:      err,
	}
}

// IsSessionNotFound checks if an error indicates a session was not found.
func IsSessionNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// ValidateThreadID rejects ids that are empty or could escape a storage namespace.
func ValidateThreadID(threadID string) error {
	if threadID == "" {
		return fmt.Errorf("%w: thread id cannot be empty", ErrInvalidThreadID)
	}

	if strings.Contains(threadID, "..") || strings.ContainsAny(threadID, "/\\") {
		return fmt.Errorf("%w: thread id contains invalid characters", ErrInvalidThreadID)
	}

	return nil
}
