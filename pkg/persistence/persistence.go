// Package persistence provides the storage abstraction for run session checkpoints.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/gragraf/pkg/models"
)

// SessionRecord is the stored client-side state of one thread.
type SessionRecord struct {
	Session   *models.RunSession       `json:"session"`
	Interrupt *models.InterruptRequest `json:"interrupt,omitempty"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// ThreadID returns the thread the record belongs to.
func (r *SessionRecord) ThreadID() string {
	if r == nil || r.Session == nil {
		return ""
	}

	return r.Session.ThreadID
}

// SessionStore keeps the latest session snapshot per thread id so a paused run can be
// resumed from another process.
type SessionStore interface {
	SaveSession(ctx context.Context, record *SessionRecord) error
	SessionByThreadID(ctx context.Context, threadID string) (*SessionRecord, error)
	DeleteSession(ctx context.Context, threadID string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
