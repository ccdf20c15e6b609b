package events

import (
	"slices"
	"time"

	"github.com/dukex/gragraf/pkg/models"
)

// EventType names the notifications published on the session event bus.
type EventType string

// SessionTopic carries every session notification.
const SessionTopic = "gragraf.sessions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	SessionStartedEvent     EventType = "session.started"
	SessionProgressedEvent  EventType = "session.progressed"
	SessionInterruptedEvent EventType = "session.interrupted"
	SessionResumedEvent     EventType = "session.resumed"
	SessionCompletedEvent   EventType = "session.completed"
	SessionFailedEvent      EventType = "session.failed"
)

// SessionUpdated is a read-only snapshot of a session after a state change.
type SessionUpdated struct {
	ID        string                   `json:"id"`
	Type      EventType                `json:"type"`
	Timestamp time.Time                `json:"timestamp"`
	ThreadID  string                   `json:"thread_id"`
	Session   *models.RunSession       `json:"session"`
	Interrupt *models.InterruptRequest `json:"interrupt,omitempty"`
}

func (s SessionUpdated) GetType() EventType {
	return s.Type
}

// NewSessionUpdated snapshots session. The interrupt is attached only while it is pending.
func NewSessionUpdated(id string, eventType EventType, session *models.RunSession, interrupt *models.InterruptRequest) SessionUpdated {
	var pending *models.InterruptRequest

	if interrupt != nil {
		i := *interrupt
		pending = &i
	}

	return SessionUpdated{
		ID:        id,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ThreadID:  session.ThreadID,
		Session:   session.Clone(),
		Interrupt: pending,
	}
}

// EventTypeForStatus picks the notification type describing a session's current status.
func EventTypeForStatus(status models.RunStatus) EventType {
	switch status {
	case models.RunStatusCompleted:
		return SessionCompletedEvent
	case models.RunStatusFailed:
		return SessionFailedEvent
	case models.RunStatusWaitingForApproval:
		return SessionInterruptedEvent
	default:
		return SessionProgressedEvent
	}
}

// SessionEventTypes lists every session notification type.
var SessionEventTypes = []EventType{
	SessionStartedEvent,
	SessionProgressedEvent,
	SessionInterruptedEvent,
	SessionResumedEvent,
	SessionCompletedEvent,
	SessionFailedEvent,
}

// IsSessionEventType reports whether t is a known session notification type.
func IsSessionEventType(t EventType) bool {
	return slices.Contains(SessionEventTypes, t)
}
