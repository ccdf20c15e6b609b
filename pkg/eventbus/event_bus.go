// Package eventbus provides the notification fan-out for run session updates.
package eventbus

import (
	"context"

	"github.com/dukex/gragraf/pkg/events"
)

// Event is anything published on the bus. In practice it is an events.SessionUpdated.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends session updates. The key is the run's thread id and travels in
// the message metadata.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber delivers session updates to handlers registered per event type.
// Handlers must be registered before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives the decoded update. A returned error nacks the message.
type EventHandler func(ctx context.Context, update any) error

// EventBus is the combined publisher and subscriber used by the controller and its
// observers (CLI printer, API).
type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
