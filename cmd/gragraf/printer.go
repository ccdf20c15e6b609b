package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dukex/gragraf/pkg/eventbus"
	"github.com/dukex/gragraf/pkg/events"
)

// progressPrinter writes one line per session update received from the event bus.
type progressPrinter struct {
	mu       sync.Mutex
	out      io.Writer
	threadID string
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

// Follow restricts output to threadID. Updates arriving before it is set are printed.
func (p *progressPrinter) Follow(threadID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.threadID = threadID
}

// Subscribe registers the printer for every session update type on bus.
func (p *progressPrinter) Subscribe(ctx context.Context, bus eventbus.EventSubscriber) error {
	for _, eventType := range events.SessionEventTypes {
		err := bus.Handle(eventType, p.Handle)
		if err != nil {
			return fmt.Errorf("failed to register %s handler: %w", eventType, err)
		}
	}

	return bus.Subscribe(ctx)
}

func (p *progressPrinter) Handle(_ context.Context, event any) error {
	update, ok := event.(*events.SessionUpdated)
	if !ok || update.Session == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.threadID != "" && update.ThreadID != p.threadID {
		return nil
	}

	_, err := fmt.Fprintln(p.out, formatUpdate(update))

	return err
}

func formatUpdate(update *events.SessionUpdated) string {
	s := update.Session
	progress := fmt.Sprintf("%d/%d nodes", s.CompletedNodes, s.TotalNodes)

	switch update.Type {
	case events.SessionStartedEvent:
		return fmt.Sprintf("%s started (%d nodes)", s.ThreadID, s.TotalNodes)
	case events.SessionInterruptedEvent:
		if update.Interrupt == nil {
			return fmt.Sprintf("%s waiting for approval, %s", s.ThreadID, progress)
		}

		return fmt.Sprintf("%s waiting for approval at %s: %s", s.ThreadID, update.Interrupt.NodeID, update.Interrupt.Message)
	case events.SessionResumedEvent:
		return fmt.Sprintf("%s resumed, %s", s.ThreadID, progress)
	case events.SessionCompletedEvent:
		mode := ""
		if s.Fallback {
			mode = " without streaming"
		}

		return fmt.Sprintf("%s completed%s in %s, %s", s.ThreadID, mode, s.Duration, progress)
	case events.SessionFailedEvent:
		return fmt.Sprintf("%s failed after %s: %s", s.ThreadID, progress, s.Error)
	default:
		return fmt.Sprintf("%s running, %s", s.ThreadID, progress)
	}
}
