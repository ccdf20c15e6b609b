package run

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/gragraf/pkg/events"
	"github.com/dukex/gragraf/pkg/models"
	"github.com/dukex/gragraf/pkg/otelhelper"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
)

// HumanInputSuffix is appended to the interrupted node id to form the resume key the
// engine reads the decision from.
const HumanInputSuffix = "_human_input"

var validate = validator.New(validator.WithRequiredStructEnabled())

// PendingInterrupt returns a copy of the approval request awaiting a decision, or nil.
func (c *Controller) PendingInterrupt() *models.InterruptRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	return clonePending(c.interrupt)
}

// ValidateDecision checks decision against interrupt without touching the network.
func ValidateDecision(interrupt models.InterruptRequest, decision models.HumanDecision) error {
	err := validate.Struct(decision)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDecision, err.Error())
	}

	if interrupt.RequireComment && strings.TrimSpace(decision.Comment) == "" {
		return ErrCommentRequired
	}

	return nil
}

// ResumePayload builds the human input sent on resume, keyed by the interrupted node.
func ResumePayload(nodeID string, decision models.HumanDecision) map[string]any {
	return map[string]any{
		nodeID + HumanInputSuffix: map[string]any{
			"decision": string(decision.Decision),
			"comment":  decision.Comment,
		},
	}
}

// Submit answers the pending interrupt and resumes the run on the same thread. An
// invalid decision is rejected locally and leaves the interrupt pending. Once the
// decision is dispatched the interrupt is cleared whatever the outcome; a failed
// resume is returned as a *ResumeError.
func (c *Controller) Submit(ctx context.Context, decision models.HumanDecision) error {
	c.mu.Lock()
	pending := clonePending(c.interrupt)
	c.mu.Unlock()

	if pending == nil {
		return ErrNoPendingInterrupt
	}

	if pending.ThreadID == "" {
		return ErrMissingThreadID
	}

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "run.decision",
		attribute.String(otelhelper.ThreadIDKey, pending.ThreadID),
		attribute.String(otelhelper.NodeIDKey, pending.NodeID),
	)
	defer span.End()

	err := ValidateDecision(*pending, decision)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	c.clearInterrupt(pending.NodeID)

	c.logger.InfoContext(ctx, "Submitting decision",
		"thread_id", pending.ThreadID,
		"node_id", pending.NodeID,
		"decision", decision.Decision,
	)

	err = c.Resume(ctx, pending.ThreadID, ResumePayload(pending.NodeID, decision))
	if err != nil {
		otelhelper.SetError(span, err)
		c.logger.ErrorContext(ctx, "Resume failed", "thread_id", pending.ThreadID, "error", err)

		return &ResumeError{ThreadID: pending.ThreadID, NodeID: pending.NodeID, Err: err}
	}

	return nil
}

// Dismiss drops the pending interrupt without answering it. The session stays paused
// and can still be resumed directly.
func (c *Controller) Dismiss(ctx context.Context) error {
	c.mu.Lock()
	pending := clonePending(c.interrupt)
	c.mu.Unlock()

	if pending == nil {
		return ErrNoPendingInterrupt
	}

	c.clearInterrupt(pending.NodeID)
	c.logger.InfoContext(ctx, "Dismissed approval request", "thread_id", pending.ThreadID, "node_id", pending.NodeID)

	return nil
}

func (c *Controller) clearInterrupt(nodeID string) {
	c.mu.Lock()
	if c.interrupt == nil || c.interrupt.NodeID != nodeID {
		c.mu.Unlock()

		return
	}

	c.interrupt = nil
	snapshot := c.session.Clone()
	c.mu.Unlock()

	if snapshot != nil {
		c.record(context.Background(), events.EventTypeForStatus(snapshot.Status), snapshot, nil)
	}
}
