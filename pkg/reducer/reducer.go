// Package reducer folds engine events into run session state.
package reducer

import (
	"fmt"
	"strings"
	"time"

	"github.com/dukex/gragraf/pkg/events"
	"github.com/dukex/gragraf/pkg/models"
)

const defaultFailure = "workflow execution failed"

// Outcome is the result of applying one event.
type Outcome struct {
	// Session is the new state. It is nil when the event was dropped for lack of a session.
	Session *models.RunSession
	// Interrupt is set when the event requested human approval.
	Interrupt *models.InterruptRequest
	// Changed reports whether Session differs from the input.
	Changed bool
	// Anomaly describes tolerated protocol irregularities, for logging.
	Anomaly string
}

// Reduce applies event to current and returns the new state. current is never modified.
// A nil current drops the event.
func Reduce(current *models.RunSession, event events.Event, now time.Time) Outcome {
	if current == nil || event == nil {
		return Outcome{Session: current}
	}

	next := current.Clone()

	switch e := event.(type) {
	case events.InterruptRequired:
		return interrupted(next, current.Status, e)
	case events.Progress:
		return progressed(next, current.Status, e, now)
	}

	if next.Status.IsTerminal() {
		return Outcome{
			Session: current,
			Anomaly: fmt.Sprintf("%s event after session was %s", event.WireType(), current.Status),
		}
	}

	switch e := event.(type) {
	case events.Started:
		resume(next)

		if e.TotalNodes != nil && *e.TotalNodes >= 0 {
			next.TotalNodes = *e.TotalNodes
			next.CompletedNodes = min(next.CompletedNodes, next.TotalNodes)
		}

		switch {
		case e.StartedAt != nil:
			next.StartedAt = e.StartedAt
		case next.StartedAt == nil:
			next.StartedAt = &now
		}
	case events.Completed:
		next.Status = models.RunStatusCompleted
		next.FinalResult = e.Result
		next.CompletedNodes = next.TotalNodes
		next.InterruptNodeID = ""
		end(next, now)
	case events.Failed:
		next.Status = models.RunStatusFailed
		next.Error = e.Error

		if next.Error == "" {
			next.Error = defaultFailure
		}

		next.InterruptNodeID = ""
		end(next, now)
	default:
		return Outcome{
			Session: current,
			Anomaly: "ignored event of unknown type " + event.WireType(),
		}
	}

	return Outcome{Session: next, Changed: true}
}

// Fail marks a session failed outside the event stream, e.g. when the connection drops.
func Fail(current *models.RunSession, message string, now time.Time) *models.RunSession {
	if current == nil || current.Status.IsTerminal() {
		return current
	}

	next := current.Clone()
	next.Status = models.RunStatusFailed
	next.Error = message
	next.InterruptNodeID = ""
	end(next, now)

	return next
}

// Resume moves a paused session back to running.
func Resume(current *models.RunSession) *models.RunSession {
	if current == nil || current.Status != models.RunStatusWaitingForApproval {
		return current
	}

	next := current.Clone()
	resume(next)

	return next
}

func progressed(next *models.RunSession, previous models.RunStatus, e events.Progress, now time.Time) Outcome {
	out := Outcome{Session: next, Changed: true}

	if previous.IsTerminal() {
		out.Anomaly = fmt.Sprintf("progress event after session was %s", previous)
	} else {
		resume(next)
	}

	endedAt := now
	if at := e.At(); at != nil {
		endedAt = *at
	}

	for nodeID, update := range e.Updates {
		if strings.HasPrefix(nodeID, "__") {
			continue
		}

		record := next.NodeResults[nodeID]
		record.ID = nodeID
		record.Status = models.NodeStatusCompleted
		record.Result = update
		record.EndedAt = &endedAt
		record.Error = ""
		record.Logs = logsOf(update)

		next.NodeResults[nodeID] = record
	}

	completed := len(next.CompletedNodeIDs())
	if next.TotalNodes > 0 {
		completed = min(completed, next.TotalNodes)
	}

	next.CompletedNodes = max(next.CompletedNodes, completed)

	return out
}

func interrupted(next *models.RunSession, previous models.RunStatus, e events.InterruptRequired) Outcome {
	if previous.IsTerminal() {
		return Outcome{
			Session: next,
			Anomaly: fmt.Sprintf("interrupt event for node %s after session was %s", e.Info.NodeID, previous),
		}
	}

	next.Status = models.RunStatusWaitingForApproval
	next.InterruptNodeID = e.Info.NodeID
	next.EndedAt = nil
	next.Duration = 0

	out := Outcome{
		Session: next,
		Changed: true,
		Interrupt: &models.InterruptRequest{
			ThreadID:       next.ThreadID,
			NodeID:         e.Info.NodeID,
			Message:        e.Info.Message,
			InputLabel:     e.Info.InputLabel,
			ApprovalLabel:  e.Info.ApprovalLabel,
			RejectionLabel: e.Info.RejectionLabel,
			RequireComment: e.Info.RequireComment,
		},
	}

	// Resumes always target the session's thread.
	if e.ThreadID != "" && e.ThreadID != next.ThreadID {
		out.Anomaly = fmt.Sprintf("interrupt event for thread %s on session %s", e.ThreadID, next.ThreadID)
	}

	return out
}

func resume(s *models.RunSession) {
	if s.Status == models.RunStatusWaitingForApproval || s.Status == models.RunStatusIdle {
		s.Status = models.RunStatusRunning
		s.InterruptNodeID = ""
	}
}

func end(s *models.RunSession, now time.Time) {
	s.EndedAt = &now
	s.Duration = 0

	if s.StartedAt != nil {
		s.Duration = max(now.Sub(*s.StartedAt), 0)
	}
}

// logsOf extracts a "logs" list from a node update, if the node reported one.
func logsOf(update any) []string {
	fields, ok := update.(map[string]any)
	if !ok {
		return nil
	}

	raw, ok := fields["logs"].([]any)
	if !ok {
		return nil
	}

	logs := make([]string, 0, len(raw))
	for _, line := range raw {
		logs = append(logs, fmt.Sprint(line))
	}

	return logs
}
