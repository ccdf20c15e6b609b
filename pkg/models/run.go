package models

import (
	"maps"
	"slices"
	"time"
)

// RunStatus is the lifecycle state of a run session.
type RunStatus string

const (
	RunStatusIdle               RunStatus = "idle"
	RunStatusRunning            RunStatus = "running"
	RunStatusWaitingForApproval RunStatus = "waiting_for_approval"
	RunStatusCompleted          RunStatus = "completed"
	RunStatusFailed             RunStatus = "failed"
)

// IsTerminal reports whether no stream event may change the status any more.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// NodeStatus is the execution state of a single node.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
)

// NodeExecutionRecord is the latest known execution state of one node.
type NodeExecutionRecord struct {
	ID        string     `json:"id"`
	Type      string     `json:"type,omitempty"`
	Status    NodeStatus `json:"status"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Result    any        `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	Logs      []string   `json:"logs,omitempty"`
}

// RunSession is the client-side view of one execution attempt.
type RunSession struct {
	ThreadID       string                         `json:"thread_id"`
	Status         RunStatus                      `json:"status"`
	StartedAt      *time.Time                     `json:"started_at,omitempty"`
	EndedAt        *time.Time                     `json:"ended_at,omitempty"`
	Duration       time.Duration                  `json:"duration,omitempty"`
	TotalNodes     int                            `json:"total_nodes"`
	CompletedNodes int                            `json:"completed_nodes"`
	NodeResults    map[string]NodeExecutionRecord `json:"node_results"`
	FinalResult    any                            `json:"final_result,omitempty"`
	Error          string                         `json:"error,omitempty"`
	Fallback       bool                           `json:"fallback,omitempty"`

	// InterruptNodeID points at the pending interrupt, if any. The interrupt itself
	// is owned by whoever surfaces it to the operator.
	InterruptNodeID string `json:"interrupt_node_id,omitempty"`
}

// NewRunSession returns a running session for a fresh execution attempt.
func NewRunSession(threadID string, totalNodes int, now time.Time) *RunSession {
	return &RunSession{
		ThreadID:    threadID,
		Status:      RunStatusRunning,
		StartedAt:   &now,
		TotalNodes:  totalNodes,
		NodeResults: make(map[string]NodeExecutionRecord),
	}
}

// Clone returns a copy that shares no mutable containers with s.
func (s *RunSession) Clone() *RunSession {
	if s == nil {
		return nil
	}

	clone := *s
	clone.StartedAt = cloneTime(s.StartedAt)
	clone.EndedAt = cloneTime(s.EndedAt)
	clone.NodeResults = make(map[string]NodeExecutionRecord, len(s.NodeResults))

	for id, record := range s.NodeResults {
		record.Logs = slices.Clone(record.Logs)
		record.StartedAt = cloneTime(record.StartedAt)
		record.EndedAt = cloneTime(record.EndedAt)
		clone.NodeResults[id] = record
	}

	return &clone
}

// CompletedNodeIDs returns the sorted ids of nodes with a completed record.
func (s *RunSession) CompletedNodeIDs() []string {
	ids := make([]string, 0, len(s.NodeResults))

	for _, id := range slices.Sorted(maps.Keys(s.NodeResults)) {
		if s.NodeResults[id].Status == NodeStatusCompleted {
			ids = append(ids, id)
		}
	}

	return ids
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	c := *t

	return &c
}

// InterruptRequest describes a pending human approval.
type InterruptRequest struct {
	ThreadID       string `json:"thread_id"`
	NodeID         string `json:"node_id"`
	Message        string `json:"message"`
	InputLabel     string `json:"input_label"`
	ApprovalLabel  string `json:"approval_label"`
	RejectionLabel string `json:"rejection_label"`
	RequireComment bool   `json:"require_comment"`
}

// Decision is the operator's verdict on an interrupt.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// HumanDecision is what the operator submits to resume an interrupted run.
type HumanDecision struct {
	Decision Decision `json:"decision" validate:"required,oneof=approved rejected"`
	Comment  string   `json:"comment"`
}

// RunResult is the outcome of a non-streaming execution.
type RunResult struct {
	Status         RunStatus     `json:"status"`
	Result         any           `json:"result,omitempty"`
	Error          string        `json:"error,omitempty"`
	TotalNodes     int           `json:"total_nodes"`
	CompletedNodes int           `json:"completed_nodes"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	Duration       time.Duration `json:"duration,omitempty"`
}

// Session converts the result into a terminal run session.
func (r *RunResult) Session(threadID string) *RunSession {
	return &RunSession{
		ThreadID:       threadID,
		Status:         r.Status,
		StartedAt:      cloneTime(r.StartedAt),
		EndedAt:        cloneTime(r.EndedAt),
		Duration:       r.Duration,
		TotalNodes:     r.TotalNodes,
		CompletedNodes: r.CompletedNodes,
		NodeResults:    make(map[string]NodeExecutionRecord),
		FinalResult:    r.Result,
		Error:          r.Error,
		Fallback:       true,
	}
}
