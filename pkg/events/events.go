// Package events defines the execution events streamed by the engine and the session
// notifications fanned out to subscribers.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the normalized discriminator of an engine event.
type Kind int

const (
	KindUnknown Kind = iota
	KindStarted
	KindProgress
	KindCompleted
	KindFailed
	KindInterruptRequired
)

func (k Kind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindProgress:
		return "progress"
	case KindCompleted:
		return "completed"
	case KindFailed:
		return "failed"
	case KindInterruptRequired:
		return "interrupt_required"
	default:
		return "unknown"
	}
}

// wireKinds lists every type name the engine uses on the wire.
var wireKinds = map[string]Kind{
	"start":                KindStarted,
	"execution_started":    KindStarted,
	"progress":             KindProgress,
	"complete":             KindCompleted,
	"execution_completed":  KindCompleted,
	"execution_finished":   KindCompleted,
	"error":                KindFailed,
	"execution_failed":     KindFailed,
	"human_input_required": KindInterruptRequired,
}

// ErrMissingType is returned for records that carry no type field.
var ErrMissingType = errors.New("event has no type")

// Event is one decoded engine event.
type Event interface {
	Kind() Kind
	// WireType is the type name exactly as received.
	WireType() string
	// At is the engine timestamp, if the record carried a parsable one.
	At() *time.Time
}

type base struct {
	wireType  string
	timestamp *time.Time
}

func (b base) WireType() string { return b.wireType }
func (b base) At() *time.Time   { return b.timestamp }

// Started announces the beginning of execution.
type Started struct {
	base

	TotalNodes *int
	StartedAt  *time.Time
}

func (Started) Kind() Kind { return KindStarted }

// Progress carries state updates keyed by node id.
type Progress struct {
	base

	Updates map[string]any
}

func (Progress) Kind() Kind { return KindProgress }

// Completed is the authoritative successful end of the workflow.
type Completed struct {
	base

	Result any
}

func (Completed) Kind() Kind { return KindCompleted }

// Failed is the authoritative failed end of the workflow.
type Failed struct {
	base

	Error string
}

func (Failed) Kind() Kind { return KindFailed }

// InterruptInfo is the approval request attached to an interrupt event.
type InterruptInfo struct {
	NodeID         string `json:"node_id"`
	Message        string `json:"message"`
	InputLabel     string `json:"input_label"`
	ApprovalLabel  string `json:"approval_label"`
	RejectionLabel string `json:"rejection_label"`
	RequireComment bool   `json:"require_comment"`
}

// InterruptRequired pauses the run until a human decision is submitted.
type InterruptRequired struct {
	base

	ThreadID string
	Info     InterruptInfo
}

func (InterruptRequired) Kind() Kind { return KindInterruptRequired }

// Unknown is any record whose type is not part of the protocol.
type Unknown struct {
	base

	Raw json.RawMessage
}

func (Unknown) Kind() Kind { return KindUnknown }

type envelope struct {
	Type          string          `json:"type"`
	Timestamp     string          `json:"timestamp"`
	TotalNodes    *int            `json:"total_nodes"`
	TotalNodesAlt *int            `json:"totalNodes"`
	StartedAt     string          `json:"started_at"`
	StartedAtAlt  string          `json:"startedAt"`
	Data          map[string]any  `json:"data"`
	Result        any             `json:"result"`
	Error         json.RawMessage `json:"error"`
	ThreadID      string          `json:"thread_id"`
	InterruptInfo *InterruptInfo  `json:"interrupt_info"`
}

// totalNodes accepts both spellings, snake case first.
func (e envelope) totalNodes() *int {
	if e.TotalNodes != nil {
		return e.TotalNodes
	}

	return e.TotalNodesAlt
}

func (e envelope) startedAt() string {
	if e.StartedAt != "" {
		return e.StartedAt
	}

	return e.StartedAtAlt
}

// Decode parses one JSON record and normalizes its type into an Event.
func Decode(payload []byte) (Event, error) {
	var env envelope

	err := json.Unmarshal(payload, &env)
	if err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	if env.Type == "" {
		return nil, ErrMissingType
	}

	b := base{wireType: env.Type, timestamp: ParseTime(env.Timestamp)}

	switch wireKinds[env.Type] {
	case KindStarted:
		return Started{base: b, TotalNodes: env.totalNodes(), StartedAt: ParseTime(env.startedAt())}, nil
	case KindProgress:
		updates := env.Data
		if updates == nil {
			updates = map[string]any{}
		}

		return Progress{base: b, Updates: updates}, nil
	case KindCompleted:
		return Completed{base: b, Result: env.Result}, nil
	case KindFailed:
		return Failed{base: b, Error: errorText(env.Error)}, nil
	case KindInterruptRequired:
		info := InterruptInfo{}
		if env.InterruptInfo != nil {
			info = *env.InterruptInfo
		}

		return InterruptRequired{base: b, ThreadID: env.ThreadID, Info: withDefaultLabels(info)}, nil
	default:
		return Unknown{base: b, Raw: append(json.RawMessage(nil), payload...)}, nil
	}
}

func withDefaultLabels(info InterruptInfo) InterruptInfo {
	if info.Message == "" {
		info.Message = "Please review and approve or reject."
	}

	if info.InputLabel == "" {
		info.InputLabel = "Comments"
	}

	if info.ApprovalLabel == "" {
		info.ApprovalLabel = "Approve"
	}

	if info.RejectionLabel == "" {
		info.RejectionLabel = "Reject"
	}

	return info
}

func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	return strings.TrimSpace(string(raw))
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTime accepts RFC 3339 and the zone-less ISO 8601 form emitted by the engine.
// Zone-less values are read as UTC. Empty or unparsable input yields nil.
func ParseTime(value string) *time.Time {
	if value == "" {
		return nil
	}

	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return &t
		}
	}

	return nil
}
