package run

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/gragraf/pkg/engine"
	"github.com/dukex/gragraf/pkg/events"
	"github.com/dukex/gragraf/pkg/models"
)

const fallbackStatusSuccess = "success"

// OnceRunner executes a graph in a single request.
type OnceRunner interface {
	RunOnce(ctx context.Context, dsl models.WorkflowGraphDSL) (*engine.FallbackResponse, error)
}

// FallbackExecutor is the degraded, non-streaming execution path. It reports no partial
// progress and cannot be resumed.
type FallbackExecutor struct {
	engine OnceRunner
	logger *slog.Logger
	now    func() time.Time
}

func NewFallbackExecutor(eng OnceRunner, logger *slog.Logger) *FallbackExecutor {
	return &FallbackExecutor{
		engine: eng,
		logger: logger.With("module", "fallback_executor"),
		now:    time.Now,
	}
}

// RunOnce executes dsl and synthesizes a terminal result from the single response.
func (f *FallbackExecutor) RunOnce(ctx context.Context, dsl models.WorkflowGraphDSL) (*models.RunResult, error) {
	startedAt := f.now()

	resp, err := f.engine.RunOnce(ctx, dsl)
	if err != nil {
		return nil, err
	}

	result := ToRunResult(resp, len(dsl.Nodes), startedAt, f.now())

	f.logger.InfoContext(ctx, "Fallback execution finished", "status", result.Status, "duration", result.Duration)

	return result, nil
}

// ToRunResult maps a fallback response onto a run result. "success" maps to completed and
// anything else to failed; completed nodes default to the total unless an error was
// reported. Engine timings win over the local ones when present.
func ToRunResult(resp *engine.FallbackResponse, totalNodes int, startedAt, endedAt time.Time) *models.RunResult {
	result := &models.RunResult{
		Status:     models.RunStatusFailed,
		Result:     resp.Result,
		Error:      resp.ErrorMessage(),
		TotalNodes: totalNodes,
		StartedAt:  &startedAt,
		EndedAt:    &endedAt,
	}

	if resp.TotalNodes != nil && *resp.TotalNodes >= 0 {
		result.TotalNodes = *resp.TotalNodes
	}

	if t := events.ParseTime(resp.StartedAt); t != nil {
		result.StartedAt = t
	}

	if t := events.ParseTime(resp.EndedAt); t != nil {
		result.EndedAt = t
	}

	if resp.Status == fallbackStatusSuccess {
		result.Status = models.RunStatusCompleted
	} else if result.Error == "" {
		result.Error = "workflow execution failed"
	}

	switch {
	case result.Error == "":
		result.CompletedNodes = result.TotalNodes
	case resp.CompletedNodes != nil:
		result.CompletedNodes = min(max(*resp.CompletedNodes, 0), result.TotalNodes)
	}

	if resp.DurationMs != nil {
		result.Duration = time.Duration(*resp.DurationMs) * time.Millisecond
	} else {
		result.Duration = max(result.EndedAt.Sub(*result.StartedAt), 0)
	}

	return result
}
