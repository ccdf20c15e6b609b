// Package schedule dispatches graph documents on cron schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/gragraf/pkg/graphfile"
	"github.com/dukex/gragraf/pkg/models"
	"github.com/dukex/gragraf/pkg/otelhelper"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrMissingID   = errors.New("schedule id is required")
	ErrMissingCron = errors.New("schedule cron expression is required")
	ErrMissingPath = errors.New("schedule graph path is required")
	ErrDuplicateID = errors.New("schedule id already registered")
)

// Runner starts a run for a compiled graph. *run.Manager satisfies it.
type Runner interface {
	Run(ctx context.Context, dsl models.WorkflowGraphDSL, runtimeInputs map[string]any) (*models.RunSession, error)
}

// Entry binds a graph document to a cron expression.
type Entry struct {
	ID        string
	CronExpr  string
	GraphPath string
}

// Validate checks the entry without registering it.
func (e Entry) Validate() error {
	if e.ID == "" {
		return ErrMissingID
	}

	if e.CronExpr == "" {
		return ErrMissingCron
	}

	if e.GraphPath == "" {
		return ErrMissingPath
	}

	_, err := cron.ParseStandard(e.CronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

// Scheduler fires one fresh run per tick. A tick that finds the previous run of the
// same entry still dispatching is skipped.
type Scheduler struct {
	runner  Runner
	logger  *slog.Logger
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewScheduler(runner Runner, logger *slog.Logger) *Scheduler {
	logger = logger.With("module", "scheduler")
	cronLogger := cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))

	return &Scheduler{
		runner: runner,
		logger: logger,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers entry. The graph document is re-read on every tick so edits are
// picked up without a restart.
func (s *Scheduler) Add(entry Entry) error {
	err := entry.Validate()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, entry.ID)
	}

	id, err := s.cron.AddFunc(entry.CronExpr, func() { s.Dispatch(context.Background(), entry) })
	if err != nil {
		return fmt.Errorf("failed to add cron job for schedule %s: %w", entry.ID, err)
	}

	s.entries[entry.ID] = id
	s.logger.Info("Registered schedule", "id", entry.ID, "cron", entry.CronExpr, "graph", entry.GraphPath)

	return nil
}

// Remove unregisters the entry with id, if any.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}

// Dispatch loads, compiles and runs entry once.
func (s *Scheduler) Dispatch(ctx context.Context, entry Entry) {
	logger := s.logger.With("id", entry.ID)

	ctx, span := otelhelper.StartSpan(ctx, otelhelper.Tracer("gragraf"), "schedule.dispatch",
		attribute.String(otelhelper.ScheduleIDKey, entry.ID),
	)
	defer span.End()

	doc, err := graphfile.Load(entry.GraphPath)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to load scheduled graph", "error", err)

		return
	}

	session, err := s.runner.Run(ctx, doc.DSL(), doc.RuntimeInputs)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Scheduled run failed to start", "error", err)

		return
	}

	span.SetAttributes(attribute.String(otelhelper.ThreadIDKey, session.ThreadID))
	logger.InfoContext(ctx, "Scheduled run dispatched", "thread_id", session.ThreadID, "status", session.Status)
}

func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops firing new ticks and returns a context done once running ticks finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("Stopping scheduler")

	return s.cron.Stop()
}
