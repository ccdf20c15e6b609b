// Package run drives one workflow execution against the engine: it starts and resumes
// event streams, folds their events into the session, services approval interrupts and
// falls back to the non-streaming endpoint when a stream cannot be opened.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/gragraf/pkg/engine"
	"github.com/dukex/gragraf/pkg/eventbus"
	"github.com/dukex/gragraf/pkg/events"
	"github.com/dukex/gragraf/pkg/models"
	"github.com/dukex/gragraf/pkg/otelhelper"
	"github.com/dukex/gragraf/pkg/persistence"
	"github.com/dukex/gragraf/pkg/reducer"
	"github.com/dukex/gragraf/pkg/stream"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// StreamClosedMessage is recorded when the stream ends cleanly while the workflow
	// still claims to be running.
	StreamClosedMessage = "stream closed before the workflow reported completion"

	// CanceledMessage is recorded when a running session is canceled locally.
	CanceledMessage = "run canceled"
)

// Engine is the part of the engine client the controller needs.
type Engine interface {
	OpenStream(ctx context.Context, req engine.StreamRequest, opts ...stream.Option) (*stream.Reader, error)
	RunOnce(ctx context.Context, dsl models.WorkflowGraphDSL) (*engine.FallbackResponse, error)
}

// InterruptFunc is called on the read loop goroutine when the engine asks for approval.
// It must not block and must not call back into the controller.
type InterruptFunc func(interrupt models.InterruptRequest)

// Controller owns a single run session. Stream events are applied by one read loop
// goroutine at a time; every other caller sees snapshots.
type Controller struct {
	engine      Engine
	fallback    *FallbackExecutor
	store       persistence.SessionStore
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
	onInterrupt InterruptFunc

	mu        sync.Mutex
	session   *models.RunSession
	interrupt *models.InterruptRequest
	loop      *readLoop
}

type readLoop struct {
	threadID string
	reader   *stream.Reader
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  atomic.Bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithStore checkpoints the session after every change.
func WithStore(store persistence.SessionStore) Option {
	return func(c *Controller) {
		c.store = store
	}
}

// WithPublisher fans session snapshots out to subscribers.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(c *Controller) {
		c.publisher = publisher
	}
}

// WithTracer replaces the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) {
		c.tracer = tracer
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithInterruptFunc registers a callback for approval requests.
func WithInterruptFunc(fn InterruptFunc) Option {
	return func(c *Controller) {
		c.onInterrupt = fn
	}
}

// WithoutFallback disables the non-streaming path in Run.
func WithoutFallback() Option {
	return func(c *Controller) {
		c.fallback = nil
	}
}

// NewController creates an idle controller.
func NewController(eng Engine, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		engine: eng,
		logger: logger.With("module", "run_controller"),
		tracer: otelhelper.Tracer("gragraf/run"),
		now:    time.Now,
	}

	c.fallback = NewFallbackExecutor(eng, logger)

	for _, opt := range opts {
		opt(c)
	}

	if c.fallback != nil {
		c.fallback.now = c.now
	}

	return c
}

// Session returns a snapshot of the current session, or nil before the first start.
func (c *Controller) Session() *models.RunSession {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.session.Clone()
}

// ThreadID returns the thread of the current session.
func (c *Controller) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ""
	}

	return c.session.ThreadID
}

// Active reports whether a read loop is consuming a stream.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.loop != nil
}

// Start begins a fresh execution of dsl under a new thread id. Any stream still open is
// torn down first. An error matching engine.ErrStreamNotEstablished means no data was
// received and the caller may fall back.
func (c *Controller) Start(ctx context.Context, dsl models.WorkflowGraphDSL, runtimeInputs map[string]any) (string, error) {
	c.stopActive()

	now := c.now()
	threadID := NewThreadID(now)

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "run.start",
		attribute.String(otelhelper.ThreadIDKey, threadID),
		attribute.Int(otelhelper.NodeCountKey, len(dsl.Nodes)),
	)
	defer span.End()

	session := models.NewRunSession(threadID, len(dsl.Nodes), now)

	c.mu.Lock()
	c.session = session
	c.interrupt = nil
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Starting run", "thread_id", threadID, "nodes", len(dsl.Nodes))
	c.record(ctx, events.SessionStartedEvent, session.Clone(), nil)

	loop, err := c.open(ctx, engine.StreamRequest{
		DSL:           &dsl,
		ThreadID:      threadID,
		RuntimeInputs: runtimeInputs,
	})
	if err != nil {
		otelhelper.SetError(span, err)
		c.failOutsideStream(ctx, threadID, err.Error())

		return threadID, err
	}

	c.mu.Lock()
	c.loop = loop
	c.mu.Unlock()

	go c.consume(ctx, loop)

	return threadID, nil
}

// Run starts dsl and, when the stream cannot be established, executes it once on the
// non-streaming endpoint instead. The fallback result replaces the session.
func (c *Controller) Run(ctx context.Context, dsl models.WorkflowGraphDSL, runtimeInputs map[string]any) (string, error) {
	threadID, err := c.Start(ctx, dsl, runtimeInputs)
	if err == nil || c.fallback == nil || !engine.IsStreamNotEstablished(err) {
		return threadID, err
	}

	c.logger.WarnContext(ctx, "Event stream unavailable, falling back to single request",
		"thread_id", threadID, "error", err)

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "run.fallback",
		attribute.String(otelhelper.ThreadIDKey, threadID),
		attribute.Int(otelhelper.NodeCountKey, len(dsl.Nodes)),
	)
	defer span.End()

	result, err := c.fallback.RunOnce(ctx, dsl)
	if err != nil {
		otelhelper.SetError(span, err)
		c.failOutsideStream(ctx, threadID, err.Error())

		return threadID, fmt.Errorf("fallback execution failed: %w", err)
	}

	session := result.Session(threadID)
	span.SetAttributes(attribute.String(otelhelper.RunStatusKey, string(session.Status)))

	c.mu.Lock()
	if c.session == nil || c.session.ThreadID != threadID {
		c.mu.Unlock()

		return threadID, nil
	}

	c.session = session
	c.mu.Unlock()

	c.record(ctx, events.EventTypeForStatus(session.Status), session.Clone(), nil)

	return threadID, nil
}

// Resume re-opens the stream for threadID carrying only the human input. The engine
// restores execution from its checkpoint; new events are merged into the session.
func (c *Controller) Resume(ctx context.Context, threadID string, humanInput map[string]any) error {
	if threadID == "" {
		return ErrMissingThreadID
	}

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "run.resume",
		attribute.String(otelhelper.ThreadIDKey, threadID),
	)
	defer span.End()

	err := c.ensureSession(ctx, threadID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	c.mu.Lock()
	status := c.session.Status
	active := c.loop
	c.mu.Unlock()

	if status != models.RunStatusWaitingForApproval {
		if active != nil {
			return ErrStreamActive
		}

		return fmt.Errorf("%w: status is %s", ErrNotWaiting, status)
	}

	// The engine may keep the paused stream open; it carries nothing further.
	c.stopActive()

	loop, err := c.open(ctx, engine.StreamRequest{ThreadID: threadID, HumanInput: humanInput})
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	c.mu.Lock()
	c.session = reducer.Resume(c.session)
	c.loop = loop
	snapshot := c.session.Clone()
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Resumed run", "thread_id", threadID)
	c.record(ctx, events.SessionResumedEvent, snapshot, nil)

	go c.consume(ctx, loop)

	return nil
}

// Cancel closes the active stream. No message reaches the engine. A session that was
// still running is marked failed; a paused session stays paused.
func (c *Controller) Cancel(ctx context.Context) {
	threadID := c.stopActive()
	if threadID == "" {
		return
	}

	c.mu.Lock()
	if c.session == nil || c.session.ThreadID != threadID || c.session.Status != models.RunStatusRunning {
		c.mu.Unlock()

		return
	}

	c.session = reducer.Fail(c.session, CanceledMessage, c.now())
	c.interrupt = nil
	snapshot := c.session.Clone()
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Canceled run", "thread_id", threadID)
	c.record(ctx, events.SessionFailedEvent, snapshot, nil)
}

// Wait blocks until the active read loop ends or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	loop := c.loop
	c.mu.Unlock()

	if loop == nil {
		return nil
	}

	select {
	case <-loop.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restore loads the stored state of threadID into the controller. It is a no-op when
// the controller already holds that thread.
func (c *Controller) Restore(ctx context.Context, threadID string) error {
	if threadID == "" {
		return ErrMissingThreadID
	}

	return c.ensureSession(ctx, threadID)
}

func (c *Controller) ensureSession(ctx context.Context, threadID string) error {
	c.mu.Lock()
	held := c.session != nil && c.session.ThreadID == threadID
	c.mu.Unlock()

	if held {
		return nil
	}

	if c.store == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, threadID)
	}

	record, err := c.store.SessionByThreadID(ctx, threadID)
	if err != nil {
		if persistence.IsSessionNotFound(err) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, threadID)
		}

		return fmt.Errorf("failed to restore session %s: %w", threadID, err)
	}

	c.stopActive()

	c.mu.Lock()
	c.session = record.Session.Clone()
	c.interrupt = nil

	if record.Interrupt != nil {
		pending := *record.Interrupt
		c.interrupt = &pending
	}
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "Restored session", "thread_id", threadID, "status", record.Session.Status)

	return nil
}

func (c *Controller) open(ctx context.Context, req engine.StreamRequest) (*readLoop, error) {
	// The read loop outlives the request that started it; only Cancel or a new
	// start ends it.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	reader, err := c.engine.OpenStream(streamCtx, req)
	if err != nil {
		cancel()

		return nil, err
	}

	return &readLoop{
		threadID: req.ThreadID,
		reader:   reader,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// stopActive tears down the active read loop and waits for it to exit. It returns the
// thread the loop belonged to.
func (c *Controller) stopActive() string {
	c.mu.Lock()
	loop := c.loop
	c.mu.Unlock()

	if loop == nil {
		return ""
	}

	loop.stopped.Store(true)
	loop.cancel()
	_ = loop.reader.Close()
	<-loop.done

	return loop.threadID
}

func (c *Controller) consume(ctx context.Context, loop *readLoop) {
	ctx = context.WithoutCancel(ctx)
	logger := c.logger.With("thread_id", loop.threadID)

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "run.stream",
		attribute.String(otelhelper.ThreadIDKey, loop.threadID),
	)

	defer func() {
		_ = loop.reader.Close()
		loop.cancel()

		c.mu.Lock()
		if c.loop == loop {
			c.loop = nil
		}
		c.mu.Unlock()

		span.End()
		close(loop.done)
	}()

	for event, err := range loop.reader.All() {
		if loop.stopped.Load() {
			logger.DebugContext(ctx, "Read loop stopped")

			return
		}

		if err != nil {
			logger.ErrorContext(ctx, "Event stream failed mid-run", "error", err, "bytes", loop.reader.BytesRead())
			otelhelper.SetError(span, err)
			c.terminate(ctx, loop, fmt.Sprintf("%s: %v", ConnectionLostMessage, err))

			return
		}

		c.apply(ctx, loop, event)
	}

	if loop.stopped.Load() {
		return
	}

	logger.DebugContext(ctx, "Event stream ended", "bytes", loop.reader.BytesRead(), "malformed", loop.reader.Malformed())
	c.terminate(ctx, loop, StreamClosedMessage)
}

func (c *Controller) apply(ctx context.Context, loop *readLoop, event events.Event) {
	c.mu.Lock()

	if c.session == nil || c.session.ThreadID != loop.threadID {
		c.mu.Unlock()
		c.logger.DebugContext(ctx, "Dropping event without a session", "thread_id", loop.threadID, "type", event.WireType())

		return
	}

	previous := c.session.Status
	out := reducer.Reduce(c.session, event, c.now())

	if out.Anomaly != "" {
		c.logger.WarnContext(ctx, "Tolerating out-of-order event", "thread_id", loop.threadID, "anomaly", out.Anomaly)
	}

	if !out.Changed || out.Session == nil {
		c.mu.Unlock()

		return
	}

	c.session = out.Session

	switch {
	case out.Interrupt != nil:
		c.interrupt = out.Interrupt
	case c.session.Status != models.RunStatusWaitingForApproval:
		c.interrupt = nil
	}

	snapshot := c.session.Clone()
	pending := clonePending(c.interrupt)
	onInterrupt := c.onInterrupt
	c.mu.Unlock()

	eventType := events.EventTypeForStatus(snapshot.Status)

	switch {
	case out.Interrupt != nil:
		eventType = events.SessionInterruptedEvent

		c.logger.InfoContext(ctx, "Approval required", "thread_id", loop.threadID, "node_id", out.Interrupt.NodeID)

		if onInterrupt != nil {
			onInterrupt(*out.Interrupt)
		}
	case previous == models.RunStatusWaitingForApproval && snapshot.Status == models.RunStatusRunning:
		eventType = events.SessionResumedEvent
	}

	c.record(ctx, eventType, snapshot, pending)
}

// terminate closes out a read loop that ended without an authoritative terminal event.
// A paused session stays paused: the engine may close the stream while it waits.
func (c *Controller) terminate(ctx context.Context, loop *readLoop, message string) {
	c.mu.Lock()

	if c.session == nil || c.session.ThreadID != loop.threadID ||
		c.session.Status.IsTerminal() || c.session.Status == models.RunStatusWaitingForApproval {
		c.mu.Unlock()

		return
	}

	c.session = reducer.Fail(c.session, message, c.now())
	c.interrupt = nil
	snapshot := c.session.Clone()
	c.mu.Unlock()

	c.record(ctx, events.SessionFailedEvent, snapshot, nil)
}

// failOutsideStream marks threadID failed when no stream could be used at all.
func (c *Controller) failOutsideStream(ctx context.Context, threadID, message string) {
	c.mu.Lock()

	if c.session == nil || c.session.ThreadID != threadID {
		c.mu.Unlock()

		return
	}

	c.session = reducer.Fail(c.session, message, c.now())
	c.interrupt = nil
	snapshot := c.session.Clone()
	c.mu.Unlock()

	c.record(ctx, events.SessionFailedEvent, snapshot, nil)
}

// record checkpoints and publishes a snapshot. Failures are logged only; they never
// affect the run.
func (c *Controller) record(ctx context.Context, eventType events.EventType, session *models.RunSession, pending *models.InterruptRequest) {
	if c.store != nil {
		err := c.store.SaveSession(ctx, &persistence.SessionRecord{
			Session:   session,
			Interrupt: pending,
			UpdatedAt: c.now().UTC(),
		})
		if err != nil {
			c.logger.ErrorContext(ctx, "Failed to checkpoint session", "thread_id", session.ThreadID, "error", err)
		}
	}

	if c.publisher != nil {
		update := events.NewSessionUpdated(uuid.NewString(), eventType, session, pending)

		err := c.publisher.Publish(ctx, session.ThreadID, update)
		if err != nil {
			c.logger.WarnContext(ctx, "Failed to publish session update", "thread_id", session.ThreadID, "error", err)
		}
	}
}

func clonePending(interrupt *models.InterruptRequest) *models.InterruptRequest {
	if interrupt == nil {
		return nil
	}

	c := *interrupt

	return &c
}
