package run

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/gragraf/pkg/models"
	"github.com/dukex/gragraf/pkg/persistence"
)

// Manager keeps one controller per thread for callers that drive many runs, such as
// the control API and the scheduler.
type Manager struct {
	engine Engine
	store  persistence.SessionStore
	logger *slog.Logger
	opts   []Option

	mu          sync.Mutex
	controllers map[string]*Controller
}

// NewManager creates a manager. opts are applied to every controller it creates.
func NewManager(eng Engine, store persistence.SessionStore, logger *slog.Logger, opts ...Option) *Manager {
	if store != nil {
		opts = append([]Option{WithStore(store)}, opts...)
	}

	return &Manager{
		engine:      eng,
		store:       store,
		logger:      logger.With("module", "run_manager"),
		opts:        opts,
		controllers: make(map[string]*Controller),
	}
}

// Run starts dsl on a fresh controller, falling back when the stream cannot be opened.
// The returned session is a snapshot taken right after the start.
func (m *Manager) Run(ctx context.Context, dsl models.WorkflowGraphDSL, runtimeInputs map[string]any) (*models.RunSession, error) {
	controller := NewController(m.engine, m.logger, m.opts...)

	threadID, err := controller.Run(ctx, dsl, runtimeInputs)
	if threadID != "" {
		m.mu.Lock()
		m.controllers[threadID] = controller
		m.mu.Unlock()
	}

	if err != nil {
		return controller.Session(), err
	}

	return controller.Session(), nil
}

// Controller returns the controller of threadID, restoring it from the store when this
// process has not seen the thread yet.
func (m *Manager) Controller(ctx context.Context, threadID string) (*Controller, error) {
	if threadID == "" {
		return nil, ErrMissingThreadID
	}

	m.mu.Lock()
	controller, ok := m.controllers[threadID]
	m.mu.Unlock()

	if ok {
		return controller, nil
	}

	controller = NewController(m.engine, m.logger, m.opts...)

	err := controller.Restore(ctx, threadID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.controllers[threadID]; ok {
		controller = existing
	} else {
		m.controllers[threadID] = controller
	}
	m.mu.Unlock()

	return controller, nil
}

// Session returns the session and pending interrupt of threadID.
func (m *Manager) Session(ctx context.Context, threadID string) (*models.RunSession, *models.InterruptRequest, error) {
	controller, err := m.Controller(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}

	return controller.Session(), controller.PendingInterrupt(), nil
}

// Decide submits decision for the pending interrupt of threadID.
func (m *Manager) Decide(ctx context.Context, threadID string, decision models.HumanDecision) error {
	controller, err := m.Controller(ctx, threadID)
	if err != nil {
		return err
	}

	return controller.Submit(ctx, decision)
}

// Dismiss drops the pending interrupt of threadID.
func (m *Manager) Dismiss(ctx context.Context, threadID string) error {
	controller, err := m.Controller(ctx, threadID)
	if err != nil {
		return err
	}

	return controller.Dismiss(ctx)
}

// Cancel closes the stream of threadID.
func (m *Manager) Cancel(ctx context.Context, threadID string) error {
	controller, err := m.Controller(ctx, threadID)
	if err != nil {
		return err
	}

	controller.Cancel(ctx)

	return nil
}

// Forget cancels threadID and removes it from memory and from the store.
func (m *Manager) Forget(ctx context.Context, threadID string) error {
	m.mu.Lock()
	controller, ok := m.controllers[threadID]
	delete(m.controllers, threadID)
	m.mu.Unlock()

	if ok {
		controller.Cancel(ctx)
	}

	if m.store == nil {
		return nil
	}

	err := m.store.DeleteSession(ctx, threadID)
	if err != nil && !persistence.IsSessionNotFound(err) {
		return fmt.Errorf("failed to delete session %s: %w", threadID, err)
	}

	return nil
}

// Shutdown cancels every active stream.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	controllers := make([]*Controller, 0, len(m.controllers))

	for _, controller := range m.controllers {
		controllers = append(controllers, controller)
	}
	m.mu.Unlock()

	for _, controller := range controllers {
		if controller.Active() {
			controller.Cancel(ctx)
		}
	}
}
