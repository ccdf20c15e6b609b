package run

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/gragraf/pkg/models"
	"github.com/dukex/gragraf/pkg/persistence"
	"github.com/dukex/gragraf/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RunAndDecide(t *testing.T) {
	ctx := context.Background()
	eng := &fakeEngine{bodies: []*scriptedBody{
		interruptBody(true),
		newBody(record(`{"type":"complete","result":"shipped"}`)),
	}}
	m := NewManager(eng, file.NewSessionStore(t.TempDir()), slog.Default())

	started, err := m.Run(ctx, graph("draft", "review", "end"), nil)
	require.NoError(t, err)

	controller, err := m.Controller(ctx, started.ThreadID)
	require.NoError(t, err)
	wait(t, controller)

	session, interrupt, err := m.Session(ctx, started.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaitingForApproval, session.Status)
	require.NotNil(t, interrupt)
	assert.Equal(t, "review", interrupt.NodeID)

	err = m.Decide(ctx, started.ThreadID, models.HumanDecision{Decision: models.DecisionApproved})
	require.ErrorIs(t, err, ErrCommentRequired)

	err = m.Decide(ctx, started.ThreadID, models.HumanDecision{Decision: models.DecisionApproved, Comment: "ok"})
	require.NoError(t, err)
	wait(t, controller)

	session, interrupt, err = m.Session(ctx, started.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, session.Status)
	assert.Nil(t, interrupt)
	assert.Equal(t, started.ThreadID, eng.streamRequests()[1].ThreadID)
}

func TestManager_RestoresUnknownThreadFromStore(t *testing.T) {
	ctx := context.Background()
	store := file.NewSessionStore(t.TempDir())

	session := models.NewRunSession("thread_1714557600000_ab12cd34", 3, time.Now())
	session.Status = models.RunStatusWaitingForApproval
	session.InterruptNodeID = "review"

	require.NoError(t, store.SaveSession(ctx, &persistence.SessionRecord{
		Session:   session,
		Interrupt: &models.InterruptRequest{ThreadID: session.ThreadID, NodeID: "review", Message: "Ship it?"},
		UpdatedAt: time.Now(),
	}))

	m := NewManager(&fakeEngine{}, store, slog.Default())

	restored, interrupt, err := m.Session(ctx, session.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaitingForApproval, restored.Status)
	require.NotNil(t, interrupt)
	assert.Equal(t, "Ship it?", interrupt.Message)

	first, err := m.Controller(ctx, session.ThreadID)
	require.NoError(t, err)
	second, err := m.Controller(ctx, session.ThreadID)
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, _, err = m.Session(ctx, "thread_2_00000000")
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = m.Controller(ctx, "")
	assert.ErrorIs(t, err, ErrMissingThreadID)
}

func TestManager_Forget(t *testing.T) {
	ctx := context.Background()
	store := file.NewSessionStore(t.TempDir())
	m := NewManager(&fakeEngine{bodies: []*scriptedBody{interruptBody(false)}}, store, slog.Default())

	started, err := m.Run(ctx, graph("draft", "review", "end"), nil)
	require.NoError(t, err)

	controller, err := m.Controller(ctx, started.ThreadID)
	require.NoError(t, err)
	wait(t, controller)

	require.NoError(t, m.Forget(ctx, started.ThreadID))

	_, err = store.SessionByThreadID(ctx, started.ThreadID)
	require.True(t, persistence.IsSessionNotFound(err))

	_, _, err = m.Session(ctx, started.ThreadID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.NoError(t, m.Forget(ctx, started.ThreadID))
}
