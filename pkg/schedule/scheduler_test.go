package schedule

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/gragraf/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, dsl models.WorkflowGraphDSL, runtimeInputs map[string]any) (*models.RunSession, error) {
	args := m.Called(ctx, dsl, runtimeInputs)

	session, _ := args.Get(0).(*models.RunSession)

	return session, args.Error(1)
}

func writeGraph(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "graph.json")
	doc := `{"nodes":[{"id":"a","type":"start"},{"id":"b","type":"httpRequest","data":{"config":{"url":"http://x"}}}],
		"edges":[{"id":"e","source":"a","target":"b"}],"runtime_inputs":{"k":"v"}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	return path
}

func TestEntry_Validate(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  error
	}{
		{"missing id", Entry{CronExpr: "* * * * *", GraphPath: "g.json"}, ErrMissingID},
		{"missing cron", Entry{ID: "s", GraphPath: "g.json"}, ErrMissingCron},
		{"missing path", Entry{ID: "s", CronExpr: "* * * * *"}, ErrMissingPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.entry.Validate(), tt.want)
		})
	}

	assert.Error(t, Entry{ID: "s", CronExpr: "every minute", GraphPath: "g.json"}.Validate())
	assert.NoError(t, Entry{ID: "s", CronExpr: "*/5 * * * *", GraphPath: "g.json"}.Validate())
}

func TestScheduler_AddRejectsDuplicates(t *testing.T) {
	s := NewScheduler(&mockRunner{}, slog.Default())
	entry := Entry{ID: "nightly", CronExpr: "0 2 * * *", GraphPath: "g.json"}

	require.NoError(t, s.Add(entry))
	assert.ErrorIs(t, s.Add(entry), ErrDuplicateID)

	s.Remove("nightly")
	assert.NoError(t, s.Add(entry))
}

func TestScheduler_DispatchCompilesFreshGraph(t *testing.T) {
	runner := &mockRunner{}
	isCompiled := mock.MatchedBy(func(dsl models.WorkflowGraphDSL) bool {
		return len(dsl.Nodes) == 2 &&
			dsl.Nodes[1].Type == "http_request" &&
			dsl.Nodes[1].Config["url"] == "http://x"
	})
	runner.On("Run", mock.Anything, isCompiled, map[string]any{"k": "v"}).
		Return(models.NewRunSession("thread_1_abcdef12", 2, time.Now()), nil).
		Twice()

	s := NewScheduler(runner, slog.Default())
	entry := Entry{ID: "nightly", CronExpr: "0 2 * * *", GraphPath: writeGraph(t)}

	s.Dispatch(context.Background(), entry)
	s.Dispatch(context.Background(), entry)

	runner.AssertExpectations(t)
}

func TestScheduler_DispatchToleratesFailures(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("engine down")).Once()

	s := NewScheduler(runner, slog.Default())

	s.Dispatch(context.Background(), Entry{ID: "x", GraphPath: filepath.Join(t.TempDir(), "missing.json")})
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)

	s.Dispatch(context.Background(), Entry{ID: "x", GraphPath: writeGraph(t)})
	runner.AssertExpectations(t)
}
