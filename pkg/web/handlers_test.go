package web_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dukex/gragraf/pkg/engine"
	"github.com/dukex/gragraf/pkg/models"
	"github.com/dukex/gragraf/pkg/persistence/file"
	"github.com/dukex/gragraf/pkg/run"
	"github.com/dukex/gragraf/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const graphBody = `{
	"nodes": [
		{"id": "start", "type": "start"},
		{"id": "review", "type": "humanInLoop", "data": {"config": {"message": "Ship it?"}}},
		{"id": "end", "type": "end"}
	],
	"edges": [
		{"id": "e1", "source": "start", "target": "review"},
		{"id": "e2", "source": "review", "target": "end"}
	]
}`

// fakeEngineServer pauses every fresh run on an approval request and completes it on
// resume. With streamDown set the streaming endpoint fails and only the single
// request endpoint works.
type fakeEngineServer struct {
	mu         sync.Mutex
	streamDown bool
	resumes    []engine.StreamRequest
}

func (f *fakeEngineServer) handler(t *testing.T) http.Handler {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc(engine.DefaultStreamPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		down := f.streamDown
		f.mu.Unlock()

		if down {
			http.Error(w, "stream unavailable", http.StatusInternalServerError)

			return
		}

		var req engine.StreamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		w.Header().Set("Content-Type", "text/event-stream")

		if req.HumanInput == nil {
			fmt.Fprint(w, `data: {"type":"start","total_nodes":3}`+"\n\n")
			fmt.Fprint(w, `data: {"type":"progress","data":{"start":"ok"}}`+"\n\n")
			fmt.Fprint(w, `data: {"type":"human_input_required","interrupt_info":{"node_id":"review","message":"Ship it?","require_comment":true}}`+"\n\n")

			return
		}

		f.mu.Lock()
		f.resumes = append(f.resumes, req)
		f.mu.Unlock()

		fmt.Fprint(w, `data: {"type":"progress","data":{"review":"approved"}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"progress","data":{"end":"done"}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"complete","result":"shipped"}`+"\n\n")
	})
	mux.HandleFunc(engine.DefaultFallbackPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success","result":"shipped without approval"}`)
	})

	return mux
}

func (f *fakeEngineServer) resumeRequests() []engine.StreamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]engine.StreamRequest(nil), f.resumes...)
}

func setupTestApp(t *testing.T, eng *fakeEngineServer) *fiber.App {
	t.Helper()

	server := httptest.NewServer(eng.handler(t))
	t.Cleanup(server.Close)

	store := file.NewSessionStore(t.TempDir())
	client := engine.NewClient(engine.Config{BaseURL: server.URL}, slog.Default())
	manager := run.NewManager(client, store, slog.Default())
	t.Cleanup(func() { manager.Shutdown(t.Context()) })

	handlers := web.NewAPIHandlers(manager, store, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.Register(app)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, out
}

func decodeRun(t *testing.T, body []byte) web.RunResponse {
	t.Helper()

	var out web.RunResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotNil(t, out.Session)

	return out
}

func waitForStatus(t *testing.T, app *fiber.App, threadID string, want models.RunStatus) web.RunResponse {
	t.Helper()

	var last web.RunResponse

	require.Eventually(t, func() bool {
		status, body := do(t, app, http.MethodGet, "/runs/"+threadID, "")
		if status != http.StatusOK {
			return false
		}

		last = decodeRun(t, body)

		return last.Session.Status == want
	}, 5*time.Second, 20*time.Millisecond)

	return last
}

func TestAPIHandlers_StartRun_InvalidDocument(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t, &fakeEngineServer{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"nodes": [`},
		{"missing edges", `{"nodes": []}`},
		{"node without type", `{"nodes": [{"id": "a"}], "edges": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, http.MethodPost, "/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Contains(t, string(body), "validation_error")
		})
	}
}

func TestAPIHandlers_ApprovalRoundTrip(t *testing.T) {
	t.Parallel()

	eng := &fakeEngineServer{}
	app := setupTestApp(t, eng)

	status, body := do(t, app, http.MethodPost, "/runs", graphBody)
	require.Equal(t, http.StatusAccepted, status)

	started := decodeRun(t, body)
	threadID := started.ThreadID
	require.NotEmpty(t, threadID)
	assert.Equal(t, threadID, started.Session.ThreadID)

	paused := waitForStatus(t, app, threadID, models.RunStatusWaitingForApproval)
	require.NotNil(t, paused.Interrupt)
	assert.Equal(t, "review", paused.Interrupt.NodeID)
	assert.Equal(t, "review", paused.Session.InterruptNodeID)
	assert.Equal(t, 1, paused.Session.CompletedNodes)

	status, _ = do(t, app, http.MethodPost, "/runs/"+threadID+"/decision", `{"decision":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, app, http.MethodPost, "/runs/"+threadID+"/decision", `{"decision":"approved","comment":"  "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, string(body), "comment")
	assert.Empty(t, eng.resumeRequests())

	status, _ = do(t, app, http.MethodPost, "/runs/"+threadID+"/decision", `{"decision":"approved","comment":"lgtm"}`)
	require.Equal(t, http.StatusAccepted, status)

	done := waitForStatus(t, app, threadID, models.RunStatusCompleted)
	assert.Nil(t, done.Interrupt)
	assert.Equal(t, "shipped", done.Session.FinalResult)
	assert.Equal(t, 3, done.Session.CompletedNodes)

	resumes := eng.resumeRequests()
	require.Len(t, resumes, 1)
	assert.Equal(t, threadID, resumes[0].ThreadID)
	assert.Nil(t, resumes[0].DSL)
	assert.Equal(t, map[string]any{
		"review_human_input": map[string]any{"decision": "approved", "comment": "lgtm"},
	}, resumes[0].HumanInput)

	status, _ = do(t, app, http.MethodPost, "/runs/"+threadID+"/decision", `{"decision":"approved","comment":"again"}`)
	assert.Equal(t, http.StatusConflict, status)
}

func TestAPIHandlers_DismissKeepsRunPaused(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t, &fakeEngineServer{})

	status, body := do(t, app, http.MethodPost, "/runs", graphBody)
	require.Equal(t, http.StatusAccepted, status)

	threadID := decodeRun(t, body).Session.ThreadID
	waitForStatus(t, app, threadID, models.RunStatusWaitingForApproval)

	status, body = do(t, app, http.MethodPost, "/runs/"+threadID+"/dismiss", "")
	require.Equal(t, http.StatusOK, status)

	dismissed := decodeRun(t, body)
	assert.Nil(t, dismissed.Interrupt)
	assert.Equal(t, models.RunStatusWaitingForApproval, dismissed.Session.Status)

	status, _ = do(t, app, http.MethodPost, "/runs/"+threadID+"/dismiss", "")
	assert.Equal(t, http.StatusConflict, status)
}

func TestAPIHandlers_StartRun_FallsBack(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t, &fakeEngineServer{streamDown: true})

	status, body := do(t, app, http.MethodPost, "/runs", graphBody)
	require.Equal(t, http.StatusOK, status)

	out := decodeRun(t, body)
	assert.Equal(t, models.RunStatusCompleted, out.Session.Status)
	assert.True(t, out.Session.Fallback)
	assert.Equal(t, 3, out.Session.CompletedNodes)
	assert.Equal(t, "shipped without approval", out.Session.FinalResult)
}

func TestAPIHandlers_UnknownThread(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t, &fakeEngineServer{})

	status, body := do(t, app, http.MethodGet, "/runs/thread_1_deadbeef", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "session_not_found")

	status, _ = do(t, app, http.MethodPost, "/runs/thread_1_deadbeef/decision", `{"decision":"rejected","comment":"no"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, app, http.MethodDelete, "/runs/thread_1_deadbeef", "")
	assert.Equal(t, http.StatusNoContent, status)
}

func TestAPIHandlers_DeleteRun(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t, &fakeEngineServer{})

	status, body := do(t, app, http.MethodPost, "/runs", graphBody)
	require.Equal(t, http.StatusAccepted, status)

	threadID := decodeRun(t, body).Session.ThreadID
	waitForStatus(t, app, threadID, models.RunStatusWaitingForApproval)

	status, _ = do(t, app, http.MethodDelete, "/runs/"+threadID, "")
	require.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, app, http.MethodGet, "/runs/"+threadID, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t, &fakeEngineServer{})

	status, body := do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)
}
