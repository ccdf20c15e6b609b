// Package engine is the HTTP client for the remote graph execution engine.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukex/gragraf/pkg/models"
	"github.com/dukex/gragraf/pkg/stream"
)

const (
	DefaultBaseURL      = "http://localhost:8000"
	DefaultStreamPath   = "/run/stream"
	DefaultFallbackPath = "/run"

	maxErrorBody = 4096
)

// Config locates the engine endpoints.
type Config struct {
	BaseURL      string
	StreamPath   string
	FallbackPath string
	// HTTPClient defaults to a client without timeout; a stalled stream is only
	// detected by the transport.
	HTTPClient *http.Client
}

// StreamRequest is the body of a streaming run or resume request.
type StreamRequest struct {
	DSL           *models.WorkflowGraphDSL `json:"dsl,omitempty"`
	ThreadID      string                   `json:"thread_id"`
	HumanInput    map[string]any           `json:"human_input,omitempty"`
	RuntimeInputs map[string]any           `json:"runtime_inputs,omitempty"`
}

// FallbackResponse is the single JSON object returned by the non-streaming endpoint.
type FallbackResponse struct {
	Status         string          `json:"status"`
	Result         any             `json:"result,omitempty"`
	Error          json.RawMessage `json:"error,omitempty"`
	Timestamp      string          `json:"timestamp,omitempty"`
	StartedAt      string          `json:"started_at,omitempty"`
	EndedAt        string          `json:"ended_at,omitempty"`
	DurationMs     *int64          `json:"duration_ms,omitempty"`
	TotalNodes     *int            `json:"total_nodes,omitempty"`
	CompletedNodes *int            `json:"completed_nodes,omitempty"`
}

// Client talks to one engine.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates an engine client, filling unset config with defaults.
func NewClient(config Config, logger *slog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	if config.StreamPath == "" {
		config.StreamPath = DefaultStreamPath
	}

	if config.FallbackPath == "" {
		config.FallbackPath = DefaultFallbackPath
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		config: config,
		http:   httpClient,
		logger: logger.With("module", "engine_client"),
	}
}

// OpenStream posts req to the streaming endpoint and waits for the first body byte.
// Every failure up to that point is a *StreamError matching ErrStreamNotEstablished.
func (c *Client) OpenStream(ctx context.Context, req StreamRequest, opts ...stream.Option) (*stream.Reader, error) {
	resp, err := c.post(ctx, c.config.StreamPath, req, "text/event-stream")
	if err != nil {
		return nil, &StreamError{ThreadID: req.ThreadID, Err: err}
	}

	err = checkStatus(resp)
	if err != nil {
		return nil, &StreamError{ThreadID: req.ThreadID, Err: err}
	}

	reader := stream.NewReader(resp.Body, c.logger.With("thread_id", req.ThreadID), opts...)

	err = reader.Prime()
	if err != nil {
		_ = reader.Close()

		return nil, &StreamError{ThreadID: req.ThreadID, Err: err}
	}

	c.logger.DebugContext(ctx, "Event stream established", "thread_id", req.ThreadID)

	return reader, nil
}

// RunOnce executes dsl on the non-streaming endpoint.
func (c *Client) RunOnce(ctx context.Context, dsl models.WorkflowGraphDSL) (*FallbackResponse, error) {
	resp, err := c.post(ctx, c.config.FallbackPath, dsl, "application/json")
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WarnContext(ctx, "Failed to close fallback response body", "error", err)
		}
	}()

	err = checkStatus(resp)
	if err != nil {
		return nil, err
	}

	var out FallbackResponse

	err = json.NewDecoder(resp.Body).Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode fallback response: %w", err)
	}

	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body any, accept string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// ErrorMessage returns the reported error as text, unquoting plain JSON strings.
func (r *FallbackResponse) ErrorMessage() string {
	if len(r.Error) == 0 || string(r.Error) == "null" {
		return ""
	}

	var text string

	err := json.Unmarshal(r.Error, &text)
	if err == nil {
		return text
	}

	return strings.TrimSpace(string(r.Error))
}
