package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aristath/taskboard/internal/httpapi"
	"github.com/aristath/taskboard/internal/task"
)

// HTTPClient talks to a taskboard REST server. Calls are never retried: a
// failure is reported once and the caller decides whether to act again.
type HTTPClient struct {
	baseURL *url.URL
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	cfg     BreakerConfig
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.client = c
	}
}

// WithTimeout sets a per-request timeout. Zero keeps the default.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		if d > 0 {
			h.client.Timeout = d
		}
	}
}

// WithHTTPLogger sets the logger. A nil logger keeps slog.Default().
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTPClient) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithBreaker overrides the circuit breaker settings.
func WithBreaker(cfg BreakerConfig) HTTPOption {
	return func(h *HTTPClient) {
		h.cfg = cfg
	}
}

// NewHTTPClient creates a client for the server at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}

	h := &HTTPClient{
		baseURL: u,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  slog.Default(),
		cfg:     DefaultBreakerConfig(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.breaker = newBreaker("taskboard-http", h.cfg, h.logger)
	return h, nil
}

func (h *HTTPClient) FetchTask(ctx context.Context, id string) (*task.Task, error) {
	var out task.Task
	if err := h.do(ctx, "fetch-task", id, http.MethodGet, taskPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *HTTPClient) ListTasks(ctx context.Context) ([]*task.Task, error) {
	var out []*task.Task
	if err := h.do(ctx, "list-tasks", "", http.MethodGet, "/api/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *HTTPClient) ListReassignmentRequests(ctx context.Context, taskID string) ([]*task.ReassignmentRequest, error) {
	var out []*task.ReassignmentRequest
	if err := h.do(ctx, "list-reassignment-requests", taskID, http.MethodGet, taskPath(taskID, "reassignment-requests"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *HTTPClient) StartTask(ctx context.Context, id string) (*task.Task, error) {
	return h.taskCall(ctx, "start", id, http.MethodPost, taskPath(id, "start"), nil)
}

func (h *HTTPClient) PauseTask(ctx context.Context, id string) (*task.Task, error) {
	return h.taskCall(ctx, "pause", id, http.MethodPost, taskPath(id, "pause"), nil)
}

func (h *HTTPClient) ResumeTask(ctx context.Context, id string) (*task.Task, error) {
	return h.taskCall(ctx, "resume", id, http.MethodPost, taskPath(id, "resume"), nil)
}

func (h *HTTPClient) RequestCompletion(ctx context.Context, id, projectID string) (*task.Task, error) {
	body := map[string]string{"projectId": projectID}
	return h.taskCall(ctx, "request-completion", id, http.MethodPost, taskPath(id, "request-completion"), body)
}

func (h *HTTPClient) CompleteTask(ctx context.Context, id string) (*task.Task, error) {
	return h.taskCall(ctx, "complete", id, http.MethodPost, taskPath(id, "complete"), nil)
}

func (h *HTTPClient) RequestReassignment(ctx context.Context, taskID, reason string) (ReassignmentResult, error) {
	body := map[string]string{"reason": reason}
	return h.reassignCall(ctx, "request-reassignment", taskID, taskPath(taskID, "reassignment-requests"), body)
}

func (h *HTTPClient) ApproveReassignment(ctx context.Context, taskID, requestID, newAssigneeID string) (ReassignmentResult, error) {
	body := map[string]string{"newAssigneeId": newAssigneeID}
	return h.reassignCall(ctx, "approve-reassignment", taskID, taskPath(taskID, "reassignment-requests", requestID, "approve"), body)
}

func (h *HTTPClient) RejectReassignment(ctx context.Context, taskID, requestID string) (ReassignmentResult, error) {
	return h.reassignCall(ctx, "reject-reassignment", taskID, taskPath(taskID, "reassignment-requests", requestID, "reject"), nil)
}

func (h *HTTPClient) CreateChecklistItem(ctx context.Context, taskID string, in ChecklistInput) (*task.Task, error) {
	return h.taskCall(ctx, "create-checklist-item", taskID, http.MethodPost, taskPath(taskID, "checklist"), in)
}

func (h *HTTPClient) UpdateChecklistItem(ctx context.Context, taskID, itemID string, in ChecklistInput) (*task.Task, error) {
	return h.taskCall(ctx, "update-checklist-item", taskID, http.MethodPut, taskPath(taskID, "checklist", itemID), in)
}

func (h *HTTPClient) CompleteChecklistItem(ctx context.Context, taskID, itemID string) (*task.Task, error) {
	return h.taskCall(ctx, "complete-checklist-item", taskID, http.MethodPost, taskPath(taskID, "checklist", itemID, "complete"), nil)
}

func (h *HTTPClient) DeleteChecklistItem(ctx context.Context, taskID, itemID string) (*task.Task, error) {
	return h.taskCall(ctx, "delete-checklist-item", taskID, http.MethodDelete, taskPath(taskID, "checklist", itemID), nil)
}

func (h *HTTPClient) taskCall(ctx context.Context, op, id, method, path string, body any) (*task.Task, error) {
	var out task.Task
	if err := h.do(ctx, op, id, method, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *HTTPClient) reassignCall(ctx context.Context, op, id, path string, body any) (ReassignmentResult, error) {
	var out ReassignmentResult
	if err := h.do(ctx, op, id, http.MethodPost, path, body, &out); err != nil {
		return ReassignmentResult{}, err
	}
	if out.Task == nil || out.Request == nil {
		return ReassignmentResult{}, task.Transport(op, id, fmt.Errorf("response is missing the task or request"))
	}
	return out, nil
}

// do executes one request through the circuit breaker and decodes the
// envelope's data into out.
func (h *HTTPClient) do(ctx context.Context, op, id, method, path string, body, out any) error {
	_, err := h.breaker.Execute(func() (interface{}, error) {
		return nil, h.roundTrip(ctx, op, id, method, path, body, out)
	})
	if err == nil {
		return nil
	}
	if breakerOpen(err) {
		err = task.Transport(op, id, err)
	}
	if ctx.Err() != nil {
		h.logger.Debug("request abandoned", "op", op, "task_id", id, "error", err)
	} else if task.KindOf(err) == task.ErrTransport {
		h.logger.Error("backend request failed", "op", op, "task_id", id, "error", err)
	}
	return err
}

func (h *HTTPClient) roundTrip(ctx context.Context, op, id, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("building %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user, ok := ActorFrom(ctx); ok {
		req.Header.Set(httpapi.HeaderUserID, user.ID)
		req.Header.Set(httpapi.HeaderUserName, user.Name)
		req.Header.Set(httpapi.HeaderUserRole, string(user.Role))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return task.Transport(op, id, err)
	}
	defer resp.Body.Close()

	var env httpapi.Envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&env); err != nil {
		return task.Transport(op, id, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err))
	}
	if !env.OK {
		if env.Error == nil {
			return task.Transport(op, id, fmt.Errorf("server returned status %d without an error payload", resp.StatusCode))
		}
		return env.Error.TaskError(op, id)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return task.Transport(op, id, fmt.Errorf("decoding %s payload: %w", op, err))
	}
	return nil
}

func taskPath(id string, parts ...string) string {
	var b strings.Builder
	b.WriteString("/api/tasks/")
	b.WriteString(url.PathEscape(id))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}
