package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/taskboard/internal/httpapi"
	"github.com/aristath/taskboard/internal/task"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...HTTPOption) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(srv.URL, opts...)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestHTTPClientSendsActorAndDecodesSnapshot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tasks/t 1/start" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.EscapedPath())
		}
		if r.Header.Get(httpapi.HeaderUserID) != "u1" || r.Header.Get(httpapi.HeaderUserRole) != "EMPLOYEE" {
			t.Errorf("actor headers missing: %v", r.Header)
		}
		// Legacy spellings are normalized on decode.
		httpapi.WriteOK(w, http.StatusOK, map[string]any{
			"_id":   "t 1",
			"stage": "In Progress",
			"timer": map[string]any{"running": true, "startedAt": "2026-05-04T10:00:00Z"},
		})
	})

	tk, err := c.StartTask(as(employee), "t 1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if tk.ID != "t 1" || tk.Status != task.StatusInProgress || !tk.Timer.Running {
		t.Errorf("unexpected snapshot: %+v", tk)
	}
}

func TestHTTPClientMapsErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{"validation", http.StatusBadRequest, httpapi.ErrInvalidRequest, task.ErrValidation},
		{"forbidden", http.StatusForbidden, httpapi.ErrForbidden, task.ErrForbidden},
		{"already resolved", http.StatusConflict, httpapi.ErrAlreadyResolved, task.ErrAlreadyResolved},
		{"not found", http.StatusNotFound, httpapi.ErrNotFound, task.ErrNotFound},
		{"server", http.StatusInternalServerError, httpapi.ErrInternal, task.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				httpapi.WriteError(w, tt.status, tt.code, "nope", &httpapi.ErrorDetails{Op: "approve-reassignment", TaskID: "t1"}, false)
			})
			_, err := c.ApproveReassignment(as(manager), "t1", "r1", "u42")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if task.ReasonOf(err) != "nope" {
				t.Errorf("reason lost: %v", err)
			}
		})
	}
}

func TestHTTPClientSendsBodies(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["reason"] != "overloaded" {
			t.Errorf("reason not sent: %v", body)
		}
		httpapi.WriteOK(w, http.StatusCreated, map[string]any{
			"request": map[string]any{"_id": "r1", "taskId": "t1", "status": "pending", "requestedAt": "2026-05-04T10:00:00Z"},
			"task":    map[string]any{"id": "t1", "status": "ON_HOLD", "lock": map[string]any{"isLocked": true, "requestStatus": "PENDING"}},
		})
	})

	res, err := c.RequestReassignment(as(employee), "t1", "overloaded")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if res.Request.ID != "r1" || res.Request.Status != task.RequestPending {
		t.Errorf("request mismatch: %+v", res.Request)
	}
	if res.Task.Status != task.StatusOnHold || !res.Task.Lock.Pending() {
		t.Errorf("task mismatch: %+v", res.Task)
	}
}

func TestHTTPClientMissingPayloadIsTransport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		httpapi.WriteOK(w, http.StatusOK, map[string]any{"task": map[string]any{"id": "t1"}})
	})

	if _, err := c.RejectReassignment(as(manager), "t1", "r1"); !errors.Is(err, task.ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestHTTPClientBreakerTripsOnTransportFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		httpapi.WriteError(w, http.StatusBadGateway, httpapi.ErrUnavailable, "down", nil, true)
	}, WithBreaker(BreakerConfig{MaxRequests: 1, Timeout: time.Minute, ConsecutiveFailures: 2}))

	ctx := as(employee)
	for i := 0; i < 2; i++ {
		if _, err := c.FetchTask(ctx, "t1"); !errors.Is(err, task.ErrTransport) {
			t.Fatalf("call %d: expected ErrTransport, got %v", i, err)
		}
	}

	_, err := c.FetchTask(ctx, "t1")
	if !errors.Is(err, task.ErrTransport) {
		t.Fatalf("open circuit: expected ErrTransport, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("open circuit should not reach the server, got %d calls", calls.Load())
	}
}

func TestHTTPClientRejectionsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		httpapi.WriteError(w, http.StatusForbidden, httpapi.ErrForbidden, task.ReasonUnderReview, nil, false)
	}, WithBreaker(BreakerConfig{MaxRequests: 1, Timeout: time.Minute, ConsecutiveFailures: 2}))

	for i := 0; i < 4; i++ {
		if _, err := c.PauseTask(as(employee), "t1"); !errors.Is(err, task.ErrForbidden) {
			t.Fatalf("call %d: expected ErrForbidden, got %v", i, err)
		}
	}
	if calls.Load() != 4 {
		t.Errorf("expected every call to reach the server, got %d", calls.Load())
	}
}

func TestHTTPClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewHTTPClient(url)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListTasks(context.Background()); !errors.Is(err, task.ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestNewHTTPClientRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "ftp://example.com"} {
		if _, err := NewHTTPClient(raw); err == nil {
			t.Errorf("NewHTTPClient(%q) should fail", raw)
		}
	}
}
