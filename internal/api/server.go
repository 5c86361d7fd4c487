// Package api exposes a backend.Backend over REST with the httpapi envelope.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aristath/taskboard/internal/backend"
	"github.com/aristath/taskboard/internal/httpapi"
	"github.com/aristath/taskboard/internal/task"
)

// Server serves the task operations of a backend.
type Server struct {
	backend backend.Backend
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates a server for b. A nil logger uses slog.Default().
func New(b backend.Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{backend: b, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the root handler with actor and logging middleware.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.withActor(s.mux))
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleFetchTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/start", s.taskAction(s.backend.StartTask))
	s.mux.HandleFunc("POST /api/tasks/{id}/pause", s.taskAction(s.backend.PauseTask))
	s.mux.HandleFunc("POST /api/tasks/{id}/resume", s.taskAction(s.backend.ResumeTask))
	s.mux.HandleFunc("POST /api/tasks/{id}/complete", s.taskAction(s.backend.CompleteTask))
	s.mux.HandleFunc("POST /api/tasks/{id}/request-completion", s.handleRequestCompletion)

	s.mux.HandleFunc("GET /api/tasks/{id}/reassignment-requests", s.handleListRequests)
	s.mux.HandleFunc("POST /api/tasks/{id}/reassignment-requests", s.handleRequestReassignment)
	s.mux.HandleFunc("POST /api/tasks/{id}/reassignment-requests/{requestId}/approve", s.handleApprove)
	s.mux.HandleFunc("POST /api/tasks/{id}/reassignment-requests/{requestId}/reject", s.handleReject)

	s.mux.HandleFunc("POST /api/tasks/{id}/checklist", s.handleCreateChecklistItem)
	s.mux.HandleFunc("PUT /api/tasks/{id}/checklist/{itemId}", s.handleUpdateChecklistItem)
	s.mux.HandleFunc("POST /api/tasks/{id}/checklist/{itemId}/complete", s.handleCompleteChecklistItem)
	s.mux.HandleFunc("DELETE /api/tasks/{id}/checklist/{itemId}", s.handleDeleteChecklistItem)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteOK(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.backend.ListTasks(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, tasks)
}

func (s *Server) handleFetchTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.backend.FetchTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, t)
}

func (s *Server) taskAction(fn func(ctx context.Context, id string) (*task.Task, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := fn(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httpapi.WriteOK(w, http.StatusOK, t)
	}
}

func (s *Server) handleRequestCompletion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID string `json:"projectId"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	t, err := s.backend.RequestCompletion(r.Context(), r.PathValue("id"), body.ProjectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, t)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.backend.ListReassignmentRequests(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, requests)
}

func (s *Server) handleRequestReassignment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	res, err := s.backend.RequestReassignment(r.Context(), r.PathValue("id"), body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpapi.WriteOK(w, http.StatusCreated, res)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NewAssigneeID string `json:"newAssigneeId"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	res, err := s.backend.ApproveReassignment(r.Context(), r.PathValue("id"), r.PathValue("requestId"), body.NewAssigneeID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, res)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	res, err := s.backend.RejectReassignment(r.Context(), r.PathValue("id"), r.PathValue("requestId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, res)
}

func (s *Server) handleCreateChecklistItem(w http.ResponseWriter, r *http.Request) {
	var in backend.ChecklistInput
	if !s.decode(w, r, &in) {
		return
	}
	t, err := s.backend.CreateChecklistItem(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpapi.WriteOK(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateChecklistItem(w http.ResponseWriter, r *http.Request) {
	var in backend.ChecklistInput
	if !s.decode(w, r, &in) {
		return
	}
	t, err := s.backend.UpdateChecklistItem(r.Context(), r.PathValue("id"), r.PathValue("itemId"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, t)
}

func (s *Server) handleCompleteChecklistItem(w http.ResponseWriter, r *http.Request) {
	t, err := s.backend.CompleteChecklistItem(r.Context(), r.PathValue("id"), r.PathValue("itemId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, t)
}

func (s *Server) handleDeleteChecklistItem(w http.ResponseWriter, r *http.Request) {
	t, err := s.backend.DeleteChecklistItem(r.Context(), r.PathValue("id"), r.PathValue("itemId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpapi.WriteOK(w, http.StatusOK, t)
}

// decode reads an optional JSON body into v. An empty body leaves v zeroed.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrInvalidRequest, "malformed request body", nil, false)
	return false
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := httpapi.StatusFor(err); status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	httpapi.WriteTaskError(w, err)
}
