package api

import (
	"net/http"
	"time"

	"github.com/aristath/taskboard/internal/backend"
	"github.com/aristath/taskboard/internal/httpapi"
	"github.com/aristath/taskboard/internal/task"
)

// withActor reads the acting user from request headers. Authentication is
// handled in front of this server; requests without a user id carry no
// actor and are refused by every mutating operation.
func (s *Server) withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(httpapi.HeaderUserID)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		role, err := task.ParseRole(r.Header.Get(httpapi.HeaderUserRole))
		if err != nil {
			httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrInvalidRequest, err.Error(), nil, false)
			return
		}
		user := task.User{ID: id, Name: r.Header.Get(httpapi.HeaderUserName), Role: role}
		next.ServeHTTP(w, r.WithContext(backend.WithActor(r.Context(), user)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"user", r.Header.Get(httpapi.HeaderUserID),
			"duration", time.Since(start),
		)
	})
}
