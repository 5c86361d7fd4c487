// Package httpapi defines the JSON envelope shared by the REST server and
// its client, and the mapping between task errors and wire error codes.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/taskboard/internal/task"
)

// Error represents a standardized API error payload.
type Error struct {
	Code      string        `json:"code"`
	Message   string        `json:"message"`
	Details   *ErrorDetails `json:"details,omitempty"`
	Retryable bool          `json:"retryable,omitempty"`
}

// ErrorDetails identifies the failed operation.
type ErrorDetails struct {
	Op     string `json:"op,omitempty"`
	TaskID string `json:"taskId,omitempty"`
}

// Envelope is the standard response wrapper for API endpoints.
type Envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

const (
	ErrInvalidRequest  = "invalid_request"
	ErrUnauthorized    = "unauthorized"
	ErrForbidden       = "forbidden"
	ErrNotFound        = "not_found"
	ErrConflict        = "conflict"
	ErrAlreadyResolved = "already_resolved"
	ErrInternal        = "internal_error"
	ErrUnavailable     = "unavailable"
)

// Header names carrying the acting user.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
	HeaderUserRole = "X-User-Role"
)

// WriteJSON writes a JSON response with proper headers.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteOK writes a success response.
func WriteOK(w http.ResponseWriter, status int, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternal, "failed to encode response", nil, false)
		return
	}
	WriteJSON(w, status, Envelope{OK: true, Data: raw})
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, code, message string, details *ErrorDetails, retryable bool) {
	WriteJSON(w, status, Envelope{OK: false, Error: &Error{Code: code, Message: message, Details: details, Retryable: retryable}})
}

// WriteTaskError maps err onto a status and code and writes it.
func WriteTaskError(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	var details *ErrorDetails
	var te *task.Error
	if errors.As(err, &te) {
		details = &ErrorDetails{Op: te.Op, TaskID: te.TaskID}
	}
	WriteError(w, status, code, task.ReasonOf(err), details, code == ErrUnavailable || code == ErrInternal)
}

// StatusFor returns the HTTP status and error code for err.
func StatusFor(err error) (int, string) {
	switch task.KindOf(err) {
	case task.ErrAlreadyResolved:
		return http.StatusConflict, ErrAlreadyResolved
	case task.ErrValidation:
		return http.StatusBadRequest, ErrInvalidRequest
	case task.ErrForbidden:
		return http.StatusForbidden, ErrForbidden
	case task.ErrConflict, task.ErrInFlight:
		return http.StatusConflict, ErrConflict
	case task.ErrNotFound:
		return http.StatusNotFound, ErrNotFound
	case task.ErrTransport:
		return http.StatusBadGateway, ErrUnavailable
	}
	return http.StatusInternalServerError, ErrInternal
}

// kinds is the inverse of StatusFor for the client side.
var kinds = map[string]error{
	ErrInvalidRequest:  task.ErrValidation,
	ErrUnauthorized:    task.ErrForbidden,
	ErrForbidden:       task.ErrForbidden,
	ErrConflict:        task.ErrConflict,
	ErrAlreadyResolved: task.ErrAlreadyResolved,
	ErrNotFound:        task.ErrNotFound,
	ErrUnavailable:     task.ErrTransport,
	ErrInternal:        task.ErrTransport,
}

// TaskError rebuilds a classified task error from a wire payload.
// Unknown codes are treated as transport failures.
func (e *Error) TaskError(op, taskID string) *task.Error {
	kind, ok := kinds[e.Code]
	if !ok {
		kind = task.ErrTransport
	}
	out := &task.Error{Kind: kind, Op: op, TaskID: taskID, Reason: e.Message}
	if e.Details != nil {
		if e.Details.Op != "" {
			out.Op = e.Details.Op
		}
		if e.Details.TaskID != "" {
			out.TaskID = e.Details.TaskID
		}
	}
	return out
}
