package task

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the core wraps exactly one of these
// so callers can tell validation from authorization from conflicts.
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("action not permitted")
	ErrConflict   = errors.New("state changed, refresh and retry")
	ErrNotFound   = errors.New("not found")
	ErrTransport  = errors.New("backend unavailable")

	// ErrAlreadyResolved is the conflict raised when a reassignment request
	// was approved or rejected by another actor first.
	ErrAlreadyResolved = fmt.Errorf("reassignment request already resolved: %w", ErrConflict)

	// ErrInFlight is returned when the same mutating action is already
	// running for a task. Callers treat it as a no-op.
	ErrInFlight = errors.New("action already in flight")
)

// Forbidden reasons shown to the user.
const (
	ReasonUnderReview     = "task under review"
	ReasonReassignPending = "reassignment pending"
	ReasonCompleted       = "task completed"
	ReasonReadOnlyEntry   = "read-only assignment"
	ReasonNotAssigned     = "not assigned to task"
	ReasonClientReadOnly  = "clients have read-only access"
)

// Error describes a failed operation on a task.
type Error struct {
	Kind   error  // One of the Err* kinds above
	Op     string // Operation that failed, e.g. "start"
	TaskID string
	Reason string // Human readable explanation
	Err    error  // Underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.TaskID != "" {
		msg = fmt.Sprintf("task %s: %s", e.TaskID, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the error kind, including kinds wrapped by it.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

// Validation builds a local validation failure.
func Validation(op, taskID, reason string) *Error {
	return &Error{Kind: ErrValidation, Op: op, TaskID: taskID, Reason: reason}
}

// Forbidden builds an authorization or lock failure.
func Forbidden(op, taskID, reason string) *Error {
	return &Error{Kind: ErrForbidden, Op: op, TaskID: taskID, Reason: reason}
}

// Conflict builds a conflict failure.
func Conflict(op, taskID, reason string) *Error {
	return &Error{Kind: ErrConflict, Op: op, TaskID: taskID, Reason: reason}
}

// NotFound builds a not-found failure.
func NotFound(op, id string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, TaskID: id, Reason: "not found"}
}

// Transport wraps a network or server failure.
func Transport(op, taskID string, err error) *Error {
	return &Error{Kind: ErrTransport, Op: op, TaskID: taskID, Err: err}
}

// Tag fills in the operation and task id on an error produced without
// them, e.g. by a transport-independent check. Other errors pass through.
func Tag(err error, op, taskID string) error {
	var te *Error
	if !errors.As(err, &te) {
		return err
	}
	cp := *te
	if op != "" {
		cp.Op = op
	}
	if cp.TaskID == "" {
		cp.TaskID = taskID
	}
	return &cp
}

// KindOf returns the kind of err, or nil if err is not a classified failure.
func KindOf(err error) error {
	for _, kind := range []error{ErrAlreadyResolved, ErrValidation, ErrForbidden, ErrConflict, ErrNotFound, ErrTransport, ErrInFlight} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// ReasonOf returns the human reason carried by err, falling back to its text.
func ReasonOf(err error) string {
	var te *Error
	if errors.As(err, &te) && te.Reason != "" {
		return te.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
