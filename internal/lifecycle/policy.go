// Package lifecycle holds the transport-independent task rules: who may
// mutate a task, which status transitions are legal, how tracked time is
// folded, and how a reassignment request changes a task.
package lifecycle

import (
	"github.com/aristath/taskboard/internal/task"
)

// ReadOnlyReason reports whether user is currently barred from mutating t,
// and the first reason that applies. It must be evaluated against a freshly
// fetched snapshot before every mutating action.
func ReadOnlyReason(t *task.Task, user task.User) (string, bool) {
	if user.Role == task.RoleClient {
		return task.ReasonClientReadOnly, true
	}
	if t.Status.Terminal() {
		return task.ReasonCompleted, true
	}
	if t.Lock.Pending() {
		return task.ReasonReassignPending, true
	}

	assignment, assigned := t.FindAssignment(user.ID)
	if assigned && assignment.ReadOnly {
		return task.ReasonReadOnlyEntry, true
	}

	if user.Role.CanFinalize() {
		// Managers and admins act on any task, including completing one under review.
		return "", false
	}
	if t.Status == task.StatusReview {
		return task.ReasonUnderReview, true
	}
	if !assigned {
		return task.ReasonNotAssigned, true
	}
	return "", false
}

// IsReadOnly reports whether user may not mutate t right now.
func IsReadOnly(t *task.Task, user task.User) bool {
	_, readOnly := ReadOnlyReason(t, user)
	return readOnly
}

// CheckWritable returns a forbidden error when user may not mutate t.
func CheckWritable(op string, t *task.Task, user task.User) error {
	if reason, readOnly := ReadOnlyReason(t, user); readOnly {
		return task.Forbidden(op, t.ID, reason)
	}
	return nil
}
