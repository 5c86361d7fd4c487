package lifecycle

import (
	"strings"
	"time"

	"github.com/aristath/taskboard/internal/task"
)

// ReassignPolicy holds the configurable parts of the reassignment workflow.
type ReassignPolicy struct {
	// AllowAfterRejection permits a new request once an earlier one on the
	// same task was rejected. When false, a rejection is permanent.
	AllowAfterRejection bool
	// RetainPriorAssignee keeps the requester's assignment as a read-only
	// audit entry on approval instead of removing it.
	RetainPriorAssignee bool
}

// DefaultReassignPolicy allows re-requests and keeps the audit entry.
func DefaultReassignPolicy() ReassignPolicy {
	return ReassignPolicy{AllowAfterRejection: true, RetainPriorAssignee: true}
}

// CheckRequest validates a new reassignment request by user against a fresh
// snapshot of t and every request ever made on it.
func (p ReassignPolicy) CheckRequest(t *task.Task, requests []*task.ReassignmentRequest, user task.User, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return task.Validation("request-reassignment", t.ID, "a reason is required")
	}
	if err := CheckWritable("request-reassignment", t, user); err != nil {
		return err
	}
	for _, r := range requests {
		switch {
		case r.Status == task.RequestPending:
			return task.Conflict("request-reassignment", t.ID, "a reassignment request is already pending")
		case r.Status == task.RequestRejected && !p.AllowAfterRejection:
			return task.Forbidden("request-reassignment", t.ID, "an earlier reassignment request was rejected")
		}
	}
	return nil
}

// ApplyRequest locks t for req and parks an in-progress task on hold,
// folding its running timer.
func ApplyRequest(t *task.Task, req *task.ReassignmentRequest, now time.Time) {
	t.Lock = task.Lock{
		IsLocked:      true,
		RequestID:     req.ID,
		RequestStatus: task.RequestPending,
		RequestedAt:   task.TimePtr(req.RequestedAt),
		RequesterName: req.RequesterName,
	}
	if t.Status == task.StatusInProgress {
		t.Status = task.StatusOnHold
		t.Timer = fold(t.Timer, now)
	}
	t.UpdatedAt = now
}

// CheckResolve validates that user may resolve req right now.
func CheckResolve(op string, t *task.Task, req *task.ReassignmentRequest, user task.User) error {
	if !user.Role.CanFinalize() {
		return task.Forbidden(op, t.ID, "only a manager or admin can resolve reassignment requests")
	}
	if req.TaskID != "" && !t.HasID(req.TaskID) {
		return task.Validation(op, t.ID, "request belongs to a different task")
	}
	if req.Status != task.RequestPending {
		return &task.Error{Kind: task.ErrAlreadyResolved, Op: op, TaskID: t.ID, Reason: "reassignment request already " + strings.ToLower(string(req.Status))}
	}
	return nil
}

// ApplyApproval hands t to newAssigneeID and resolves req as approved.
func (p ReassignPolicy) ApplyApproval(t *task.Task, req *task.ReassignmentRequest, newAssigneeID string, now time.Time) {
	var users []task.Assignment
	for _, a := range t.AssignedUsers {
		switch {
		case a.UserID == newAssigneeID:
			continue // re-added below as writable
		case a.UserID == req.RequesterID:
			if !p.RetainPriorAssignee {
				continue
			}
			a.ReadOnly = true
		}
		users = append(users, a)
	}
	t.AssignedUsers = append(users, task.Assignment{UserID: newAssigneeID, ReadOnly: false})

	if t.Status == task.StatusOnHold || t.Status == task.StatusInProgress {
		t.Status = task.StatusInProgress
		t.Timer = fold(t.Timer, now)
		t.Timer.Running = true
		t.Timer.StartedAt = task.TimePtr(now)
	}

	resolve(t, req, task.RequestApproved, now)
	req.NewAssigneeID = newAssigneeID
}

// ApplyRejection unlocks t without touching its status or assignees.
func ApplyRejection(t *task.Task, req *task.ReassignmentRequest, now time.Time) {
	resolve(t, req, task.RequestRejected, now)
}

func resolve(t *task.Task, req *task.ReassignmentRequest, status task.RequestStatus, now time.Time) {
	req.Status = status
	req.RespondedAt = task.TimePtr(now)

	t.Lock.IsLocked = false
	t.Lock.RequestID = req.ID
	t.Lock.RequestStatus = status
	t.Lock.RespondedAt = task.TimePtr(now)
	t.UpdatedAt = now
}
