package actions

import (
	"context"
	"strings"

	"github.com/aristath/taskboard/internal/backend"
	"github.com/aristath/taskboard/internal/events"
	"github.com/aristath/taskboard/internal/lifecycle"
	"github.com/aristath/taskboard/internal/repository"
	"github.com/aristath/taskboard/internal/task"
)

// ReassignmentManager drives the reassignment workflow for one user:
// employees request a hand-off, managers approve or reject it.
type ReassignmentManager struct {
	core
}

// NewReassignmentManager creates a manager acting as user.
func NewReassignmentManager(b backend.Backend, repo *repository.Repository, user task.User, opts ...Option) *ReassignmentManager {
	return &ReassignmentManager{core: newCore(b, repo, user, opts)}
}

// Requests returns every reassignment request ever made on the task.
func (m *ReassignmentManager) Requests(ctx context.Context, id string) ([]*task.ReassignmentRequest, error) {
	return m.backend.ListReassignmentRequests(m.actorCtx(ctx), id)
}

// Pending returns the task's open request, if there is one.
func (m *ReassignmentManager) Pending(ctx context.Context, id string) (*task.ReassignmentRequest, error) {
	requests, err := m.Requests(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, r := range requests {
		if r.Status == task.RequestPending {
			return r, nil
		}
	}
	return nil, nil
}

// Request asks a manager to hand the task to someone else. The task is
// locked for everyone until the request is resolved.
func (m *ReassignmentManager) Request(ctx context.Context, id, reason string) (backend.ReassignmentResult, error) {
	const op = "request-reassignment"
	if strings.TrimSpace(reason) == "" {
		return backend.ReassignmentResult{}, m.reject(op, id, task.Validation(op, id, "a reason is required"))
	}

	fresh, done, err := m.begin(ctx, op, id)
	if err != nil {
		return backend.ReassignmentResult{}, err
	}
	defer done()

	requests, err := m.backend.ListReassignmentRequests(m.actorCtx(ctx), fresh.ID)
	if err != nil {
		return backend.ReassignmentResult{}, m.failed(ctx, op, fresh.ID, err)
	}
	if err := m.policy.CheckRequest(fresh, requests, m.user, reason); err != nil {
		return backend.ReassignmentResult{}, m.reject(op, fresh.ID, err)
	}

	res, err := m.backend.RequestReassignment(m.actorCtx(ctx), fresh.ID, reason)
	if err != nil {
		return backend.ReassignmentResult{}, m.failed(ctx, op, fresh.ID, err)
	}
	res.Task = m.commit(op, res.Task)
	m.bus.Publish(events.TopicReassignment, events.ReassignmentRequestedEvent{
		Request:   res.Request.Clone(),
		Timestamp: m.now(),
	})
	return res, nil
}

// Approve resolves requestID by handing the task to newAssigneeID.
func (m *ReassignmentManager) Approve(ctx context.Context, id, requestID, newAssigneeID string) (backend.ReassignmentResult, error) {
	const op = "approve-reassignment"
	if strings.TrimSpace(newAssigneeID) == "" {
		return backend.ReassignmentResult{}, m.reject(op, id, task.Validation(op, id, "a new assignee is required"))
	}
	return m.resolve(ctx, op, id, requestID, func(ctx context.Context, taskID string) (backend.ReassignmentResult, error) {
		return m.backend.ApproveReassignment(ctx, taskID, requestID, newAssigneeID)
	})
}

// Reject resolves requestID, unlocking the task with its assignees intact.
func (m *ReassignmentManager) Reject(ctx context.Context, id, requestID string) (backend.ReassignmentResult, error) {
	return m.resolve(ctx, "reject-reassignment", id, requestID, func(ctx context.Context, taskID string) (backend.ReassignmentResult, error) {
		return m.backend.RejectReassignment(ctx, taskID, requestID)
	})
}

type resolveFunc func(ctx context.Context, taskID string) (backend.ReassignmentResult, error)

func (m *ReassignmentManager) resolve(ctx context.Context, op, id, requestID string, send resolveFunc) (backend.ReassignmentResult, error) {
	fresh, done, err := m.begin(ctx, op, id)
	if err != nil {
		return backend.ReassignmentResult{}, err
	}
	defer done()

	requests, err := m.backend.ListReassignmentRequests(m.actorCtx(ctx), fresh.ID)
	if err != nil {
		return backend.ReassignmentResult{}, m.failed(ctx, op, fresh.ID, err)
	}
	var req *task.ReassignmentRequest
	for _, r := range requests {
		if r.ID == requestID {
			req = r
			break
		}
	}
	if req == nil {
		return backend.ReassignmentResult{}, m.reject(op, fresh.ID, task.NotFound(op, requestID))
	}
	if err := lifecycle.CheckResolve(op, fresh, req, m.user); err != nil {
		return backend.ReassignmentResult{}, m.reject(op, fresh.ID, err)
	}

	res, err := send(m.actorCtx(ctx), fresh.ID)
	if err != nil {
		return backend.ReassignmentResult{}, m.failed(ctx, op, fresh.ID, err)
	}
	res.Task = m.commit(op, res.Task)
	m.bus.Publish(events.TopicReassignment, events.ReassignmentResolvedEvent{
		Request:   res.Request.Clone(),
		Timestamp: m.now(),
	})
	return res, nil
}
