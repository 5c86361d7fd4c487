package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aristath/taskboard/internal/persistence"
	"github.com/aristath/taskboard/internal/task"
)

// Backend defines the remote operations the dashboard core depends on.
// Every mutating call returns the canonical snapshot the backend persisted;
// callers replace their cached copy with it rather than trusting their own
// optimistic state.
type Backend interface {
	// Reads
	FetchTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context) ([]*task.Task, error)
	ListReassignmentRequests(ctx context.Context, taskID string) ([]*task.ReassignmentRequest, error)

	// Lifecycle commits
	StartTask(ctx context.Context, id string) (*task.Task, error)
	PauseTask(ctx context.Context, id string) (*task.Task, error)
	ResumeTask(ctx context.Context, id string) (*task.Task, error)
	RequestCompletion(ctx context.Context, id, projectID string) (*task.Task, error)
	CompleteTask(ctx context.Context, id string) (*task.Task, error)

	// Reassignment workflow
	RequestReassignment(ctx context.Context, taskID, reason string) (ReassignmentResult, error)
	ApproveReassignment(ctx context.Context, taskID, requestID, newAssigneeID string) (ReassignmentResult, error)
	RejectReassignment(ctx context.Context, taskID, requestID string) (ReassignmentResult, error)

	// Checklist
	CreateChecklistItem(ctx context.Context, taskID string, in ChecklistInput) (*task.Task, error)
	UpdateChecklistItem(ctx context.Context, taskID, itemID string, in ChecklistInput) (*task.Task, error)
	CompleteChecklistItem(ctx context.Context, taskID, itemID string) (*task.Task, error)
	DeleteChecklistItem(ctx context.Context, taskID, itemID string) (*task.Task, error)
}

// New creates a backend based on the provided configuration.
// Switches on cfg.Type: "local" runs the authoritative rules over store,
// "http" talks to a remote taskboard server.
func New(cfg Config, store persistence.Store, logger *slog.Logger) (Backend, error) {
	switch cfg.Type {
	case "", "local":
		if store == nil {
			return nil, fmt.Errorf("local backend requires a store")
		}
		return NewLocal(store, WithPolicy(cfg.Policy), WithLogger(logger)), nil
	case "http":
		client, err := NewHTTPClient(cfg.ServerURL, WithHTTPLogger(logger), WithTimeout(cfg.Timeout))
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}

type actorKey struct{}

// WithActor returns a context carrying the acting user.
func WithActor(ctx context.Context, user task.User) context.Context {
	return context.WithValue(ctx, actorKey{}, user)
}

// ActorFrom returns the acting user carried by ctx.
func ActorFrom(ctx context.Context) (task.User, bool) {
	user, ok := ctx.Value(actorKey{}).(task.User)
	return user, ok && user.ID != ""
}
