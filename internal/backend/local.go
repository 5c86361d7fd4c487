package backend

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/taskboard/internal/lifecycle"
	"github.com/aristath/taskboard/internal/persistence"
	"github.com/aristath/taskboard/internal/task"
)

// Local is the authoritative backend. It enforces every lifecycle rule
// server-side against the stored snapshot, so a client that skipped its own
// checks still cannot corrupt a task.
type Local struct {
	store   persistence.Store
	tracker *lifecycle.TimeTracker
	policy  lifecycle.ReassignPolicy
	locks   *taskLocks
	logger  *slog.Logger
	newID   func() string
}

// LocalOption configures a Local backend.
type LocalOption func(*Local)

// WithClock sets the clock used for timers and timestamps.
func WithClock(now func() time.Time) LocalOption {
	return func(l *Local) {
		l.tracker = lifecycle.NewTimeTracker(now)
	}
}

// WithPolicy sets the reassignment policy.
func WithPolicy(p lifecycle.ReassignPolicy) LocalOption {
	return func(l *Local) {
		l.policy = p
	}
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithIDGenerator replaces the uuid generator used for new records.
func WithIDGenerator(fn func() string) LocalOption {
	return func(l *Local) {
		l.newID = fn
	}
}

// NewLocal creates an authoritative backend over store.
func NewLocal(store persistence.Store, opts ...LocalOption) *Local {
	l := &Local{
		store:   store,
		tracker: lifecycle.NewTimeTracker(nil),
		policy:  lifecycle.DefaultReassignPolicy(),
		locks:   newTaskLocks(),
		logger:  slog.Default(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Import stores snapshots as-is, bypassing lifecycle rules. Used for seeding.
func (l *Local) Import(ctx context.Context, tasks []*task.Task) error {
	for _, t := range tasks {
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = l.tracker.Now()
		}
		if err := l.store.SaveTask(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (l *Local) FetchTask(ctx context.Context, id string) (*task.Task, error) {
	return l.store.GetTask(ctx, id)
}

func (l *Local) ListTasks(ctx context.Context) ([]*task.Task, error) {
	return l.store.ListTasks(ctx)
}

func (l *Local) ListReassignmentRequests(ctx context.Context, taskID string) ([]*task.ReassignmentRequest, error) {
	t, err := l.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return l.store.ListRequests(ctx, t.ID)
}

func (l *Local) StartTask(ctx context.Context, id string) (*task.Task, error) {
	return l.mutate(ctx, "start", id, func(t *task.Task, user task.User, now time.Time) error {
		if err := l.transition("start", t, task.StatusInProgress, user); err != nil {
			return err
		}
		timer, err := l.tracker.Start(t, user)
		if err != nil {
			return err
		}
		t.Status = task.StatusInProgress
		t.Timer = timer
		return nil
	})
}

func (l *Local) PauseTask(ctx context.Context, id string) (*task.Task, error) {
	return l.mutate(ctx, "pause", id, func(t *task.Task, user task.User, now time.Time) error {
		if err := l.transition("pause", t, task.StatusOnHold, user); err != nil {
			return err
		}
		timer, err := l.tracker.Pause(t, user)
		if err != nil {
			return err
		}
		t.Status = task.StatusOnHold
		t.Timer = timer
		return nil
	})
}

func (l *Local) ResumeTask(ctx context.Context, id string) (*task.Task, error) {
	return l.mutate(ctx, "resume", id, func(t *task.Task, user task.User, now time.Time) error {
		if err := l.transition("resume", t, task.StatusInProgress, user); err != nil {
			return err
		}
		timer, err := l.tracker.Resume(t, user)
		if err != nil {
			return err
		}
		t.Status = task.StatusInProgress
		t.Timer = timer
		return nil
	})
}

// RequestCompletion moves an in-progress task into review. The running
// timer is folded so nothing keeps counting while a manager reviews.
func (l *Local) RequestCompletion(ctx context.Context, id, projectID string) (*task.Task, error) {
	return l.mutate(ctx, "request-completion", id, func(t *task.Task, user task.User, now time.Time) error {
		if projectID != "" && t.ProjectID != "" && projectID != t.ProjectID {
			return task.Validation("request-completion", t.ID, "task does not belong to project "+projectID)
		}
		if err := l.transition("request-completion", t, task.StatusReview, user); err != nil {
			return err
		}
		t.Status = task.StatusReview
		t.Timer = lifecycle.Fold(t.Timer, now)
		return nil
	})
}

// CompleteTask finalizes a task under review. Only managers and admins may.
func (l *Local) CompleteTask(ctx context.Context, id string) (*task.Task, error) {
	return l.mutate(ctx, "complete", id, func(t *task.Task, user task.User, now time.Time) error {
		if err := l.transition("complete", t, task.StatusCompleted, user); err != nil {
			return err
		}
		timer, _, err := l.tracker.Complete(t, user)
		if err != nil {
			return err
		}
		t.Status = task.StatusCompleted
		t.Timer = timer
		return nil
	})
}

func (l *Local) RequestReassignment(ctx context.Context, taskID, reason string) (ReassignmentResult, error) {
	const op = "request-reassignment"
	var result ReassignmentResult

	user, err := actor(ctx, op, taskID)
	if err != nil {
		return result, err
	}
	err = l.withTask(ctx, op, taskID, func(t *task.Task) error {
		requests, err := l.store.ListRequests(ctx, t.ID)
		if err != nil {
			return err
		}
		if err := l.policy.CheckRequest(t, requests, user, reason); err != nil {
			return err
		}

		now := l.tracker.Now()
		req := &task.ReassignmentRequest{
			ID:            l.newID(),
			TaskID:        t.ID,
			RequesterID:   user.ID,
			RequesterName: user.Name,
			Reason:        strings.TrimSpace(reason),
			Status:        task.RequestPending,
			RequestedAt:   now,
		}
		lifecycle.ApplyRequest(t, req, now)
		if err := l.store.SaveTaskWithRequest(ctx, t, req); err != nil {
			return err
		}
		result = ReassignmentResult{Request: req, Task: t}
		return nil
	})
	if err != nil {
		l.logRejected(op, taskID, err)
		return ReassignmentResult{}, err
	}
	l.logger.Info("reassignment requested", "task_id", result.Task.ID, "request_id", result.Request.ID, "requester", user.ID)
	return result, nil
}

func (l *Local) ApproveReassignment(ctx context.Context, taskID, requestID, newAssigneeID string) (ReassignmentResult, error) {
	const op = "approve-reassignment"
	if strings.TrimSpace(newAssigneeID) == "" {
		return ReassignmentResult{}, task.Validation(op, taskID, "a new assignee is required")
	}
	return l.resolve(ctx, op, taskID, requestID, func(t *task.Task, req *task.ReassignmentRequest, now time.Time) {
		l.policy.ApplyApproval(t, req, newAssigneeID, now)
	})
}

func (l *Local) RejectReassignment(ctx context.Context, taskID, requestID string) (ReassignmentResult, error) {
	return l.resolve(ctx, "reject-reassignment", taskID, requestID, func(t *task.Task, req *task.ReassignmentRequest, now time.Time) {
		lifecycle.ApplyRejection(t, req, now)
	})
}

func (l *Local) resolve(ctx context.Context, op, taskID, requestID string, apply func(*task.Task, *task.ReassignmentRequest, time.Time)) (ReassignmentResult, error) {
	var result ReassignmentResult

	user, err := actor(ctx, op, taskID)
	if err != nil {
		return result, err
	}
	err = l.withTask(ctx, op, taskID, func(t *task.Task) error {
		req, err := l.store.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if err := lifecycle.CheckResolve(op, t, req, user); err != nil {
			return err
		}

		apply(t, req, l.tracker.Now())
		if err := l.store.SaveTaskWithRequest(ctx, t, req); err != nil {
			return err
		}
		result = ReassignmentResult{Request: req, Task: t}
		return nil
	})
	if err != nil {
		l.logRejected(op, taskID, err)
		return ReassignmentResult{}, err
	}
	l.logger.Info("reassignment resolved", "task_id", result.Task.ID, "request_id", requestID, "status", string(result.Request.Status), "by", user.ID)
	return result, nil
}

func (l *Local) CreateChecklistItem(ctx context.Context, taskID string, in ChecklistInput) (*task.Task, error) {
	return l.mutate(ctx, "create-checklist-item", taskID, func(t *task.Task, user task.User, now time.Time) error {
		if err := lifecycle.CheckWritable("create-checklist-item", t, user); err != nil {
			return err
		}
		title := strings.TrimSpace(in.Title)
		if title == "" {
			return task.Validation("create-checklist-item", t.ID, "a title is required")
		}
		t.Checklist = append(t.Checklist, task.ChecklistItem{
			ID:      l.newID(),
			Title:   title,
			DueDate: in.DueDate,
			Status:  task.ChecklistPending,
		})
		return nil
	})
}

func (l *Local) UpdateChecklistItem(ctx context.Context, taskID, itemID string, in ChecklistInput) (*task.Task, error) {
	const op = "update-checklist-item"
	return l.mutate(ctx, op, taskID, func(t *task.Task, user task.User, now time.Time) error {
		i, err := checklistIndex(op, t, user, itemID)
		if err != nil {
			return err
		}
		title := strings.TrimSpace(in.Title)
		if title == "" {
			return task.Validation(op, t.ID, "a title is required")
		}
		t.Checklist[i].Title = title
		t.Checklist[i].DueDate = in.DueDate
		return nil
	})
}

func (l *Local) CompleteChecklistItem(ctx context.Context, taskID, itemID string) (*task.Task, error) {
	const op = "complete-checklist-item"
	return l.mutate(ctx, op, taskID, func(t *task.Task, user task.User, now time.Time) error {
		i, err := checklistIndex(op, t, user, itemID)
		if err != nil {
			return err
		}
		if t.Checklist[i].Status == task.ChecklistCompleted {
			return task.Validation(op, t.ID, "checklist item is already completed")
		}
		t.Checklist[i].Status = task.ChecklistCompleted
		t.Checklist[i].CompletedAt = task.TimePtr(now)
		return nil
	})
}

func (l *Local) DeleteChecklistItem(ctx context.Context, taskID, itemID string) (*task.Task, error) {
	const op = "delete-checklist-item"
	return l.mutate(ctx, op, taskID, func(t *task.Task, user task.User, now time.Time) error {
		i, err := checklistIndex(op, t, user, itemID)
		if err != nil {
			return err
		}
		t.Checklist = append(t.Checklist[:i], t.Checklist[i+1:]...)
		return nil
	})
}

func checklistIndex(op string, t *task.Task, user task.User, itemID string) (int, error) {
	if err := lifecycle.CheckWritable(op, t, user); err != nil {
		return -1, err
	}
	_, i, ok := t.FindChecklistItem(itemID)
	if !ok {
		return -1, task.NotFound(op, itemID)
	}
	return i, nil
}

// mutate runs fn against a fresh snapshot under the task's lock and
// persists the result. fn must leave t untouched when it returns an error.
func (l *Local) mutate(ctx context.Context, op, id string, fn func(t *task.Task, user task.User, now time.Time) error) (*task.Task, error) {
	user, err := actor(ctx, op, id)
	if err != nil {
		return nil, err
	}

	var saved *task.Task
	err = l.withTask(ctx, op, id, func(t *task.Task) error {
		now := l.tracker.Now()
		if err := fn(t, user, now); err != nil {
			return err
		}
		t.UpdatedAt = now
		if err := l.store.SaveTask(ctx, t); err != nil {
			return err
		}
		saved = t
		return nil
	})
	if err != nil {
		l.logRejected(op, id, err)
		return nil, err
	}

	l.logger.Info("task committed", "op", op, "task_id", saved.ID, "status", saved.Status.String(), "by", user.ID)
	return saved, nil
}

// withTask resolves id to its canonical task, locks it, and hands fn a
// snapshot re-read inside the lock.
func (l *Local) withTask(ctx context.Context, op, id string, fn func(t *task.Task) error) error {
	current, err := l.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	l.locks.Lock(current.ID)
	defer l.locks.Unlock(current.ID)

	fresh, err := l.store.GetTask(ctx, current.ID)
	if err != nil {
		return err
	}
	return fn(fresh)
}

// transition checks writability first so the caller sees why a locked task
// refuses, then validates the status edge.
func (l *Local) transition(op string, t *task.Task, to task.Status, user task.User) error {
	if err := lifecycle.CheckWritable(op, t, user); err != nil {
		return err
	}
	if _, err := lifecycle.Validate(t.Status, to, user.Role); err != nil {
		return task.Tag(err, op, t.ID)
	}
	return nil
}

func (l *Local) logRejected(op, id string, err error) {
	kind := task.KindOf(err)
	if kind == nil {
		l.logger.Error("task operation failed", "op", op, "task_id", id, "error", err)
		return
	}
	l.logger.Warn("task operation rejected", "op", op, "task_id", id, "kind", kind.Error(), "reason", task.ReasonOf(err))
}

func actor(ctx context.Context, op, taskID string) (task.User, error) {
	user, ok := ActorFrom(ctx)
	if !ok {
		return task.User{}, task.Forbidden(op, taskID, "no acting user")
	}
	return user, nil
}
