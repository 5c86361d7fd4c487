// Package actions runs every mutating user action through the same cycle:
// mark the task in flight, re-fetch its canonical snapshot, validate the
// action against that snapshot, commit it remotely, and cache the
// backend's answer. Cached state is never the basis of a decision.
package actions

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aristath/taskboard/internal/backend"
	"github.com/aristath/taskboard/internal/events"
	"github.com/aristath/taskboard/internal/lifecycle"
	"github.com/aristath/taskboard/internal/repository"
	"github.com/aristath/taskboard/internal/task"
)

// Option configures a Dispatcher or ReassignmentManager.
type Option func(*core)

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *core) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPublisher publishes warnings and reassignment events to p.
func WithPublisher(p events.Publisher) Option {
	return func(c *core) {
		if p != nil {
			c.bus = p
		}
	}
}

// WithClock sets the clock used for local timer checks and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *core) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPolicy sets the reassignment policy checked before a request is sent.
// It should mirror the server's policy.
func WithPolicy(p lifecycle.ReassignPolicy) Option {
	return func(c *core) {
		c.policy = p
	}
}

// core carries the dependencies shared by every action.
type core struct {
	backend backend.Backend
	repo    *repository.Repository
	user    task.User
	bus     events.Publisher
	logger  *slog.Logger
	now     func() time.Time
	policy  lifecycle.ReassignPolicy
}

func newCore(b backend.Backend, repo *repository.Repository, user task.User, opts []Option) core {
	c := core{
		backend: b,
		repo:    repo,
		user:    user,
		bus:     events.Discard,
		logger:  slog.Default(),
		now:     time.Now,
		policy:  lifecycle.DefaultReassignPolicy(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// begin marks id in flight and returns a fresh snapshot. The returned done
// func must be called once the action resolves.
func (c *core) begin(ctx context.Context, op, id string) (*task.Task, func(), error) {
	if err := c.repo.Begin(id, op); err != nil {
		c.logger.Debug("action ignored, already in flight", "op", op, "task_id", id)
		return nil, nil, err
	}
	done := func() { c.repo.End(id) }

	fresh, err := c.repo.Refresh(ctx, id)
	if err != nil {
		done()
		c.logger.Error("re-fetch before action failed", "op", op, "task_id", id, "error", err)
		return nil, nil, err
	}
	return fresh, done, nil
}

// reject reports a local validation or authorization failure. Nothing was
// sent to the backend.
func (c *core) reject(op, id string, err error) error {
	err = task.Tag(err, op, id)
	c.logger.Warn("action rejected", "op", op, "task_id", id, "kind", kindName(err), "reason", task.ReasonOf(err))
	c.bus.Publish(events.TopicTask, events.TaskWarningEvent{
		ID:        id,
		Op:        op,
		Reason:    task.ReasonOf(err),
		Err:       err,
		Timestamp: c.now(),
	})
	return err
}

// failed reports a remote failure. When the backend refused the action the
// cached snapshot is stale, so it is re-fetched to match server truth.
func (c *core) failed(ctx context.Context, op, id string, err error) error {
	if task.KindOf(err) == task.ErrTransport || task.KindOf(err) == nil {
		c.logger.Error("action failed", "op", op, "task_id", id, "error", err)
		return err
	}
	c.logger.Warn("action refused by backend", "op", op, "task_id", id, "kind", kindName(err), "reason", task.ReasonOf(err))
	if _, rerr := c.repo.Refresh(ctx, id); rerr != nil {
		c.logger.Error("reconcile after refusal failed", "op", op, "task_id", id, "error", rerr)
	}
	return err
}

func (c *core) commit(op string, t *task.Task) *task.Task {
	c.repo.Put(op, t)
	c.logger.Info("action committed", "op", op, "task_id", t.ID, "status", t.Status.String())
	cached, ok := c.repo.Get(t.ID)
	if !ok {
		return t
	}
	return cached
}

func (c *core) actorCtx(ctx context.Context) context.Context {
	return backend.WithActor(ctx, c.user)
}

func kindName(err error) string {
	if kind := task.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "unclassified"
}

// Dispatcher executes the lifecycle and checklist actions of one user.
type Dispatcher struct {
	core
	tracker *lifecycle.TimeTracker
}

// NewDispatcher creates a dispatcher acting as user.
func NewDispatcher(b backend.Backend, repo *repository.Repository, user task.User, opts ...Option) *Dispatcher {
	c := newCore(b, repo, user, opts)
	return &Dispatcher{core: c, tracker: lifecycle.NewTimeTracker(c.now)}
}

// User returns the acting user.
func (d *Dispatcher) User() task.User {
	return d.user
}

// check validates a state-changing action against a fresh snapshot.
type check func(fresh *task.Task) error

// commitFunc issues the remote call for an action that passed its check.
type commitFunc func(ctx context.Context, fresh *task.Task) (*task.Task, error)

func (d *Dispatcher) run(ctx context.Context, op, id string, ok check, send commitFunc) (*task.Task, error) {
	fresh, done, err := d.begin(ctx, op, id)
	if err != nil {
		return nil, err
	}
	defer done()

	if err := ok(fresh); err != nil {
		return nil, d.reject(op, fresh.ID, err)
	}

	result, err := send(d.actorCtx(ctx), fresh)
	if err != nil {
		return nil, d.failed(ctx, op, fresh.ID, err)
	}
	return d.commit(op, result), nil
}

// transitionTo checks writability before the status edge so a locked task
// explains itself rather than reporting a generic illegal move.
func (d *Dispatcher) transitionTo(fresh *task.Task, to task.Status) (lifecycle.Transition, error) {
	if err := lifecycle.CheckWritable("transition", fresh, d.user); err != nil {
		return lifecycle.Transition{}, err
	}
	return lifecycle.Validate(fresh.Status, to, d.user.Role)
}

// Start begins work on a pending task.
func (d *Dispatcher) Start(ctx context.Context, id string) (*task.Task, error) {
	return d.run(ctx, "start", id,
		func(fresh *task.Task) error {
			if _, err := d.transitionTo(fresh, task.StatusInProgress); err != nil {
				return err
			}
			_, err := d.tracker.Start(fresh, d.user)
			return err
		},
		func(ctx context.Context, fresh *task.Task) (*task.Task, error) {
			return d.backend.StartTask(ctx, fresh.ID)
		})
}

// Pause puts an in-progress task on hold.
func (d *Dispatcher) Pause(ctx context.Context, id string) (*task.Task, error) {
	return d.run(ctx, "pause", id,
		func(fresh *task.Task) error {
			if _, err := d.transitionTo(fresh, task.StatusOnHold); err != nil {
				return err
			}
			_, err := d.tracker.Pause(fresh, d.user)
			return err
		},
		func(ctx context.Context, fresh *task.Task) (*task.Task, error) {
			return d.backend.PauseTask(ctx, fresh.ID)
		})
}

// Resume continues a task that is on hold.
func (d *Dispatcher) Resume(ctx context.Context, id string) (*task.Task, error) {
	return d.run(ctx, "resume", id,
		func(fresh *task.Task) error {
			if _, err := d.transitionTo(fresh, task.StatusInProgress); err != nil {
				return err
			}
			_, err := d.tracker.Resume(fresh, d.user)
			return err
		},
		func(ctx context.Context, fresh *task.Task) (*task.Task, error) {
			return d.backend.ResumeTask(ctx, fresh.ID)
		})
}

// RequestCompletion submits an in-progress task for review.
func (d *Dispatcher) RequestCompletion(ctx context.Context, id string) (*task.Task, error) {
	return d.run(ctx, "request-completion", id,
		func(fresh *task.Task) error {
			_, err := d.transitionTo(fresh, task.StatusReview)
			return err
		},
		func(ctx context.Context, fresh *task.Task) (*task.Task, error) {
			return d.backend.RequestCompletion(ctx, fresh.ID, fresh.ProjectID)
		})
}

// Complete finalizes a task under review. Manager or admin only.
func (d *Dispatcher) Complete(ctx context.Context, id string) (*task.Task, error) {
	return d.run(ctx, "complete", id,
		func(fresh *task.Task) error {
			if _, err := d.transitionTo(fresh, task.StatusCompleted); err != nil {
				return err
			}
			_, _, err := d.tracker.Complete(fresh, d.user)
			return err
		},
		func(ctx context.Context, fresh *task.Task) (*task.Task, error) {
			return d.backend.CompleteTask(ctx, fresh.ID)
		})
}

// Transition moves a task to target through the commit operation named by
// the status graph. It is the entry point for board gestures.
func (d *Dispatcher) Transition(ctx context.Context, id string, target task.Status) (*task.Task, error) {
	var action lifecycle.Action
	return d.run(ctx, "transition", id,
		func(fresh *task.Task) error {
			tr, err := d.transitionTo(fresh, target)
			if err != nil {
				return err
			}
			action = tr.Action
			return nil
		},
		func(ctx context.Context, fresh *task.Task) (*task.Task, error) {
			switch action {
			case lifecycle.ActionStart:
				return d.backend.StartTask(ctx, fresh.ID)
			case lifecycle.ActionPause:
				return d.backend.PauseTask(ctx, fresh.ID)
			case lifecycle.ActionResume:
				return d.backend.ResumeTask(ctx, fresh.ID)
			case lifecycle.ActionRequestCompletion:
				return d.backend.RequestCompletion(ctx, fresh.ID, fresh.ProjectID)
			case lifecycle.ActionComplete:
				return d.backend.CompleteTask(ctx, fresh.ID)
			}
			return nil, task.Validation("transition", fresh.ID, "no commit for "+action.String())
		})
}

// AddChecklistItem appends an item to the task's checklist.
func (d *Dispatcher) AddChecklistItem(ctx context.Context, id string, in backend.ChecklistInput) (*task.Task, error) {
	return d.run(ctx, "create-checklist-item", id,
		func(fresh *task.Task) error {
			if err := lifecycle.CheckWritable("create-checklist-item", fresh, d.user); err != nil {
				return err
			}
			return requireTitle(in)
		},
		func(ctx context.Context, fresh *task.Task) (*task.Task, error) {
			return d.backend.CreateChecklistItem(ctx, fresh.ID, in)
		})
}

// EditChecklistItem changes an item's title and due date.
func (d *Dispatcher) EditChecklistItem(ctx context.Context, id, itemID string, in backend.ChecklistInput) (*task.Task, error) {
	return d.run(ctx, "update-checklist-item", id,
		func(fresh *task.Task) error {
			if err := d.checkItem(fresh, itemID); err != nil {
				return err
			}
			return requireTitle(in)
		},
		func(ctx context.Context, fresh *task.Task) (*task.Task, error) {
			return d.backend.UpdateChecklistItem(ctx, fresh.ID, itemID, in)
		})
}

// CompleteChecklistItem marks an item done.
func (d *Dispatcher) CompleteChecklistItem(ctx context.Context, id, itemID string) (*task.Task, error) {
	return d.run(ctx, "complete-checklist-item", id,
		func(fresh *task.Task) error {
			if err := d.checkItem(fresh, itemID); err != nil {
				return err
			}
			if item, _, _ := fresh.FindChecklistItem(itemID); item.Status == task.ChecklistCompleted {
				return task.Validation("", "", "checklist item is already completed")
			}
			return nil
		},
		func(ctx context.Context, fresh *task.Task) (*task.Task, error) {
			return d.backend.CompleteChecklistItem(ctx, fresh.ID, itemID)
		})
}

// DeleteChecklistItem removes an item.
func (d *Dispatcher) DeleteChecklistItem(ctx context.Context, id, itemID string) (*task.Task, error) {
	return d.run(ctx, "delete-checklist-item", id,
		func(fresh *task.Task) error {
			return d.checkItem(fresh, itemID)
		},
		func(ctx context.Context, fresh *task.Task) (*task.Task, error) {
			return d.backend.DeleteChecklistItem(ctx, fresh.ID, itemID)
		})
}

func (d *Dispatcher) checkItem(fresh *task.Task, itemID string) error {
	if err := lifecycle.CheckWritable("", fresh, d.user); err != nil {
		return err
	}
	if _, _, ok := fresh.FindChecklistItem(itemID); !ok {
		return task.NotFound("", itemID)
	}
	return nil
}

func requireTitle(in backend.ChecklistInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return task.Validation("", "", "a title is required")
	}
	return nil
}
