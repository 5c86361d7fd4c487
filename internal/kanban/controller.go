// Package kanban turns drag gestures over board columns into lifecycle
// commits. The controller tracks a single drag at a time, shows a card in
// its target column while the commit is in flight, and restores the prior
// column when the commit fails.
package kanban

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aristath/taskboard/internal/actions"
	"github.com/aristath/taskboard/internal/events"
	"github.com/aristath/taskboard/internal/lifecycle"
	"github.com/aristath/taskboard/internal/repository"
	"github.com/aristath/taskboard/internal/task"
)

// Container is the drop target of a gesture. CardID is set when the pointer
// was released over a card instead of empty column space.
type Container struct {
	Column Column
	CardID string
}

// Gesture is one complete drag: a card picked up in Source and released
// over Target.
type Gesture struct {
	TaskID string
	Source Container
	Target Container
}

// ColumnView is one rendered column.
type ColumnView struct {
	Column Column
	Cards  []*task.Task
}

// Option configures a Controller.
type Option func(*Controller)

// WithPublisher publishes drag warnings and optimistic move events to p.
func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) {
		if p != nil {
			c.bus = p
		}
	}
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller is the board's gesture state machine.
type Controller struct {
	repo       *repository.Repository
	dispatcher *actions.Dispatcher
	bus        events.Publisher
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	drag    string                 // Card currently picked up, "" when idle
	overlay map[string]task.Status // Optimistic targets of in-flight drops
}

// NewController creates a controller that reads cards from repo and commits
// moves through d.
func NewController(repo *repository.Repository, d *actions.Dispatcher, opts ...Option) *Controller {
	c := &Controller{
		repo:       repo,
		dispatcher: d,
		bus:        events.Discard,
		logger:     slog.Default(),
		now:        time.Now,
		overlay:    make(map[string]task.Status),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BeginDrag picks up a card. A read-only card aborts the gesture at once.
func (c *Controller) BeginDrag(id string) error {
	const op = "drag"
	t, ok := c.repo.Get(id)
	if !ok {
		return task.NotFound(op, id)
	}

	c.mu.Lock()
	if c.drag != "" {
		current := c.drag
		c.mu.Unlock()
		return task.Conflict(op, t.ID, "already dragging "+current)
	}
	if _, busy := c.overlay[t.ID]; busy {
		c.mu.Unlock()
		return &task.Error{Kind: task.ErrInFlight, Op: op, TaskID: t.ID, Reason: "move already in flight"}
	}
	if err := lifecycle.CheckWritable(op, t, c.dispatcher.User()); err != nil {
		c.mu.Unlock()
		return c.warn(op, t.ID, err)
	}
	c.drag = t.ID
	c.mu.Unlock()

	c.logger.Debug("drag started", "task_id", t.ID, "column", string(ColumnFor(t.Status)))
	return nil
}

// Dragging returns the card currently picked up.
func (c *Controller) Dragging() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drag, c.drag != ""
}

// DropTargets lists the columns the dragged card may legally land in for
// the acting user. It is empty when nothing is being dragged.
func (c *Controller) DropTargets() []Column {
	id, ok := c.Dragging()
	if !ok {
		return nil
	}
	t, ok := c.repo.Get(id)
	if !ok {
		return nil
	}
	var out []Column
	for _, s := range lifecycle.Targets(t.Status, c.dispatcher.User().Role) {
		if col := ColumnFor(s); col.Droppable() {
			out = append(out, col)
		}
	}
	return out
}

// CancelDrag drops the current gesture without any change.
func (c *Controller) CancelDrag() {
	c.mu.Lock()
	c.drag = ""
	c.mu.Unlock()
}

// Drop releases the dragged card over target and commits the move. Dropping
// into the card's own column is a no-op that returns the cached snapshot.
// On success the card holds the backend's canonical snapshot; on failure the
// optimistic move is discarded and the card returns to its prior column.
func (c *Controller) Drop(ctx context.Context, target Container) (*task.Task, error) {
	const op = "drop"

	c.mu.Lock()
	id := c.drag
	c.drag = ""
	c.mu.Unlock()
	if id == "" {
		return nil, task.Validation(op, "", "no card is being dragged")
	}

	current, ok := c.repo.Get(id)
	if !ok {
		return nil, task.NotFound(op, id)
	}

	column := c.resolve(target)
	to, ok := StatusFor(column)
	if !ok {
		return nil, c.warn(op, id, task.Validation(op, id, "unknown column "+string(column)))
	}
	column = ColumnFor(to)
	if column == ColumnFor(current.Status) {
		return current, nil
	}
	if !column.Droppable() {
		return nil, c.warn(op, id, task.Validation(op, id, "tasks are completed from the review column, not by drag"))
	}
	if _, err := lifecycle.Validate(current.Status, to, c.dispatcher.User().Role); err != nil {
		return nil, c.warn(op, id, err)
	}

	c.mu.Lock()
	c.overlay[id] = to
	c.mu.Unlock()
	c.bus.Publish(events.TopicBoard, events.TaskMovingEvent{ID: id, From: current.Status, To: to, Timestamp: c.now()})

	result, err := c.dispatcher.Transition(ctx, id, to)

	c.mu.Lock()
	delete(c.overlay, id)
	c.mu.Unlock()

	if err != nil {
		restored := current.Status
		if latest, ok := c.repo.Get(id); ok {
			restored = latest.Status
		}
		c.logger.Warn("move rolled back", "task_id", id, "to", to.String(), "restored", restored.String(), "error", err)
		c.bus.Publish(events.TopicBoard, events.TaskRolledBackEvent{ID: id, Op: op, Restored: restored, Err: err, Timestamp: c.now()})
		return nil, err
	}
	return result, nil
}

// HandleGesture runs a complete drag. It is the entry point for gesture
// layers that report (task, source, target) triples.
func (c *Controller) HandleGesture(ctx context.Context, g Gesture) (*task.Task, error) {
	if err := c.BeginDrag(g.TaskID); err != nil {
		return nil, err
	}
	return c.Drop(ctx, g.Target)
}

// Board returns the columns with their cards, in display order. A card whose
// move is in flight is shown in its target column.
func (c *Controller) Board() []ColumnView {
	tasks := c.repo.List()

	c.mu.Lock()
	overlay := make(map[string]task.Status, len(c.overlay))
	for id, s := range c.overlay {
		overlay[id] = s
	}
	c.mu.Unlock()

	index := make(map[Column]int)
	views := make([]ColumnView, 0, len(Columns()))
	for i, col := range Columns() {
		index[col] = i
		views = append(views, ColumnView{Column: col})
	}
	for _, t := range tasks {
		status := t.Status
		if s, ok := overlay[t.ID]; ok {
			status = s
		}
		i := index[ColumnFor(status)]
		views[i].Cards = append(views[i].Cards, t)
	}
	return views
}

// resolve picks the column a drop lands in. The column owning a hovered
// card wins over the container name.
func (c *Controller) resolve(target Container) Column {
	if target.CardID != "" {
		if card, ok := c.repo.Get(target.CardID); ok {
			c.mu.Lock()
			status, moving := c.overlay[card.ID]
			c.mu.Unlock()
			if !moving {
				status = card.Status
			}
			return ColumnFor(status)
		}
	}
	return target.Column
}

func (c *Controller) warn(op, id string, err error) error {
	err = task.Tag(err, op, id)
	c.logger.Warn("gesture rejected", "op", op, "task_id", id, "reason", task.ReasonOf(err))
	c.bus.Publish(events.TopicTask, events.TaskWarningEvent{ID: id, Op: op, Reason: task.ReasonOf(err), Err: err, Timestamp: c.now()})
	return err
}
