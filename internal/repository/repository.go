// Package repository holds the client-side cache of canonical task
// snapshots. Reads are synchronous copies; the only writes are snapshots
// returned by the backend.
package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/taskboard/internal/events"
	"github.com/aristath/taskboard/internal/task"
)

// Source is the subset of the backend the repository reads from.
type Source interface {
	FetchTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context) ([]*task.Task, error)
}

// Repository caches task snapshots by canonical id and tracks which tasks
// have a mutating action in flight.
type Repository struct {
	mu       sync.RWMutex
	tasks    map[string]*task.Task // canonical id -> snapshot
	aliases  map[string]string     // any known id -> canonical id
	inFlight map[string]string     // canonical id -> op in flight

	source      Source
	bus         events.Publisher
	concurrency int
	now         func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithPublisher publishes task and board events to p.
func WithPublisher(p events.Publisher) Option {
	return func(r *Repository) {
		if p != nil {
			r.bus = p
		}
	}
}

// WithConcurrency bounds the number of concurrent fetches in RefreshAll.
func WithConcurrency(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithClock sets the clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates an empty repository reading from source.
func New(source Source, opts ...Option) *Repository {
	r := &Repository{
		tasks:       make(map[string]*task.Task),
		aliases:     make(map[string]string),
		inFlight:    make(map[string]string),
		source:      source,
		bus:         events.Discard,
		concurrency: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns a copy of the cached snapshot for id or any of its aliases.
func (r *Repository) Get(id string) (*task.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[r.resolveLocked(id)]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Resolve maps any known id to its canonical id. Unknown ids are returned
// unchanged.
func (r *Repository) Resolve(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(id)
}

func (r *Repository) resolveLocked(id string) string {
	if canonical, ok := r.aliases[id]; ok {
		return canonical
	}
	return id
}

// List returns copies of every cached task ordered by id.
func (r *Repository) List() []*task.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*task.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Put stores a canonical snapshot returned by op. A snapshot older than the
// cached one is ignored so out-of-order responses cannot roll state back.
// Reports whether the snapshot was accepted.
func (r *Repository) Put(op string, t *task.Task) bool {
	if t == nil || t.ID == "" {
		return false
	}

	r.mu.Lock()
	previous := r.matchingLocked(t)
	for _, id := range previous {
		existing := r.tasks[id]
		if !t.UpdatedAt.IsZero() && !existing.UpdatedAt.IsZero() && t.UpdatedAt.Before(existing.UpdatedAt) {
			r.mu.Unlock()
			return false
		}
	}
	for _, id := range previous {
		delete(r.tasks, id)
	}
	r.storeLocked(t.Clone())
	for _, id := range previous {
		// The backend may rename a task; old ids stay resolvable.
		r.aliases[id] = t.ID
	}
	progress := r.progressLocked()
	r.mu.Unlock()

	r.bus.Publish(events.TopicTask, events.TaskUpdatedEvent{Task: t.Clone(), Op: op, Timestamp: r.now()})
	r.bus.Publish(events.TopicBoard, progress)
	return true
}

// matchingLocked returns the canonical ids of cached snapshots that t
// replaces, matched through its id and aliases.
func (r *Repository) matchingLocked(t *task.Task) []string {
	var out []string
	for _, id := range append([]string{t.ID}, t.Aliases...) {
		canonical := r.resolveLocked(id)
		if _, ok := r.tasks[canonical]; !ok {
			continue
		}
		if !slices.Contains(out, canonical) {
			out = append(out, canonical)
		}
	}
	return out
}

func (r *Repository) storeLocked(t *task.Task) {
	r.tasks[t.ID] = t
	r.aliases[t.ID] = t.ID
	for _, alias := range t.Aliases {
		r.aliases[alias] = t.ID
	}
}

// Refresh re-fetches one task from the backend and caches the result.
func (r *Repository) Refresh(ctx context.Context, id string) (*task.Task, error) {
	t, err := r.source.FetchTask(ctx, r.Resolve(id))
	if err != nil {
		return nil, err
	}
	if !r.Put("refresh", t) {
		// A newer snapshot landed meanwhile; hand back the cached one.
		if cached, ok := r.Get(t.ID); ok {
			return cached, nil
		}
	}
	return t.Clone(), nil
}

// Load replaces the whole cache with the backend's task list.
func (r *Repository) Load(ctx context.Context) error {
	tasks, err := r.source.ListTasks(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.tasks = make(map[string]*task.Task, len(tasks))
	r.aliases = make(map[string]string, len(tasks))
	for _, t := range tasks {
		r.storeLocked(t.Clone())
	}
	progress := r.progressLocked()
	r.mu.Unlock()

	r.bus.Publish(events.TopicBoard, progress)
	return nil
}

// RefreshAll re-fetches the given tasks concurrently, at most
// WithConcurrency at a time. Every fetch runs; the errors are joined.
func (r *Repository) RefreshAll(ctx context.Context, ids []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	var mu sync.Mutex
	var errs []error
	for _, id := range ids {
		g.Go(func() error {
			if _, err := r.Refresh(gctx, id); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("refresh %s: %w", id, err))
				mu.Unlock()
			}
			return nil // Don't cancel sibling fetches
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Begin marks op in flight for the task. A second Begin on the same task
// before End fails with task.ErrInFlight.
func (r *Repository) Begin(id, op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	canonical := r.resolveLocked(id)
	if current, busy := r.inFlight[canonical]; busy {
		return &task.Error{Kind: task.ErrInFlight, Op: op, TaskID: canonical, Reason: current + " already in flight"}
	}
	r.inFlight[canonical] = op
	return nil
}

// End clears the in-flight flag for the task.
func (r *Repository) End(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// The task may have been renamed while in flight.
	delete(r.inFlight, id)
	delete(r.inFlight, r.resolveLocked(id))
}

// InFlight reports the operation in flight for the task, if any.
func (r *Repository) InFlight(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.inFlight[r.resolveLocked(id)]
	return op, ok
}

// Progress returns the current column counts.
func (r *Repository) Progress() events.BoardProgressEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progressLocked()
}

func (r *Repository) progressLocked() events.BoardProgressEvent {
	p := events.BoardProgressEvent{Total: len(r.tasks), Timestamp: r.now()}
	for _, t := range r.tasks {
		switch t.Status {
		case task.StatusPending:
			p.Pending++
		case task.StatusInProgress:
			p.InProgress++
		case task.StatusOnHold:
			p.OnHold++
		case task.StatusReview:
			p.Review++
		case task.StatusCompleted:
			p.Completed++
		}
	}
	return p
}
