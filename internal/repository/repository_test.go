package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/taskboard/internal/events"
	"github.com/aristath/taskboard/internal/task"
)

// fakeSource serves snapshots from a map and counts concurrent fetches.
type fakeSource struct {
	mu      sync.Mutex
	tasks   map[string]*task.Task
	fail    map[string]error
	delay   time.Duration
	active  atomic.Int32
	peak    atomic.Int32
	fetches atomic.Int32
}

func newFakeSource(tasks ...*task.Task) *fakeSource {
	s := &fakeSource{tasks: make(map[string]*task.Task), fail: make(map[string]error)}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return s
}

func (s *fakeSource) FetchTask(ctx context.Context, id string) (*task.Task, error) {
	s.fetches.Add(1)
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[id]; err != nil {
		return nil, err
	}
	t, ok := s.tasks[id]
	if !ok {
		return nil, task.NotFound("fetch-task", id)
	}
	return t.Clone(), nil
}

func (s *fakeSource) ListTasks(ctx context.Context) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.Task
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	return out, nil
}

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func snapshot(id string, status task.Status, at time.Time, aliases ...string) *task.Task {
	return &task.Task{ID: id, Aliases: aliases, Status: status, UpdatedAt: at}
}

func TestPutAndGetByAlias(t *testing.T) {
	repo := New(newFakeSource())
	repo.Put("refresh", snapshot("t1", task.StatusPending, t0, "legacy-1", "99"))

	got, ok := repo.Get("99")
	if !ok || got.ID != "t1" {
		t.Fatalf("Get by alias = %+v, %v", got, ok)
	}
	if repo.Resolve("legacy-1") != "t1" || repo.Resolve("unknown") != "unknown" {
		t.Errorf("Resolve mismatch")
	}

	// Returned snapshots are copies.
	got.Status = task.StatusCompleted
	again, _ := repo.Get("t1")
	if again.Status != task.StatusPending {
		t.Error("mutating a returned snapshot changed the cache")
	}
}

func TestPutIgnoresStaleSnapshot(t *testing.T) {
	repo := New(newFakeSource())
	repo.Put("start", snapshot("t1", task.StatusInProgress, t0.Add(time.Minute)))

	if repo.Put("refresh", snapshot("t1", task.StatusPending, t0)) {
		t.Error("older snapshot should be rejected")
	}
	got, _ := repo.Get("t1")
	if got.Status != task.StatusInProgress {
		t.Errorf("stale snapshot overwrote cache: %v", got.Status)
	}

	if !repo.Put("pause", snapshot("t1", task.StatusOnHold, t0.Add(2*time.Minute))) {
		t.Error("newer snapshot should be accepted")
	}
}

func TestPutRenamedTaskKeepsOldID(t *testing.T) {
	repo := New(newFakeSource())
	repo.Put("refresh", snapshot("old", task.StatusPending, t0))
	repo.Put("refresh", snapshot("new", task.StatusPending, t0, "old"))

	if len(repo.List()) != 1 {
		t.Fatalf("expected one task after rename, got %d", len(repo.List()))
	}
	if got, ok := repo.Get("old"); !ok || got.ID != "new" {
		t.Errorf("old id should resolve to the new snapshot, got %+v", got)
	}
}

func TestPutPublishesEvents(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	taskCh := bus.Subscribe(events.TopicTask, 10)
	boardCh := bus.Subscribe(events.TopicBoard, 10)

	repo := New(newFakeSource(), WithPublisher(bus))
	repo.Put("start", snapshot("t1", task.StatusInProgress, t0))
	repo.Put("start", snapshot("t2", task.StatusInProgress, t0))

	select {
	case ev := <-taskCh:
		up := ev.(events.TaskUpdatedEvent)
		if up.Op != "start" || up.Task.ID != "t1" {
			t.Errorf("unexpected event: %+v", up)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no task event")
	}

	var last events.BoardProgressEvent
	for i := 0; i < 2; i++ {
		select {
		case ev := <-boardCh:
			last = ev.(events.BoardProgressEvent)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("no board event")
		}
	}
	if last.Total != 2 || last.InProgress != 2 {
		t.Errorf("unexpected progress: %+v", last)
	}
}

func TestRefreshAndLoad(t *testing.T) {
	src := newFakeSource(
		snapshot("t1", task.StatusPending, t0),
		snapshot("t2", task.StatusReview, t0),
	)
	repo := New(src)

	if err := repo.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(repo.List()) != 2 || repo.Progress().Review != 1 {
		t.Fatalf("unexpected cache after load: %+v", repo.List())
	}

	src.mu.Lock()
	src.tasks["t1"] = snapshot("t1", task.StatusInProgress, t0.Add(time.Second))
	src.mu.Unlock()

	got, err := repo.Refresh(context.Background(), "t1")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if got.Status != task.StatusInProgress {
		t.Errorf("refresh returned %v", got.Status)
	}

	if _, err := repo.Refresh(context.Background(), "missing"); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRefreshAllBoundsConcurrency(t *testing.T) {
	src := newFakeSource()
	var ids []string
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("t%02d", i)
		src.tasks[id] = snapshot(id, task.StatusPending, t0)
		ids = append(ids, id)
	}
	src.delay = 10 * time.Millisecond
	src.fail["t03"] = task.Transport("fetch-task", "t03", errors.New("timeout"))

	repo := New(src, WithConcurrency(3))
	err := repo.RefreshAll(context.Background(), ids)
	if !errors.Is(err, task.ErrTransport) {
		t.Errorf("expected joined transport error, got %v", err)
	}
	if src.fetches.Load() != 12 {
		t.Errorf("every task should be fetched, got %d", src.fetches.Load())
	}
	if peak := src.peak.Load(); peak > 3 {
		t.Errorf("concurrency limit exceeded: peak %d", peak)
	}
	if len(repo.List()) != 11 {
		t.Errorf("expected 11 cached tasks, got %d", len(repo.List()))
	}
}

func TestInFlightFlags(t *testing.T) {
	repo := New(newFakeSource())
	repo.Put("refresh", snapshot("t1", task.StatusPending, t0, "alias"))

	if err := repo.Begin("t1", "start"); err != nil {
		t.Fatalf("first begin failed: %v", err)
	}
	err := repo.Begin("alias", "start")
	if !errors.Is(err, task.ErrInFlight) {
		t.Errorf("second begin via alias: expected ErrInFlight, got %v", err)
	}
	if op, ok := repo.InFlight("t1"); !ok || op != "start" {
		t.Errorf("InFlight = %q, %v", op, ok)
	}

	// Other tasks are independent.
	if err := repo.Begin("t2", "pause"); err != nil {
		t.Errorf("begin on another task failed: %v", err)
	}

	repo.End("alias")
	if _, ok := repo.InFlight("t1"); ok {
		t.Error("flag should be cleared")
	}
	if err := repo.Begin("t1", "pause"); err != nil {
		t.Errorf("begin after end failed: %v", err)
	}
}
