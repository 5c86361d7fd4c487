package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aristath/taskboard/internal/task"
)

// testStore creates an in-memory store for testing and registers cleanup.
func testStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleTask(id string) *task.Task {
	started := base.Add(-2 * time.Minute)
	due := base.Add(48 * time.Hour)
	return &task.Task{
		ID:        id,
		Aliases:   []string{id + "-legacy"},
		ProjectID: "p1",
		Title:     "Fix the login page",
		Status:    task.StatusInProgress,
		AssignedUsers: []task.Assignment{
			{UserID: "u1"},
			{UserID: "u0", ReadOnly: true},
		},
		Timer: task.Timer{Running: true, StartedAt: &started, AccumulatedSeconds: 120},
		Checklist: []task.ChecklistItem{
			{ID: id + "-c1", Title: "Reproduce", Status: task.ChecklistCompleted, CompletedAt: task.TimePtr(base)},
			{ID: id + "-c2", Title: "Patch", Status: task.ChecklistPending, DueDate: &due},
		},
		UpdatedAt: base,
	}
}

func TestSaveAndGetTask(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	want := sampleTask("t1")
	if err := store.SaveTask(ctx, want); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}

	got, err := store.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}

	if got.Title != want.Title || got.ProjectID != want.ProjectID {
		t.Errorf("header mismatch: got %q/%q", got.Title, got.ProjectID)
	}
	if got.Status != task.StatusInProgress {
		t.Errorf("Status mismatch: got %v, want %v", got.Status, task.StatusInProgress)
	}
	if len(got.AssignedUsers) != 2 || got.AssignedUsers[0].UserID != "u1" || !got.AssignedUsers[1].ReadOnly {
		t.Errorf("AssignedUsers mismatch: got %+v", got.AssignedUsers)
	}
	if !got.Timer.Running || got.Timer.AccumulatedSeconds != 120 || !got.Timer.StartedAt.Equal(*want.Timer.StartedAt) {
		t.Errorf("Timer mismatch: got %+v", got.Timer)
	}
	if len(got.Checklist) != 2 {
		t.Fatalf("Checklist length mismatch: got %d, want 2", len(got.Checklist))
	}
	if got.Checklist[0].Status != task.ChecklistCompleted || got.Checklist[0].CompletedAt == nil {
		t.Errorf("Checklist[0] mismatch: got %+v", got.Checklist[0])
	}
	if got.Checklist[1].DueDate == nil || !got.Checklist[1].DueDate.Equal(*want.Checklist[1].DueDate) {
		t.Errorf("Checklist[1] due date mismatch: got %v", got.Checklist[1].DueDate)
	}
	if !got.UpdatedAt.Equal(base) {
		t.Errorf("UpdatedAt mismatch: got %v, want %v", got.UpdatedAt, base)
	}
}

func TestGetTaskByAlias(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.SaveTask(ctx, sampleTask("t1")); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}

	got, err := store.GetTask(ctx, "t1-legacy")
	if err != nil {
		t.Fatalf("failed to get task by alias: %v", err)
	}
	if got.ID != "t1" {
		t.Errorf("alias resolved to %q, want t1", got.ID)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.GetTask(context.Background(), "missing")
	if !errors.Is(err, task.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestSaveTaskIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	tk := sampleTask("t1")
	if err := store.SaveTask(ctx, tk); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	tk.Status = task.StatusOnHold
	tk.Timer = task.Timer{AccumulatedSeconds: 240}
	tk.AssignedUsers = []task.Assignment{{UserID: "u2"}}
	tk.Checklist = tk.Checklist[:1]
	if err := store.SaveTask(ctx, tk); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	got, err := store.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if got.Status != task.StatusOnHold {
		t.Errorf("Status should be ON_HOLD after update, got %v", got.Status)
	}
	if got.Timer.Running || got.Timer.StartedAt != nil || got.Timer.AccumulatedSeconds != 240 {
		t.Errorf("Timer not replaced: got %+v", got.Timer)
	}
	if len(got.AssignedUsers) != 1 || got.AssignedUsers[0].UserID != "u2" {
		t.Errorf("assignees not replaced: got %+v", got.AssignedUsers)
	}
	if len(got.Checklist) != 1 {
		t.Errorf("checklist not replaced: got %d items", len(got.Checklist))
	}
}

func TestListTasks(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"t3", "t1", "t2"} {
		if err := store.SaveTask(ctx, sampleTask(id)); err != nil {
			t.Fatalf("failed to save %s: %v", id, err)
		}
	}

	tasks, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	for i, want := range []string{"t1", "t2", "t3"} {
		if tasks[i].ID != want {
			t.Errorf("tasks[%d] = %s, want %s", i, tasks[i].ID, want)
		}
		if len(tasks[i].Checklist) != 2 {
			t.Errorf("%s should have 2 checklist items, got %d", want, len(tasks[i].Checklist))
		}
	}
}

func TestListTasksEmpty(t *testing.T) {
	store := testStore(t)

	tasks, err := store.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", tasks)
	}
}

func TestRequestsRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.SaveTask(ctx, sampleTask("t1")); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}

	second := &task.ReassignmentRequest{
		ID: "r2", TaskID: "t1", RequesterID: "u1", Reason: "again",
		Status: task.RequestPending, RequestedAt: base.Add(time.Hour),
	}
	first := &task.ReassignmentRequest{
		ID: "r1", TaskID: "t1", RequesterID: "u1", RequesterName: "Uma", Reason: "overloaded",
		Status: task.RequestRejected, RequestedAt: base, RespondedAt: task.TimePtr(base.Add(time.Minute)),
	}
	for _, r := range []*task.ReassignmentRequest{second, first} {
		if err := store.SaveRequest(ctx, r); err != nil {
			t.Fatalf("failed to save %s: %v", r.ID, err)
		}
	}

	requests, err := store.ListRequests(ctx, "t1")
	if err != nil {
		t.Fatalf("failed to list requests: %v", err)
	}
	if len(requests) != 2 || requests[0].ID != "r1" || requests[1].ID != "r2" {
		t.Fatalf("requests not in chronological order: %+v", requests)
	}
	if requests[0].RespondedAt == nil || requests[0].RequesterName != "Uma" {
		t.Errorf("request fields lost: %+v", requests[0])
	}

	second.Status = task.RequestApproved
	second.NewAssigneeID = "u2"
	second.RespondedAt = task.TimePtr(base.Add(2 * time.Hour))
	if err := store.SaveRequest(ctx, second); err != nil {
		t.Fatalf("failed to update request: %v", err)
	}
	got, err := store.GetRequest(ctx, "r2")
	if err != nil {
		t.Fatalf("failed to get request: %v", err)
	}
	if got.Status != task.RequestApproved || got.NewAssigneeID != "u2" {
		t.Errorf("update not persisted: %+v", got)
	}

	if _, err := store.GetRequest(ctx, "missing"); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestSaveTaskWithRequestAtomic(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	tk := sampleTask("t1")
	req := &task.ReassignmentRequest{
		ID: "r1", TaskID: "t1", RequesterID: "u1", Reason: "swap",
		Status: task.RequestPending, RequestedAt: base,
	}
	tk.Lock = task.Lock{IsLocked: true, RequestID: "r1", RequestStatus: task.RequestPending, RequestedAt: task.TimePtr(base)}
	if err := store.SaveTaskWithRequest(ctx, tk, req); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	got, err := store.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if !got.Lock.IsLocked || !got.Lock.Pending() || got.Lock.RequestID != "r1" {
		t.Errorf("lock not persisted: %+v", got.Lock)
	}

	// A request for an unknown task violates the foreign key and must roll
	// back the task write in the same transaction.
	orphan := sampleTask("t2")
	bad := &task.ReassignmentRequest{ID: "r2", TaskID: "nope", RequesterID: "u1", Reason: "x", Status: task.RequestPending, RequestedAt: base}
	if err := store.SaveTaskWithRequest(ctx, orphan, bad); err == nil {
		t.Fatal("expected foreign key violation")
	}
	if _, err := store.GetTask(ctx, "t2"); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("task write should have rolled back, got: %v", err)
	}
}

func TestConcurrentSaves(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.SaveTask(ctx, sampleTask(fmt.Sprintf("t%02d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent save failed: %v", err)
		}
	}

	tasks, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(tasks) != 10 {
		t.Errorf("expected 10 tasks, got %d", len(tasks))
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", ""); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestRebind(t *testing.T) {
	query := "SELECT a FROM t WHERE x = ? AND y = ?"
	if got := sqliteDialect.rebind(query); got != query {
		t.Errorf("sqlite rebind changed query: %s", got)
	}
	if got, want := postgresDialect.rebind(query), "SELECT a FROM t WHERE x = $1 AND y = $2"; got != want {
		t.Errorf("postgres rebind = %s, want %s", got, want)
	}
}

func TestChecklistIDsArePerTask(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"t1", "t2"} {
		tk := sampleTask(id)
		tk.Checklist[0].ID = "c1"
		if err := store.SaveTask(ctx, tk); err != nil {
			t.Fatalf("failed to save %s: %v", id, err)
		}
	}
	for _, id := range []string{"t1", "t2"} {
		got, err := store.GetTask(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Checklist) != 2 || got.Checklist[0].ID != "c1" {
			t.Errorf("%s checklist = %+v", id, got.Checklist)
		}
	}
}

func TestForeignKeysOnEveryConnection(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	// Hold one connection so the pool has to open a second.
	first, err := store.db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := store.db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	for i, conn := range []*sql.Conn{first, second} {
		var on int
		if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on); err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		if on != 1 {
			t.Errorf("conn %d: foreign_keys = %d, want 1", i, on)
		}
	}
}
