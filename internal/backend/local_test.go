package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aristath/taskboard/internal/lifecycle"
	"github.com/aristath/taskboard/internal/persistence"
	"github.com/aristath/taskboard/internal/task"
)

var (
	employee = task.User{ID: "u1", Name: "Emma", Role: task.RoleEmployee}
	manager  = task.User{ID: "m1", Name: "Max", Role: task.RoleManager}
	client   = task.User{ID: "c1", Name: "Carl", Role: task.RoleClient}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	local *Local
	store *persistence.SQLStore
	clock *testClock
}

func newFixture(t *testing.T, opts ...LocalOption) *fixture {
	t.Helper()
	store, err := persistence.NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := &testClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	seq := 0
	opts = append([]LocalOption{
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	}, opts...)
	return &fixture{local: NewLocal(store, opts...), store: store, clock: clock}
}

func (f *fixture) seed(t *testing.T, tk *task.Task) {
	t.Helper()
	if err := f.local.Import(context.Background(), []*task.Task{tk}); err != nil {
		t.Fatalf("failed to seed task: %v", err)
	}
}

func as(user task.User) context.Context {
	return WithActor(context.Background(), user)
}

func pendingTask() *task.Task {
	return &task.Task{
		ID:            "t1",
		Aliases:       []string{"legacy-1"},
		ProjectID:     "p1",
		Title:         "Write the report",
		Status:        task.StatusPending,
		AssignedUsers: []task.Assignment{{UserID: employee.ID}},
	}
}

func TestLifecycleCommits(t *testing.T) {
	f := newFixture(t)
	f.seed(t, pendingTask())
	ctx := as(employee)

	tk, err := f.local.StartTask(ctx, "t1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if tk.Status != task.StatusInProgress || !tk.Timer.Running {
		t.Fatalf("after start: status=%v timer=%+v", tk.Status, tk.Timer)
	}

	f.clock.Advance(90 * time.Second)
	tk, err = f.local.PauseTask(ctx, "t1")
	if err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if tk.Status != task.StatusOnHold || tk.Timer.Running || tk.Timer.AccumulatedSeconds != 90 {
		t.Fatalf("after pause: status=%v timer=%+v", tk.Status, tk.Timer)
	}

	tk, err = f.local.ResumeTask(ctx, "legacy-1")
	if err != nil {
		t.Fatalf("resume by alias failed: %v", err)
	}
	if tk.ID != "t1" || tk.Status != task.StatusInProgress {
		t.Fatalf("after resume: id=%s status=%v", tk.ID, tk.Status)
	}

	f.clock.Advance(30 * time.Second)
	tk, err = f.local.RequestCompletion(ctx, "t1", "p1")
	if err != nil {
		t.Fatalf("request completion failed: %v", err)
	}
	if tk.Status != task.StatusReview || tk.Timer.Running || tk.Timer.AccumulatedSeconds != 120 {
		t.Fatalf("after request completion: status=%v timer=%+v", tk.Status, tk.Timer)
	}

	if _, err := f.local.CompleteTask(ctx, "t1"); !errors.Is(err, task.ErrForbidden) {
		t.Fatalf("employee complete: expected ErrForbidden, got %v", err)
	}

	tk, err = f.local.CompleteTask(as(manager), "t1")
	if err != nil {
		t.Fatalf("manager complete failed: %v", err)
	}
	if tk.Status != task.StatusCompleted || tk.Timer.AccumulatedSeconds != 120 {
		t.Fatalf("after complete: status=%v timer=%+v", tk.Status, tk.Timer)
	}

	stored, err := f.store.GetTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	if stored.Status != task.StatusCompleted || !stored.UpdatedAt.Equal(f.clock.Now()) {
		t.Errorf("persisted snapshot mismatch: status=%v updated=%v", stored.Status, stored.UpdatedAt)
	}
}

func TestCompletedTaskRejectsEveryMutation(t *testing.T) {
	f := newFixture(t)
	tk := pendingTask()
	tk.Status = task.StatusCompleted
	tk.Checklist = []task.ChecklistItem{{ID: "c1", Title: "Draft", Status: task.ChecklistPending}}
	f.seed(t, tk)

	for _, user := range []task.User{employee, manager} {
		ctx := as(user)
		ops := map[string]func() error{
			"start":  func() error { _, err := f.local.StartTask(ctx, "t1"); return err },
			"pause":  func() error { _, err := f.local.PauseTask(ctx, "t1"); return err },
			"resume": func() error { _, err := f.local.ResumeTask(ctx, "t1"); return err },
			"checklist-add": func() error {
				_, err := f.local.CreateChecklistItem(ctx, "t1", ChecklistInput{Title: "More"})
				return err
			},
			"checklist-edit": func() error {
				_, err := f.local.UpdateChecklistItem(ctx, "t1", "c1", ChecklistInput{Title: "Edit"})
				return err
			},
			"checklist-complete": func() error { _, err := f.local.CompleteChecklistItem(ctx, "t1", "c1"); return err },
			"checklist-delete":   func() error { _, err := f.local.DeleteChecklistItem(ctx, "t1", "c1"); return err },
			"reassign": func() error {
				_, err := f.local.RequestReassignment(ctx, "t1", "overloaded")
				return err
			},
		}
		for name, op := range ops {
			err := op()
			if !errors.Is(err, task.ErrForbidden) || task.ReasonOf(err) != task.ReasonCompleted {
				t.Errorf("%s by %s: expected forbidden (completed), got %v", name, user.Role, err)
			}
		}
	}
}

func TestIllegalTransitionIsValidation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, pendingTask())

	_, err := f.local.PauseTask(as(employee), "t1")
	if !errors.Is(err, task.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var te *task.Error
	if !errors.As(err, &te) || te.Op != "pause" || te.TaskID != "t1" {
		t.Errorf("error not tagged with op and task: %+v", te)
	}
}

func TestMissingActorIsForbidden(t *testing.T) {
	f := newFixture(t)
	f.seed(t, pendingTask())

	if _, err := f.local.StartTask(context.Background(), "t1"); !errors.Is(err, task.ErrForbidden) {
		t.Errorf("expected ErrForbidden without actor, got %v", err)
	}
}

func TestClientIsReadOnly(t *testing.T) {
	f := newFixture(t)
	f.seed(t, pendingTask())

	_, err := f.local.StartTask(as(client), "t1")
	if !errors.Is(err, task.ErrForbidden) || task.ReasonOf(err) != task.ReasonClientReadOnly {
		t.Errorf("expected client read-only, got %v", err)
	}
}

func TestRequestCompletionWrongProject(t *testing.T) {
	f := newFixture(t)
	tk := pendingTask()
	tk.Status = task.StatusInProgress
	f.seed(t, tk)

	if _, err := f.local.RequestCompletion(as(employee), "t1", "other"); !errors.Is(err, task.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestReassignmentWorkflow(t *testing.T) {
	f := newFixture(t)
	tk := pendingTask()
	tk.Status = task.StatusInProgress
	started := f.clock.Now()
	tk.Timer = task.Timer{Running: true, StartedAt: &started}
	f.seed(t, tk)
	f.clock.Advance(45 * time.Second)

	res, err := f.local.RequestReassignment(as(employee), "t1", "overloaded")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if res.Task.Status != task.StatusOnHold || !res.Task.Lock.IsLocked || !res.Task.Lock.Pending() {
		t.Fatalf("after request: status=%v lock=%+v", res.Task.Status, res.Task.Lock)
	}
	if res.Task.Timer.Running || res.Task.Timer.AccumulatedSeconds != 45 {
		t.Errorf("timer not folded: %+v", res.Task.Timer)
	}
	if res.Request.Status != task.RequestPending || res.Request.Reason != "overloaded" || res.Request.RequesterName != "Emma" {
		t.Errorf("request mismatch: %+v", res.Request)
	}

	if _, err := f.local.StartTask(as(employee), "t1"); !errors.Is(err, task.ErrForbidden) {
		t.Errorf("start on locked task: expected ErrForbidden, got %v", err)
	}
	if _, err := f.local.ResumeTask(as(employee), "t1"); task.ReasonOf(err) != task.ReasonReassignPending {
		t.Errorf("resume on locked task: expected reassignment pending, got %v", err)
	}
	if _, err := f.local.RequestReassignment(as(employee), "t1", "again"); !errors.Is(err, task.ErrForbidden) {
		t.Errorf("second request: expected ErrForbidden, got %v", err)
	}
	if _, err := f.local.ApproveReassignment(as(employee), "t1", res.Request.ID, "u42"); !errors.Is(err, task.ErrForbidden) {
		t.Errorf("employee approve: expected ErrForbidden, got %v", err)
	}

	f.clock.Advance(time.Minute)
	approved, err := f.local.ApproveReassignment(as(manager), "t1", res.Request.ID, "u42")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Task.Lock.IsLocked || approved.Task.Lock.RequestStatus != task.RequestApproved {
		t.Errorf("after approve: lock=%+v", approved.Task.Lock)
	}
	users := approved.Task.AssignedUsers
	if len(users) != 2 || users[0] != (task.Assignment{UserID: "u1", ReadOnly: true}) || users[1] != (task.Assignment{UserID: "u42"}) {
		t.Errorf("after approve: assignees=%+v", users)
	}
	if approved.Task.Status != task.StatusInProgress || !approved.Task.Timer.Running {
		t.Errorf("after approve: status=%v timer=%+v", approved.Task.Status, approved.Task.Timer)
	}
	if approved.Request.Status != task.RequestApproved || approved.Request.NewAssigneeID != "u42" {
		t.Errorf("request not approved: %+v", approved.Request)
	}

	_, err = f.local.ApproveReassignment(as(manager), "t1", res.Request.ID, "u99")
	if !errors.Is(err, task.ErrAlreadyResolved) || !errors.Is(err, task.ErrConflict) {
		t.Fatalf("second approve: expected ErrAlreadyResolved, got %v", err)
	}
	stored, _ := f.store.GetTask(context.Background(), "t1")
	for _, a := range stored.AssignedUsers {
		if a.UserID == "u99" {
			t.Error("second approve must not reassign")
		}
	}

	if _, err := f.local.PauseTask(as(task.User{ID: "u42", Role: task.RoleEmployee}), "t1"); err != nil {
		t.Errorf("new assignee should be able to pause: %v", err)
	}
	if _, err := f.local.PauseTask(as(employee), "t1"); task.ReasonOf(err) != task.ReasonReadOnlyEntry {
		t.Errorf("prior assignee: expected read-only entry, got %v", err)
	}
}

func TestRejectKeepsAssignee(t *testing.T) {
	f := newFixture(t)
	tk := pendingTask()
	tk.Status = task.StatusOnHold
	f.seed(t, tk)

	res, err := f.local.RequestReassignment(as(employee), "t1", "on leave")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	rejected, err := f.local.RejectReassignment(as(manager), "t1", res.Request.ID)
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rejected.Task.Lock.IsLocked || rejected.Task.Lock.RequestStatus != task.RequestRejected {
		t.Errorf("after reject: lock=%+v", rejected.Task.Lock)
	}
	if rejected.Task.Status != task.StatusOnHold || len(rejected.Task.AssignedUsers) != 1 {
		t.Errorf("reject changed the task: status=%v users=%+v", rejected.Task.Status, rejected.Task.AssignedUsers)
	}
	if _, err := f.local.RejectReassignment(as(manager), "t1", res.Request.ID); !errors.Is(err, task.ErrAlreadyResolved) {
		t.Errorf("second reject: expected ErrAlreadyResolved, got %v", err)
	}

	// The default policy allows a fresh request after a rejection.
	if _, err := f.local.RequestReassignment(as(employee), "t1", "still on leave"); err != nil {
		t.Errorf("re-request after rejection failed: %v", err)
	}
	requests, err := f.local.ListReassignmentRequests(as(employee), "legacy-1")
	if err != nil {
		t.Fatalf("list requests failed: %v", err)
	}
	if len(requests) != 2 {
		t.Errorf("expected 2 requests, got %d", len(requests))
	}
}

func TestStrictPolicyForbidsReRequest(t *testing.T) {
	f := newFixture(t, WithPolicy(lifecycle.ReassignPolicy{AllowAfterRejection: false}))
	tk := pendingTask()
	tk.Status = task.StatusOnHold
	f.seed(t, tk)

	res, err := f.local.RequestReassignment(as(employee), "t1", "on leave")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if _, err := f.local.RejectReassignment(as(manager), "t1", res.Request.ID); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if _, err := f.local.RequestReassignment(as(employee), "t1", "please"); !errors.Is(err, task.ErrForbidden) {
		t.Errorf("expected ErrForbidden after rejection, got %v", err)
	}
}

func TestApproveRequiresAssignee(t *testing.T) {
	f := newFixture(t)
	f.seed(t, pendingTask())

	if _, err := f.local.ApproveReassignment(as(manager), "t1", "r1", " "); !errors.Is(err, task.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestEmptyReasonRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, pendingTask())

	if _, err := f.local.RequestReassignment(as(employee), "t1", "  "); !errors.Is(err, task.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestChecklistOperations(t *testing.T) {
	f := newFixture(t)
	f.seed(t, pendingTask())
	ctx := as(employee)

	tk, err := f.local.CreateChecklistItem(ctx, "t1", ChecklistInput{Title: " Outline "})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(tk.Checklist) != 1 || tk.Checklist[0].Title != "Outline" || tk.Checklist[0].Status != task.ChecklistPending {
		t.Fatalf("after create: %+v", tk.Checklist)
	}
	itemID := tk.Checklist[0].ID

	if _, err := f.local.CreateChecklistItem(ctx, "t1", ChecklistInput{}); !errors.Is(err, task.ErrValidation) {
		t.Errorf("empty title: expected ErrValidation, got %v", err)
	}

	due := f.clock.Now().Add(24 * time.Hour)
	tk, err = f.local.UpdateChecklistItem(ctx, "t1", itemID, ChecklistInput{Title: "Outline v2", DueDate: &due})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if tk.Checklist[0].Title != "Outline v2" || tk.Checklist[0].DueDate == nil {
		t.Errorf("after update: %+v", tk.Checklist[0])
	}

	tk, err = f.local.CompleteChecklistItem(ctx, "t1", itemID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if tk.Checklist[0].Status != task.ChecklistCompleted || tk.Checklist[0].CompletedAt == nil {
		t.Errorf("after complete: %+v", tk.Checklist[0])
	}
	if _, err := f.local.CompleteChecklistItem(ctx, "t1", itemID); !errors.Is(err, task.ErrValidation) {
		t.Errorf("double complete: expected ErrValidation, got %v", err)
	}

	if _, err := f.local.DeleteChecklistItem(ctx, "t1", "missing"); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("unknown item: expected ErrNotFound, got %v", err)
	}
	tk, err = f.local.DeleteChecklistItem(ctx, "t1", itemID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(tk.Checklist) != 0 {
		t.Errorf("after delete: %+v", tk.Checklist)
	}
}

func TestConcurrentStartsCommitOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, pendingTask())

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.local.StartTask(as(employee), "t1"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("expected exactly one start to commit, got %d", succeeded)
	}
}
