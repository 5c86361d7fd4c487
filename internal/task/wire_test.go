package task

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeSnapshotAliases(t *testing.T) {
	data := []byte(`{
		"_id": "mongo-1",
		"taskId": 77,
		"stage": "In Progress",
		"project": "p-9",
		"name": "Write report",
		"assignedUsers": [{"user_id": "u1"}, {"userId": "u2", "readOnly": true}],
		"lock": {"isLocked": true, "requestStatus": "Pending", "requesterName": "Ada"},
		"timer": {"running": true, "startedAt": "2026-01-02T03:04:05Z", "accumulatedSeconds": 120},
		"checklist": [{"id": "c1", "title": "draft", "status": "done"}]
	}`)

	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}

	if got.ID != "mongo-1" {
		t.Errorf("ID = %q, want mongo-1", got.ID)
	}
	if len(got.Aliases) != 1 || got.Aliases[0] != "77" {
		t.Errorf("Aliases = %v, want [77]", got.Aliases)
	}
	if !got.HasID("77") || !got.HasID("mongo-1") || got.HasID("other") {
		t.Error("HasID did not resolve aliases")
	}
	if got.Status != StatusInProgress {
		t.Errorf("Status = %v, want IN_PROGRESS", got.Status)
	}
	if got.ProjectID != "p-9" || got.Title != "Write report" {
		t.Errorf("project/title = %q/%q", got.ProjectID, got.Title)
	}
	if len(got.AssignedUsers) != 2 || got.AssignedUsers[0].UserID != "u1" || !got.AssignedUsers[1].ReadOnly {
		t.Errorf("AssignedUsers = %+v", got.AssignedUsers)
	}
	if !got.Lock.Pending() || got.Lock.RequesterName != "Ada" {
		t.Errorf("Lock = %+v", got.Lock)
	}
	if !got.Timer.Running || got.Timer.StartedAt == nil || got.Timer.AccumulatedSeconds != 120 {
		t.Errorf("Timer = %+v", got.Timer)
	}
	if len(got.Checklist) != 1 || got.Checklist[0].Status != ChecklistCompleted {
		t.Errorf("Checklist = %+v", got.Checklist)
	}
}

func TestDecodeSnapshotStatusWinsOverStage(t *testing.T) {
	got, err := DecodeSnapshot([]byte(`{"id": "t1", "status": "REVIEW", "stage": "To Do"}`))
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if got.Status != StatusReview {
		t.Errorf("Status = %v, want REVIEW", got.Status)
	}
}

func TestDecodeSnapshotErrors(t *testing.T) {
	tests := map[string]string{
		"missing id":     `{"status": "PENDING"}`,
		"unknown status": `{"id": "t1", "status": "ARCHIVED"}`,
		"bad assignee":   `{"id": "t1", "assignedUsers": [{"readOnly": true}]}`,
		"not json":       `{`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeSnapshot([]byte(data)); err == nil {
				t.Errorf("expected error for %s", data)
			}
		})
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	original := &Task{
		ID:            "t1",
		Aliases:       []string{"legacy-1"},
		ProjectID:     "p1",
		Title:         "Ship it",
		Status:        StatusOnHold,
		AssignedUsers: []Assignment{{UserID: "u1"}},
		Lock:          Lock{IsLocked: true, RequestID: "r1", RequestStatus: RequestPending, RequestedAt: TimePtr(started)},
		Timer:         Timer{AccumulatedSeconds: 30},
		Checklist:     []ChecklistItem{{ID: "c1", Title: "a", Status: ChecklistPending}},
		UpdatedAt:     started,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.ID != "t1" || len(decoded.Aliases) != 1 || decoded.Aliases[0] != "legacy-1" {
		t.Errorf("ids = %q %v", decoded.ID, decoded.Aliases)
	}
	if decoded.Status != StatusOnHold || decoded.Lock.RequestID != "r1" || !decoded.UpdatedAt.Equal(started) {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestDecodeRequestMongoID(t *testing.T) {
	var r ReassignmentRequest
	if err := json.Unmarshal([]byte(`{"_id": "r9", "taskId": "t1", "status": "approved", "requestedAt": "2026-01-01T00:00:00Z"}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.ID != "r9" || r.TaskID != "t1" || r.Status != RequestApproved {
		t.Errorf("request = %+v", r)
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	original := &Task{
		ID:            "t1",
		AssignedUsers: []Assignment{{UserID: "u1"}},
		Timer:         Timer{Running: true, StartedAt: TimePtr(now)},
		Checklist:     []ChecklistItem{{ID: "c1", DueDate: TimePtr(now)}},
	}
	cp := original.Clone()
	cp.AssignedUsers[0].ReadOnly = true
	*cp.Timer.StartedAt = now.Add(time.Hour)
	*cp.Checklist[0].DueDate = now.Add(time.Hour)

	if original.AssignedUsers[0].ReadOnly {
		t.Error("assignments shared between clones")
	}
	if !original.Timer.StartedAt.Equal(now) || !original.Checklist[0].DueDate.Equal(now) {
		t.Error("time pointers shared between clones")
	}
}
