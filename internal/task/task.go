package task

import (
	"time"
)

// User is the acting dashboard user.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

// Assignment is one entry of a task's ordered assignee set.
type Assignment struct {
	UserID   string `json:"userId"`
	ReadOnly bool   `json:"readOnly"`
}

// Lock is the reassignment lock embedded in a task.
type Lock struct {
	IsLocked      bool          `json:"isLocked"`
	RequestID     string        `json:"requestId,omitempty"`
	RequestStatus RequestStatus `json:"requestStatus,omitempty"`
	RequestedAt   *time.Time    `json:"requestedAt,omitempty"`
	RespondedAt   *time.Time    `json:"respondedAt,omitempty"`
	RequesterName string        `json:"requesterName,omitempty"`
}

// Pending reports whether a reassignment request is awaiting a manager.
func (l Lock) Pending() bool {
	return l.RequestStatus == RequestPending
}

// Timer is the per-task time tracking state. Time is counted in whole seconds.
type Timer struct {
	Running            bool       `json:"running"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	AccumulatedSeconds int64      `json:"accumulatedSeconds"`
}

// ChecklistItem is a sub-unit of work inside a task.
type ChecklistItem struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	DueDate     *time.Time      `json:"dueDate,omitempty"`
	Status      ChecklistStatus `json:"status"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Task is a cached snapshot of the backend's canonical task.
type Task struct {
	ID            string          `json:"id"`
	Aliases       []string        `json:"aliases,omitempty"` // Other identifiers the backend returned for this task
	ProjectID     string          `json:"projectId,omitempty"`
	Title         string          `json:"title"`
	Status        Status          `json:"status"`
	AssignedUsers []Assignment    `json:"assignedUsers"`
	Lock          Lock            `json:"lock"`
	Timer         Timer           `json:"timer"`
	Checklist     []ChecklistItem `json:"checklist"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// FindAssignment returns the entry for userID, if the user is assigned.
func (t *Task) FindAssignment(userID string) (Assignment, bool) {
	for _, a := range t.AssignedUsers {
		if a.UserID == userID {
			return a, true
		}
	}
	return Assignment{}, false
}

// FindChecklistItem returns the item with the given id and its index.
func (t *Task) FindChecklistItem(itemID string) (ChecklistItem, int, bool) {
	for i, item := range t.Checklist {
		if item.ID == itemID {
			return item, i, true
		}
	}
	return ChecklistItem{}, -1, false
}

// HasID reports whether id is the task's id or one of its aliases.
func (t *Task) HasID(id string) bool {
	if t.ID == id {
		return true
	}
	for _, alias := range t.Aliases {
		if alias == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so cached snapshots are never shared.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	cp := *t
	if t.Aliases != nil {
		cp.Aliases = append([]string(nil), t.Aliases...)
	}
	if t.AssignedUsers != nil {
		cp.AssignedUsers = append([]Assignment(nil), t.AssignedUsers...)
	}
	if t.Checklist != nil {
		cp.Checklist = make([]ChecklistItem, len(t.Checklist))
		for i, item := range t.Checklist {
			item.DueDate = cloneTime(item.DueDate)
			item.CompletedAt = cloneTime(item.CompletedAt)
			cp.Checklist[i] = item
		}
	}
	cp.Lock.RequestedAt = cloneTime(t.Lock.RequestedAt)
	cp.Lock.RespondedAt = cloneTime(t.Lock.RespondedAt)
	cp.Timer.StartedAt = cloneTime(t.Timer.StartedAt)
	return &cp
}

// ReassignmentRequest is a worker's petition to hand the task to someone else.
type ReassignmentRequest struct {
	ID            string        `json:"id"`
	TaskID        string        `json:"taskId"`
	RequesterID   string        `json:"requesterId"`
	RequesterName string        `json:"requesterName,omitempty"`
	Reason        string        `json:"reason"`
	Status        RequestStatus `json:"status"`
	RequestedAt   time.Time     `json:"requestedAt"`
	RespondedAt   *time.Time    `json:"respondedAt,omitempty"`
	NewAssigneeID string        `json:"newAssigneeId,omitempty"`
}

// Clone returns a deep copy of the request.
func (r *ReassignmentRequest) Clone() *ReassignmentRequest {
	if r == nil {
		return nil
	}
	cp := *r
	cp.RespondedAt = cloneTime(r.RespondedAt)
	return &cp
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
