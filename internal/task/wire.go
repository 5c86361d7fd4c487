package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// wireTask is the tolerant shape accepted from the backend. Older endpoints
// return "_id" or "taskId" instead of "id" and "stage" instead of "status".
type wireTask struct {
	ID            json.RawMessage `json:"id"`
	MongoID       json.RawMessage `json:"_id"`
	TaskID        json.RawMessage `json:"taskId"`
	Aliases       []string        `json:"aliases"`
	ProjectID     json.RawMessage `json:"projectId"`
	Project       json.RawMessage `json:"project"`
	Title         string          `json:"title"`
	Name          string          `json:"name"`
	Status        *string         `json:"status"`
	Stage         *string         `json:"stage"`
	AssignedUsers []Assignment    `json:"assignedUsers"`
	Lock          Lock            `json:"lock"`
	Timer         Timer           `json:"timer"`
	Checklist     []ChecklistItem `json:"checklist"`
	UpdatedAt     *time.Time      `json:"updatedAt"`
}

// UnmarshalJSON normalizes id aliases and legacy status spellings into the
// canonical snapshot.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w wireTask
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var ids []string
	for _, raw := range []json.RawMessage{w.ID, w.MongoID, w.TaskID} {
		id, err := rawID(raw)
		if err != nil {
			return fmt.Errorf("decoding task id: %w", err)
		}
		if id != "" {
			ids = appendUnique(ids, id)
		}
	}
	for _, alias := range w.Aliases {
		if alias != "" {
			ids = appendUnique(ids, alias)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("task snapshot has no id")
	}

	status := StatusPending
	raw := w.Status
	if raw == nil || *raw == "" {
		raw = w.Stage
	}
	if raw != nil && *raw != "" {
		parsed, err := ParseStatus(*raw)
		if err != nil {
			return err
		}
		status = parsed
	}

	projectID, err := rawID(w.ProjectID)
	if err != nil {
		return fmt.Errorf("decoding project id: %w", err)
	}
	if projectID == "" {
		if projectID, err = rawID(w.Project); err != nil {
			return fmt.Errorf("decoding project id: %w", err)
		}
	}

	title := w.Title
	if title == "" {
		title = w.Name
	}

	*t = Task{
		ID:            ids[0],
		ProjectID:     projectID,
		Title:         title,
		Status:        status,
		AssignedUsers: w.AssignedUsers,
		Lock:          w.Lock,
		Timer:         w.Timer,
		Checklist:     w.Checklist,
	}
	if len(ids) > 1 {
		t.Aliases = ids[1:]
	}
	if w.UpdatedAt != nil {
		t.UpdatedAt = *w.UpdatedAt
	}
	return nil
}

// UnmarshalJSON accepts "userId", "user_id" or "_id" for the assignee.
func (a *Assignment) UnmarshalJSON(data []byte) error {
	var w struct {
		UserID   json.RawMessage `json:"userId"`
		Snake    json.RawMessage `json:"user_id"`
		MongoID  json.RawMessage `json:"_id"`
		ReadOnly bool            `json:"readOnly"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	for _, raw := range []json.RawMessage{w.UserID, w.Snake, w.MongoID} {
		id, err := rawID(raw)
		if err != nil {
			return fmt.Errorf("decoding assignee id: %w", err)
		}
		if id != "" {
			*a = Assignment{UserID: id, ReadOnly: w.ReadOnly}
			return nil
		}
	}
	return fmt.Errorf("assignment has no user id")
}

// UnmarshalJSON accepts "_id" as an alias for the request id.
func (r *ReassignmentRequest) UnmarshalJSON(data []byte) error {
	type plain ReassignmentRequest
	var w struct {
		plain
		MongoID json.RawMessage `json:"_id"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = ReassignmentRequest(w.plain)
	if r.ID == "" {
		id, err := rawID(w.MongoID)
		if err != nil {
			return fmt.Errorf("decoding request id: %w", err)
		}
		r.ID = id
	}
	return nil
}

// DecodeSnapshot decodes a single task snapshot.
func DecodeSnapshot(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding task snapshot: %w", err)
	}
	return &t, nil
}

// DecodeSnapshots decodes a JSON array of task snapshots.
func DecodeSnapshots(data []byte) ([]*Task, error) {
	var tasks []*Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("decoding task snapshots: %w", err)
	}
	return tasks, nil
}

// rawID reads an identifier that may be encoded as a JSON string or number.
func rawID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return "", err
	}
	return n.String(), nil
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
