package backend

import (
	"time"

	"github.com/aristath/taskboard/internal/lifecycle"
	"github.com/aristath/taskboard/internal/task"
)

// ReassignmentResult pairs a request with the task snapshot it changed.
type ReassignmentResult struct {
	Request *task.ReassignmentRequest `json:"request"`
	Task    *task.Task                `json:"task"`
}

// ChecklistInput carries the editable fields of a checklist item.
type ChecklistInput struct {
	Title   string     `json:"title"`
	DueDate *time.Time `json:"dueDate,omitempty"`
}

// Config defines the configuration for a backend.
type Config struct {
	Type      string // "local" or "http"
	ServerURL string // Base URL for the http backend
	Timeout   time.Duration
	Policy    lifecycle.ReassignPolicy
}
