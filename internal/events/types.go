package events

import (
	"time"

	"github.com/aristath/taskboard/internal/task"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask         = "task"
	TopicBoard        = "board"
	TopicTimer        = "timer"
	TopicReassignment = "reassignment"
)

// Event type constants
const (
	EventTypeTaskUpdated           = "task.updated"
	EventTypeTaskMoving            = "task.moving"
	EventTypeTaskRolledBack        = "task.rolled_back"
	EventTypeTaskWarning           = "task.warning"
	EventTypeTimerTick             = "timer.tick"
	EventTypeReassignmentRequested = "reassignment.requested"
	EventTypeReassignmentResolved  = "reassignment.resolved"
	EventTypeBoardProgress         = "board.progress"
)

// TaskUpdatedEvent is published when the repository accepts a new
// canonical snapshot.
type TaskUpdatedEvent struct {
	Task      *task.Task
	Op        string // Operation that produced the snapshot, "refresh" for fetches
	Timestamp time.Time
}

func (e TaskUpdatedEvent) EventType() string { return EventTypeTaskUpdated }
func (e TaskUpdatedEvent) TaskID() string    { return e.Task.ID }

// TaskMovingEvent is published when a card is shown optimistically in its
// target column while the commit is in flight.
type TaskMovingEvent struct {
	ID        string
	From      task.Status
	To        task.Status
	Timestamp time.Time
}

func (e TaskMovingEvent) EventType() string { return EventTypeTaskMoving }
func (e TaskMovingEvent) TaskID() string    { return e.ID }

// TaskRolledBackEvent is published when an optimistic move is discarded.
type TaskRolledBackEvent struct {
	ID        string
	Op        string
	Restored  task.Status // Column the card returns to
	Err       error
	Timestamp time.Time
}

func (e TaskRolledBackEvent) EventType() string { return EventTypeTaskRolledBack }
func (e TaskRolledBackEvent) TaskID() string    { return e.ID }

// TaskWarningEvent is published when an action is refused before any
// network call, e.g. a drag on a read-only card.
type TaskWarningEvent struct {
	ID        string
	Op        string
	Reason    string
	Err       error
	Timestamp time.Time
}

func (e TaskWarningEvent) EventType() string { return EventTypeTaskWarning }
func (e TaskWarningEvent) TaskID() string    { return e.ID }

// TimerTickEvent is a display refresh for a running timer. It never
// reflects persisted time.
type TimerTickEvent struct {
	ID             string
	ElapsedSeconds int64
	Timestamp      time.Time
}

func (e TimerTickEvent) EventType() string { return EventTypeTimerTick }
func (e TimerTickEvent) TaskID() string    { return e.ID }

// ReassignmentRequestedEvent is published after a request locks a task.
type ReassignmentRequestedEvent struct {
	Request   *task.ReassignmentRequest
	Timestamp time.Time
}

func (e ReassignmentRequestedEvent) EventType() string { return EventTypeReassignmentRequested }
func (e ReassignmentRequestedEvent) TaskID() string    { return e.Request.TaskID }

// ReassignmentResolvedEvent is published after a request is approved or rejected.
type ReassignmentResolvedEvent struct {
	Request   *task.ReassignmentRequest
	Timestamp time.Time
}

func (e ReassignmentResolvedEvent) EventType() string { return EventTypeReassignmentResolved }
func (e ReassignmentResolvedEvent) TaskID() string    { return e.Request.TaskID }

// BoardProgressEvent is published when column membership changes.
type BoardProgressEvent struct {
	Total      int
	Pending    int
	InProgress int
	OnHold     int
	Review     int
	Completed  int
	Timestamp  time.Time
}

func (e BoardProgressEvent) EventType() string { return EventTypeBoardProgress }
func (e BoardProgressEvent) TaskID() string    { return "" }
