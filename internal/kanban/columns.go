package kanban

import (
	"strings"

	"github.com/aristath/taskboard/internal/task"
)

// Column is a board container. Membership is derived from task status only.
type Column string

const (
	ColumnToDo       Column = "To Do"
	ColumnInProgress Column = "In Progress"
	ColumnOnHold     Column = "On Hold"
	ColumnReview     Column = "Review"
	ColumnCompleted  Column = "Completed"
)

var columnStatus = map[Column]task.Status{
	ColumnToDo:       task.StatusPending,
	ColumnInProgress: task.StatusInProgress,
	ColumnOnHold:     task.StatusOnHold,
	ColumnReview:     task.StatusReview,
	ColumnCompleted:  task.StatusCompleted,
}

// Columns returns the board columns in display order.
func Columns() []Column {
	return []Column{ColumnToDo, ColumnInProgress, ColumnOnHold, ColumnReview, ColumnCompleted}
}

// ColumnFor returns the column a task with status s belongs to.
func ColumnFor(s task.Status) Column {
	for col, status := range columnStatus {
		if status == s {
			return col
		}
	}
	return ColumnToDo
}

// StatusFor resolves a column name to its status. Names are matched
// case-insensitively.
func StatusFor(col Column) (task.Status, bool) {
	if s, ok := columnStatus[col]; ok {
		return s, true
	}
	for c, s := range columnStatus {
		if strings.EqualFold(string(c), strings.TrimSpace(string(col))) {
			return s, true
		}
	}
	return 0, false
}

// Droppable reports whether cards may be dropped into col. Completed is
// only reachable through the finalize action.
func (c Column) Droppable() bool {
	s, ok := StatusFor(c)
	return ok && !s.Terminal()
}
