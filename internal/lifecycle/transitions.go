package lifecycle

import (
	"fmt"

	"github.com/aristath/taskboard/internal/task"
)

// Action is the remote commit associated with a status transition. Each
// transition has its own side effects, so callers never issue a generic
// "set status".
type Action int

const (
	ActionStart Action = iota + 1
	ActionPause
	ActionResume
	ActionRequestCompletion
	ActionComplete
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionPause:
		return "pause"
	case ActionResume:
		return "resume"
	case ActionRequestCompletion:
		return "request-completion"
	case ActionComplete:
		return "complete"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Transition is one legal edge of the task status graph.
type Transition struct {
	From         task.Status
	To           task.Status
	Action       Action
	FinalizeOnly bool // Only manager/admin roles may take this edge
}

type edge struct {
	from, to task.Status
}

// transitions is the complete status graph. Moving back into PENDING is
// intentionally absent.
var transitions = map[edge]Transition{
	{task.StatusPending, task.StatusInProgress}: {From: task.StatusPending, To: task.StatusInProgress, Action: ActionStart},
	{task.StatusInProgress, task.StatusOnHold}:  {From: task.StatusInProgress, To: task.StatusOnHold, Action: ActionPause},
	{task.StatusOnHold, task.StatusInProgress}:  {From: task.StatusOnHold, To: task.StatusInProgress, Action: ActionResume},
	{task.StatusInProgress, task.StatusReview}:  {From: task.StatusInProgress, To: task.StatusReview, Action: ActionRequestCompletion},
	{task.StatusReview, task.StatusCompleted}:   {From: task.StatusReview, To: task.StatusCompleted, Action: ActionComplete, FinalizeOnly: true},
}

// Lookup returns the transition from -> to, if it exists in the graph.
func Lookup(from, to task.Status) (Transition, bool) {
	tr, ok := transitions[edge{from, to}]
	return tr, ok
}

// Targets lists the statuses reachable from status by role, in board order.
func Targets(from task.Status, role task.Role) []task.Status {
	var out []task.Status
	for _, to := range task.Statuses() {
		if _, err := Validate(from, to, role); err == nil {
			out = append(out, to)
		}
	}
	return out
}

// Validate checks a requested status change for role. It never mutates task
// data; on success the caller commits tr.Action remotely and reconciles the
// returned canonical snapshot.
func Validate(current, requested task.Status, role task.Role) (Transition, error) {
	tr, ok := Lookup(current, requested)
	if !ok {
		reason := fmt.Sprintf("Cannot change status from %s to %s", current, requested)
		if requested == task.StatusPending && current != task.StatusPending {
			reason += ": moving a task back to pending is not currently supported"
		}
		return Transition{}, task.Validation("transition", "", reason)
	}
	if role == task.RoleClient {
		return Transition{}, task.Forbidden("transition", "", task.ReasonClientReadOnly)
	}
	if tr.FinalizeOnly && !role.CanFinalize() {
		return Transition{}, task.Forbidden("transition", "", "only a manager or admin can complete a task under review")
	}
	return tr, nil
}
