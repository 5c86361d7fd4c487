package lifecycle

import (
	"time"

	"github.com/aristath/taskboard/internal/task"
)

// TimeTracker folds live timer deltas into whole accumulated seconds.
// Fractional seconds are truncated so time is never over-reported.
type TimeTracker struct {
	now func() time.Time
}

// NewTimeTracker creates a tracker. A nil clock uses time.Now.
func NewTimeTracker(now func() time.Time) *TimeTracker {
	if now == nil {
		now = time.Now
	}
	return &TimeTracker{now: now}
}

// Now returns the tracker's current time.
func (tt *TimeTracker) Now() time.Time {
	return tt.now()
}

// ElapsedNow returns the total tracked seconds for timer at now. It is a
// pure function used for display ticks; it is never the source of truth for
// persisted time.
func ElapsedNow(timer task.Timer, now time.Time) int64 {
	return timer.AccumulatedSeconds + liveSeconds(timer, now)
}

// Elapsed returns the total tracked seconds at the tracker's current time.
func (tt *TimeTracker) Elapsed(timer task.Timer) int64 {
	return ElapsedNow(timer, tt.now())
}

// Start begins tracking. Legal only when user may mutate t and the timer is
// not already running.
func (tt *TimeTracker) Start(t *task.Task, user task.User) (task.Timer, error) {
	return tt.run("start", t, user)
}

// Resume has the same precondition and effect as Start and exists so the
// audit trail distinguishes the two.
func (tt *TimeTracker) Resume(t *task.Task, user task.User) (task.Timer, error) {
	return tt.run("resume", t, user)
}

func (tt *TimeTracker) run(op string, t *task.Task, user task.User) (task.Timer, error) {
	if err := CheckWritable(op, t, user); err != nil {
		return t.Timer, err
	}
	if t.Timer.Running {
		return t.Timer, task.Validation(op, t.ID, "timer is already running")
	}

	timer := t.Timer
	timer.Running = true
	timer.StartedAt = task.TimePtr(tt.now())
	return timer, nil
}

// Pause folds the running delta into AccumulatedSeconds and stops the timer.
func (tt *TimeTracker) Pause(t *task.Task, user task.User) (task.Timer, error) {
	if err := CheckWritable("pause", t, user); err != nil {
		return t.Timer, err
	}
	if !t.Timer.Running {
		return t.Timer, task.Validation("pause", t.ID, "timer is not running")
	}
	return fold(t.Timer, tt.now()), nil
}

// Complete folds any remaining delta and stops the timer for good, returning
// the final total. It is the only path into a non-resumable total.
func (tt *TimeTracker) Complete(t *task.Task, user task.User) (task.Timer, int64, error) {
	if err := CheckWritable("complete", t, user); err != nil {
		return t.Timer, 0, err
	}
	timer := fold(t.Timer, tt.now())
	return timer, timer.AccumulatedSeconds, nil
}

// Fold stops timer at now without any permission check. The authoritative
// backend uses it when a transition implicitly stops tracking.
func Fold(timer task.Timer, now time.Time) task.Timer {
	return fold(timer, now)
}

func fold(timer task.Timer, now time.Time) task.Timer {
	timer.AccumulatedSeconds += liveSeconds(timer, now)
	timer.Running = false
	timer.StartedAt = nil
	return timer
}

// liveSeconds is the truncated running delta, clamped at zero so clock skew
// can never make elapsed time go backwards.
func liveSeconds(timer task.Timer, now time.Time) int64 {
	if !timer.Running || timer.StartedAt == nil {
		return 0
	}
	delta := now.Sub(*timer.StartedAt)
	if delta <= 0 {
		return 0
	}
	return int64(delta / time.Second)
}
