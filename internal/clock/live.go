package clock

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/taskboard/internal/events"
	"github.com/aristath/taskboard/internal/lifecycle"
	"github.com/aristath/taskboard/internal/task"
)

// DefaultInterval is the display refresh rate of a running timer.
const DefaultInterval = time.Second

// LiveOption configures a LiveTimer.
type LiveOption func(*LiveTimer)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) LiveOption {
	return func(lt *LiveTimer) {
		if d > 0 {
			lt.interval = d
		}
	}
}

// WithClock sets the clock used to compute elapsed time.
func WithClock(now func() time.Time) LiveOption {
	return func(lt *LiveTimer) {
		if now != nil {
			lt.now = now
		}
	}
}

// WithPublisher publishes a TimerTickEvent on every tick.
func WithPublisher(p events.Publisher) LiveOption {
	return func(lt *LiveTimer) {
		if p != nil {
			lt.bus = p
		}
	}
}

// LiveTimer is the clock of one mounted task view. It ticks only while the
// mounted snapshot has a running timer and stops as soon as a snapshot
// arrives that is no longer running. Views never share a LiveTimer.
type LiveTimer struct {
	ticker   Ticker
	bus      events.Publisher
	now      func() time.Time
	interval time.Duration

	mu      sync.Mutex
	mounted bool
	id      string
	timer   task.Timer
	token   Token
}

// NewLiveTimer creates an unmounted timer that schedules ticks on ticker.
func NewLiveTimer(ticker Ticker, opts ...LiveOption) *LiveTimer {
	lt := &LiveTimer{
		ticker:   ticker,
		bus:      events.Discard,
		now:      time.Now,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(lt)
	}
	return lt
}

// Mount attaches the timer to t. A previously mounted task is released.
func (lt *LiveTimer) Mount(t *task.Task) error {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.cancelLocked()
	lt.mounted = true
	lt.id = t.ID
	lt.timer = t.Timer
	return lt.syncLocked()
}

// Update applies a newer snapshot of the mounted task. Snapshots of other
// tasks are ignored.
func (lt *LiveTimer) Update(t *task.Task) error {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if !lt.mounted || !t.HasID(lt.id) {
		return nil
	}
	lt.id = t.ID
	lt.timer = t.Timer
	return lt.syncLocked()
}

// Unmount stops ticking and detaches the timer.
func (lt *LiveTimer) Unmount() {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.cancelLocked()
	lt.mounted = false
	lt.id = ""
	lt.timer = task.Timer{}
}

// Follow applies every TaskUpdatedEvent read from updates until ctx is done
// or the channel closes.
func (lt *LiveTimer) Follow(ctx context.Context, updates <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-updates:
			if !ok {
				return
			}
			if u, isUpdate := e.(events.TaskUpdatedEvent); isUpdate && u.Task != nil {
				_ = lt.Update(u.Task)
			}
		}
	}
}

// Elapsed returns the display value in whole seconds.
func (lt *LiveTimer) Elapsed() int64 {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lifecycle.ElapsedNow(lt.timer, lt.now())
}

// Ticking reports whether a tick is scheduled.
func (lt *LiveTimer) Ticking() bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.token.Valid()
}

func (lt *LiveTimer) syncLocked() error {
	switch {
	case lt.timer.Running && !lt.token.Valid():
		tok, err := lt.ticker.Every(lt.interval, lt.tick)
		if err != nil {
			return err
		}
		lt.token = tok
	case !lt.timer.Running:
		lt.cancelLocked()
	}
	return nil
}

func (lt *LiveTimer) cancelLocked() {
	if lt.token.Valid() {
		lt.ticker.Cancel(lt.token)
		lt.token = Token{}
	}
}

func (lt *LiveTimer) tick() {
	lt.mu.Lock()
	if !lt.mounted || !lt.timer.Running {
		lt.mu.Unlock()
		return
	}
	now := lt.now()
	ev := events.TimerTickEvent{
		ID:             lt.id,
		ElapsedSeconds: lifecycle.ElapsedNow(lt.timer, now),
		Timestamp:      now,
	}
	lt.mu.Unlock()
	lt.bus.Publish(events.TopicTimer, ev)
}
