// Package clock schedules the display refresh of running task timers.
// Ticks only re-render elapsed time; persisted time always comes from the
// backend snapshot.
package clock

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Token cancels a scheduled tick.
type Token struct {
	id cron.EntryID
}

// Valid reports whether the token refers to a scheduled entry.
func (t Token) Valid() bool {
	return t.id != 0
}

// Ticker runs a function at a fixed interval until cancelled.
type Ticker interface {
	Every(interval time.Duration, fn func()) (Token, error)
	Cancel(tok Token)
}

// Scheduler is a Ticker backed by a cron runner with second resolution.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[cron.EntryID]time.Duration
	logger  *slog.Logger
	running bool
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		entries: make(map[cron.EntryID]time.Duration),
		logger:  logger,
	}
}

// Start begins running scheduled entries. Calling it twice is harmless.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.Debug("tick scheduler started")
}

// Stop halts the scheduler and waits up to timeout for running ticks.
func (s *Scheduler) Stop(timeout time.Duration) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Debug("tick scheduler stopping", "entries", s.Active())
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(timeout):
		s.logger.Warn("tick scheduler stop timed out", "timeout", timeout)
	}
}

// Every schedules fn every interval. Cron schedules have one-second
// resolution, so shorter intervals are rejected.
func (s *Scheduler) Every(interval time.Duration, fn func()) (Token, error) {
	if interval < time.Second {
		return Token{}, fmt.Errorf("tick interval %s is below one second", interval)
	}
	if fn == nil {
		return Token{}, fmt.Errorf("tick function is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(fn))
	s.entries[id] = interval
	return Token{id: id}, nil
}

// Cancel removes the entry behind tok. Unknown tokens are ignored.
func (s *Scheduler) Cancel(tok Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[tok.id]; !ok {
		return
	}
	s.cron.Remove(tok.id)
	delete(s.entries, tok.id)
}

// Active returns the number of scheduled entries.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
