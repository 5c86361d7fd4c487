package backend

import (
	"sync"
)

// taskLocks provides per-task mutual exclusion for the authoritative backend.
// Uses a keyed mutex pattern: each canonical task id gets its own mutex, so
// commits on different tasks proceed concurrently while two commits on the
// same task serialize their read-validate-write cycles.
type taskLocks struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-task mutexes
}

func newTaskLocks() *taskLocks {
	return &taskLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for taskID, creating it on first access.
func (l *taskLocks) Lock(taskID string) {
	l.mu.Lock()
	m, exists := l.locks[taskID]
	if !exists {
		m = &sync.Mutex{}
		l.locks[taskID] = m
	}
	l.mu.Unlock()

	// Acquire outside the map lock to avoid contention
	m.Lock()
}

// Unlock releases the mutex for taskID.
func (l *taskLocks) Unlock(taskID string) {
	l.mu.Lock()
	m, exists := l.locks[taskID]
	l.mu.Unlock()

	if exists {
		m.Unlock()
	}
}
