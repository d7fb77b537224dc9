package module

import (
	"sync"
	"time"
)

// Status represents a component lifecycle status
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusFailed   Status = "failed"
)

// State is an observable lifecycle value.
//
// Wait returns a channel that is closed on the next status transition, so
// several observers can wait on the same state independently.
type State struct {
	mu      sync.RWMutex
	status  Status
	since   time.Time
	changed chan struct{}
}

// NewState creates a state in the stopped status
func NewState() *State {
	return &State{
		status:  StatusStopped,
		since:   time.Now(),
		changed: make(chan struct{}),
	}
}

// Set transitions the state. Setting the current status is a no-op.
func (s *State) Set(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == status {
		return
	}

	s.status = status
	s.since = time.Now()
	close(s.changed)
	s.changed = make(chan struct{})
}

// Wait returns a channel closed on the next transition
func (s *State) Wait() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Status returns the current status
func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Since returns the time of the last transition
func (s *State) Since() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.since
}

// IsRunning returns true if the status is running
func (s *State) IsRunning() bool {
	return s.Status() == StatusRunning
}
