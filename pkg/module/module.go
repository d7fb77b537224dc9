package module

import (
	"context"
	"time"
)

// Role identifies the position a component occupies in the worker
type Role string

const (
	RoleManager    Role = "manager"
	RoleExecutor   Role = "executor"
	RoleModule     Role = "module"
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

// Module is a pluggable worker component with a uniform lifecycle
type Module interface {
	// Name returns the instance name used in logs, metrics and status reports
	Name() string

	// Run starts the component and returns once it is running
	Run(ctx context.Context) error

	// Terminate stops the component
	Terminate(ctx context.Context) error

	// State returns the component's lifecycle state
	State() *State
}

// Recoverer is implemented by components that can attempt to resume after going down
type Recoverer interface {
	Recover(ctx context.Context) error
}

// ComponentStatus describes a single component for status reports
type ComponentStatus struct {
	Name   string    `json:"name"`
	Role   Role      `json:"role"`
	Status Status    `json:"status"`
	Since  time.Time `json:"since"`
}

// Snapshot is a point-in-time view of all worker components
type Snapshot struct {
	WorkerID   string            `json:"worker_id"`
	Components []ComponentStatus `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Healthy returns true if every component is running
func (s Snapshot) Healthy() bool {
	for _, c := range s.Components {
		if c.Status != StatusRunning {
			return false
		}
	}
	return true
}

// StatusSource provides snapshots of the worker's components
type StatusSource interface {
	Snapshot() Snapshot
}
