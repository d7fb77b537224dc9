package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aescanero/patchwork/pkg/module"
	"github.com/aescanero/patchwork/pkg/ports"
)

// StatusStorage implements StatusStorage using an in-memory map
// This is for testing purposes only
type StatusStorage struct {
	mu        sync.RWMutex
	snapshots map[string]module.Snapshot
	pingErr   error
}

// NewStatusStorage creates a new in-memory status storage
func NewStatusStorage() *StatusStorage {
	return &StatusStorage{
		snapshots: make(map[string]module.Snapshot),
	}
}

// Save stores a copy of the snapshot
func (s *StatusStorage) Save(ctx context.Context, snapshot module.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot.Components = append([]module.ComponentStatus(nil), snapshot.Components...)
	s.snapshots[snapshot.WorkerID] = snapshot
	return nil
}

// Load retrieves the snapshot of a worker
func (s *StatusStorage) Load(ctx context.Context, workerID string) (*module.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[workerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrNotFound, workerID)
	}
	return &snapshot, nil
}

// Delete removes the snapshot of a worker
func (s *StatusStorage) Delete(ctx context.Context, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, workerID)
	return nil
}

// List returns all worker IDs with a stored snapshot
func (s *StatusStorage) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	return ids, nil
}

// SetPingError makes Ping return err, simulating an unreachable store
func (s *StatusStorage) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// Ping returns the configured ping error
func (s *StatusStorage) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingErr
}

// Close is a no-op
func (s *StatusStorage) Close() error {
	return nil
}
