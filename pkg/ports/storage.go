package ports

import (
	"context"
	"errors"

	"github.com/aescanero/patchwork/pkg/module"
)

// ErrNotFound is returned when no status is stored for a worker
var ErrNotFound = errors.New("status not found")

// StatusReader looks up stored snapshots across workers
type StatusReader interface {
	Load(ctx context.Context, workerID string) (*module.Snapshot, error)
	List(ctx context.Context) ([]string, error)
}

// StatusStorage persists worker component snapshots
type StatusStorage interface {
	StatusReader
	Save(ctx context.Context, snapshot module.Snapshot) error
	Delete(ctx context.Context, workerID string) error
	Ping(ctx context.Context) error
	Close() error
}
