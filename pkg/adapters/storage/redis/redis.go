package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aescanero/patchwork/pkg/module"
	"github.com/aescanero/patchwork/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "patchwork:status:"

// StatusStorage implements StatusStorage using Redis
type StatusStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewStatusStorage creates a new Redis status storage
func NewStatusStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *StatusStorage {
	return &StatusStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Save persists a snapshot under its worker ID
func (s *StatusStorage) Save(ctx context.Context, snapshot module.Snapshot) error {
	key := getStatusKey(snapshot.WorkerID)

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.logger.Debug("status saved",
		zap.String("worker_id", snapshot.WorkerID),
		zap.Int("components", len(snapshot.Components)))

	return nil
}

// Load retrieves the snapshot of a worker
func (s *StatusStorage) Load(ctx context.Context, workerID string) (*module.Snapshot, error) {
	data, err := s.client.Get(ctx, getStatusKey(workerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ports.ErrNotFound, workerID)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snapshot module.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}

// Delete removes the snapshot of a worker
func (s *StatusStorage) Delete(ctx context.Context, workerID string) error {
	if err := s.client.Del(ctx, getStatusKey(workerID)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// List returns all worker IDs that have a stored snapshot
func (s *StatusStorage) List(ctx context.Context) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	workerIDs := make([]string, 0, len(keys))
	for _, key := range keys {
		if id := strings.TrimPrefix(key, keyPrefix); id != "" && id != key {
			workerIDs = append(workerIDs, id)
		}
	}

	return workerIDs, nil
}

// Ping checks the Redis connection
func (s *StatusStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *StatusStorage) Close() error {
	return s.client.Close()
}

// getStatusKey returns the Redis key for a worker's snapshot
func getStatusKey(workerID string) string {
	return keyPrefix + workerID
}
