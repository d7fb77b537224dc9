// Package statusstore persists worker status snapshots on an interval.
package statusstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/patchwork/pkg/module"
	"github.com/aescanero/patchwork/pkg/ports"
	"go.uber.org/zap"
)

const defaultInterval = 5 * time.Second

// Config holds status store configuration
type Config struct {
	Interval time.Duration `yaml:"interval"`

	// RetainOnExit keeps a final snapshot on terminate instead of removing
	// the worker's entry
	RetainOnExit bool `yaml:"retain_on_exit"`
}

// Module periodically saves the worker's snapshot to storage
type Module struct {
	name     string
	interval time.Duration
	retain   bool
	storage  ports.StatusStorage
	source   module.StatusSource
	logger   *zap.Logger
	state    *module.State

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a status store module
func New(name string, cfg Config, storage ports.StatusStorage, source module.StatusSource, logger *zap.Logger) *Module {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}

	return &Module{
		name:     name,
		interval: cfg.Interval,
		retain:   cfg.RetainOnExit,
		storage:  storage,
		source:   source,
		logger:   logger,
		state:    module.NewState(),
	}
}

func (m *Module) Name() string         { return m.name }
func (m *Module) State() *module.State { return m.state }

// Run checks storage, saves a first snapshot and starts the save loop
func (m *Module) Run(ctx context.Context) error {
	m.state.Set(module.StatusStarting)

	if err := m.storage.Ping(ctx); err != nil {
		m.state.Set(module.StatusFailed)
		return fmt.Errorf("status storage unavailable: %w", err)
	}
	if err := m.save(ctx); err != nil {
		m.state.Set(module.StatusFailed)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(loopCtx)

	m.state.Set(module.StatusRunning)
	m.logger.Info("status store started", zap.Duration("interval", m.interval))
	return nil
}

// Recover retries a single save
func (m *Module) Recover(ctx context.Context) error {
	if err := m.save(ctx); err != nil {
		return err
	}
	m.state.Set(module.StatusRunning)
	return nil
}

// Terminate stops the loop and closes storage. The worker's entry is removed
// unless the module retains a final snapshot.
func (m *Module) Terminate(ctx context.Context) error {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		m.state.Set(module.StatusStopping)
		cancel()
		m.wg.Wait()

		if m.retain {
			if err := m.save(ctx); err != nil {
				m.logger.Warn("failed to save final status", zap.Error(err))
			}
		} else if err := m.storage.Delete(ctx, m.source.Snapshot().WorkerID); err != nil {
			m.logger.Warn("failed to remove status", zap.Error(err))
		}
	}

	m.state.Set(module.StatusStopped)
	return m.storage.Close()
}

func (m *Module) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.save(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.Error("failed to save status", zap.Error(err))
				m.state.Set(module.StatusFailed)
				continue
			}
			m.state.Set(module.StatusRunning)
		}
	}
}

func (m *Module) save(ctx context.Context) error {
	if err := m.storage.Save(ctx, m.source.Snapshot()); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}
