// Package postgres provides a worker module owning a PostgreSQL connection
// pool whose liveness is reported through the module state.
package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/patchwork/pkg/module"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Default configuration values.
const (
	defaultCheckInterval = 10 * time.Second
	defaultPingTimeout   = 3 * time.Second
)

// Config holds pool configuration
type Config struct {
	DSN           string        `yaml:"dsn"`
	MaxConns      int32         `yaml:"max_conns"`
	CheckInterval time.Duration `yaml:"check_interval"`
	PingTimeout   time.Duration `yaml:"ping_timeout"`
}

// pinger is the part of *pgxpool.Pool the module relies on
type pinger interface {
	Ping(ctx context.Context) error
	Close()
}

// Module owns a pgx pool and checks it periodically
type Module struct {
	name    string
	cfg     Config
	logger  *zap.Logger
	state   *module.State
	connect func(ctx context.Context) (pinger, error)

	mu     sync.Mutex
	pool   pinger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new postgres module
func New(name string, cfg Config, logger *zap.Logger) (*Module, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	m := newModule(name, cfg, logger)
	m.connect = func(ctx context.Context) (pinger, error) {
		return pgxpool.NewWithConfig(ctx, poolCfg)
	}
	return m, nil
}

func newModule(name string, cfg Config, logger *zap.Logger) *Module {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}

	return &Module{
		name:   name,
		cfg:    cfg,
		logger: logger,
		state:  module.NewState(),
	}
}

func (m *Module) Name() string         { return m.name }
func (m *Module) State() *module.State { return m.state }

// Pool returns the underlying pool, nil before Run
func (m *Module) Pool() *pgxpool.Pool {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool, _ := m.pool.(*pgxpool.Pool)
	return pool
}

// Run opens the pool, verifies it and starts the liveness loop
func (m *Module) Run(ctx context.Context) error {
	m.state.Set(module.StatusStarting)

	pool, err := m.connect(ctx)
	if err != nil {
		m.state.Set(module.StatusFailed)
		return fmt.Errorf("create pool: %w", err)
	}

	if err := m.ping(ctx, pool); err != nil {
		pool.Close()
		m.state.Set(module.StatusFailed)
		return fmt.Errorf("ping database: %w", err)
	}

	checkCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.pool = pool
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.checkLoop(checkCtx, pool)

	m.logger.Info("connected to PostgreSQL")
	m.state.Set(module.StatusRunning)
	return nil
}

// Recover pings the database once and marks the module running on success
func (m *Module) Recover(ctx context.Context) error {
	m.mu.Lock()
	pool := m.pool
	m.mu.Unlock()

	if pool == nil {
		return m.Run(ctx)
	}

	if err := m.ping(ctx, pool); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	m.state.Set(module.StatusRunning)
	return nil
}

// Terminate stops the liveness loop and closes the pool
func (m *Module) Terminate(ctx context.Context) error {
	m.state.Set(module.StatusStopping)

	m.mu.Lock()
	pool := m.pool
	cancel := m.cancel
	m.pool = nil
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	if pool != nil {
		pool.Close()
	}

	m.state.Set(module.StatusStopped)
	m.logger.Info("PostgreSQL pool closed")
	return nil
}

func (m *Module) ping(ctx context.Context, pool pinger) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.PingTimeout)
	defer cancel()
	return pool.Ping(ctx)
}

// checkLoop pings the pool periodically and reflects the result in the state
func (m *Module) checkLoop(ctx context.Context, pool pinger) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := m.ping(ctx, pool)
			if ctx.Err() != nil {
				return
			}

			switch {
			case err != nil && m.state.IsRunning():
				m.logger.Error("database ping failed", zap.Error(err))
				m.state.Set(module.StatusFailed)
			case err == nil && m.state.Status() == module.StatusFailed:
				m.logger.Info("database reachable again")
				m.state.Set(module.StatusRunning)
			}
		}
	}
}
