// Package manager implements the worker's management plane: an HTTP API,
// a WebSocket status stream and a gRPC health service.
package manager

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	apigrpc "github.com/aescanero/patchwork/pkg/api/grpc"
	apihttp "github.com/aescanero/patchwork/pkg/api/http"
	"github.com/aescanero/patchwork/pkg/api/websocket"
	"github.com/aescanero/patchwork/pkg/module"
	"github.com/aescanero/patchwork/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Default configuration values.
const (
	defaultHTTPAddr        = ":8080"
	defaultGRPCAddr        = ":9090"
	defaultRefreshInterval = time.Second
)

// Config holds manager configuration
type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	DisableGRPC     bool          `yaml:"disable_grpc"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Manager serves status and control endpoints for the worker
type Manager struct {
	name     string
	cfg      Config
	status   module.StatusSource
	dir      ports.StatusStorage
	logger   *zap.Logger
	state    *module.State
	http     *apihttp.Server
	hub      *websocket.Hub
	grpc     *apigrpc.Server
	httpAddr net.Addr

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a manager. terminate is called for termination requests.
// dir, when set, serves the stored snapshots of the worker fleet and is
// closed on terminate.
func New(
	name string,
	cfg Config,
	status module.StatusSource,
	terminate func(code int),
	gatherer prometheus.Gatherer,
	dir ports.StatusStorage,
	logger *zap.Logger,
) *Manager {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}
	if cfg.GRPCAddr == "" {
		cfg.GRPCAddr = defaultGRPCAddr
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}

	hub := websocket.NewHub(logger.Named("websocket"))
	server := apihttp.NewServer(&apihttp.Config{
		Addr:      cfg.HTTPAddr,
		Status:    status,
		Terminate: terminate,
		Gatherer:  gatherer,
		Logger:    logger.Named("http"),
		Directory: directory(dir),
	})
	server.SetupWebSocket(websocket.NewHandler(hub, logger.Named("websocket")))

	return &Manager{
		name:   name,
		cfg:    cfg,
		status: status,
		dir:    dir,
		logger: logger,
		state:  module.NewState(),
		http:   server,
		hub:    hub,
	}
}

func (m *Manager) Name() string         { return m.name }
func (m *Manager) State() *module.State { return m.state }

// HTTPAddr returns the bound HTTP address, nil before Run
func (m *Manager) HTTPAddr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.httpAddr
}

// GRPCAddr returns the bound gRPC address, nil before Run or when disabled
func (m *Manager) GRPCAddr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grpc == nil {
		return nil
	}
	return m.grpc.Addr()
}

// Run binds both listeners, starts serving and returns
func (m *Manager) Run(ctx context.Context) error {
	m.state.Set(module.StatusStarting)

	listener, err := m.http.Listen()
	if err != nil {
		m.state.Set(module.StatusFailed)
		return err
	}

	var grpcServer *apigrpc.Server
	if !m.cfg.DisableGRPC {
		grpcServer, err = apigrpc.NewServer(&apigrpc.Config{
			Addr:   m.cfg.GRPCAddr,
			Logger: m.logger.Named("grpc"),
		})
		if err != nil {
			_ = listener.Close()
			m.state.Set(module.StatusFailed)
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.httpAddr = listener.Addr()
	m.grpc = grpcServer
	m.cancel = cancel
	m.mu.Unlock()

	m.serve("http", func() error { return m.http.Serve(listener) })
	if grpcServer != nil {
		m.serve("grpc", grpcServer.Start)
	}

	m.wg.Add(1)
	go m.refresh(runCtx)

	m.state.Set(module.StatusRunning)
	m.logger.Info("manager started", zap.String("http_addr", listener.Addr().String()))
	return nil
}

// serve runs a server loop, marking the manager failed if it exits early
func (m *Manager) serve(kind string, fn func() error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := fn(); err != nil {
			m.logger.Error("server exited", zap.String("server", kind), zap.Error(err))
			m.state.Set(module.StatusFailed)
		}
	}()
}

// refresh pushes snapshots to the health service and stream clients
func (m *Manager) refresh(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	var (
		last module.Snapshot
		sent bool
	)
	publish := func() {
		snap := m.status.Snapshot()

		m.mu.Lock()
		grpcServer := m.grpc
		m.mu.Unlock()
		if grpcServer != nil {
			grpcServer.SetStatus(snap)
		}

		if !sent || changed(last, snap) {
			m.hub.Broadcast(snap)
			last = snap
			sent = true
		}
	}

	publish()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
}

// changed reports whether any component's status differs
func changed(prev, next module.Snapshot) bool {
	if len(prev.Components) != len(next.Components) {
		return true
	}
	for i := range next.Components {
		if prev.Components[i].Name != next.Components[i].Name ||
			prev.Components[i].Status != next.Components[i].Status {
			return true
		}
	}
	return false
}

// Terminate stops the refresh loop, disconnects stream clients and shuts
// down both servers
func (m *Manager) Terminate(ctx context.Context) error {
	m.mu.Lock()
	cancel := m.cancel
	grpcServer := m.grpc
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		m.state.Set(module.StatusStopped)
		return m.closeDirectory()
	}

	m.state.Set(module.StatusStopping)
	cancel()
	m.hub.Close()

	var firstErr error
	if err := m.http.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if grpcServer != nil {
		if err := grpcServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	m.wg.Wait()
	if err := m.closeDirectory(); err != nil && firstErr == nil {
		firstErr = err
	}
	m.state.Set(module.StatusStopped)
	return firstErr
}

func (m *Manager) closeDirectory() error {
	if m.dir == nil {
		return nil
	}
	if err := m.dir.Close(); err != nil {
		return fmt.Errorf("failed to close status directory: %w", err)
	}
	return nil
}

// directory keeps a nil storage from becoming a non-nil reader
func directory(dir ports.StatusStorage) ports.StatusReader {
	if dir == nil {
		return nil
	}
	return dir
}
