package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/patchwork/pkg/adapters/transport"
	"github.com/aescanero/patchwork/pkg/message"
	"github.com/aescanero/patchwork/pkg/module"
	"github.com/aescanero/patchwork/pkg/ports"
	"go.uber.org/zap"
)

// ErrNoRoute is returned when no router handles a message's route
var ErrNoRoute = errors.New("no router for route")

// FallbackRoute is the route key whose router handles unmatched routes
const FallbackRoute = "*"

// Config holds executor pool configuration
type Config struct {
	Size                int               `yaml:"size"`
	RequeueOnError      bool              `yaml:"requeue_on_error"`
	HealthCheckInterval time.Duration     `yaml:"health_check_interval"`
	Routes              map[string]string `yaml:"routes"`
}

// Pool manages a pool of worker goroutines
type Pool struct {
	name       string
	size       int
	requeue    bool
	subscriber transport.Subscriber
	publisher  transport.Publisher
	routers    map[string]message.Router
	metrics    ports.MetricsCollector
	logger     *zap.Logger
	interval   time.Duration
	state      *module.State

	mu            sync.Mutex
	workers       []*worker
	wg            sync.WaitGroup
	runCtx        context.Context
	cancel        context.CancelFunc
	healthDone    chan struct{}
	handlerCancel context.CancelFunc
	handlerCtx    context.Context
}

// worker represents a single worker goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new executor pool. The publisher may be nil.
func NewPool(
	name string,
	cfg Config,
	subscriber transport.Subscriber,
	publisher transport.Publisher,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}

	pool := &Pool{
		name:       name,
		size:       cfg.Size,
		requeue:    cfg.RequeueOnError,
		subscriber: subscriber,
		publisher:  publisher,
		routers:    make(map[string]message.Router),
		metrics:    metrics,
		logger:     logger,
		interval:   cfg.HealthCheckInterval,
		state:      module.NewState(),
	}

	return pool
}

func (p *Pool) Name() string         { return p.name }
func (p *Pool) State() *module.State { return p.state }

// AddRouter registers a router for a route. Must be called before Run.
func (p *Pool) AddRouter(route string, router message.Router) {
	p.routers[route] = router
}

// Run starts the worker goroutines
func (p *Pool) Run(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.routers) == 0 {
		return fmt.Errorf("executor has no routers")
	}

	p.state.Set(module.StatusStarting)
	p.logger.Info("starting worker pool", zap.Int("size", p.size))

	runCtx, cancel := context.WithCancel(context.Background())
	p.runCtx = runCtx
	p.cancel = cancel
	p.handlerCtx, p.handlerCancel = context.WithCancel(context.Background())

	p.workers = make([]*worker, p.size)
	for i := 0; i < p.size; i++ {
		w := &worker{
			id:      fmt.Sprintf("worker-%d", i),
			pool:    p,
			status:  WorkerStatusIdle,
			lastJob: time.Now(),
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(runCtx)
	}

	p.healthDone = make(chan struct{})
	go p.watchHealth(runCtx, p.interval, p.healthDone)

	p.state.Set(module.StatusRunning)
	p.logger.Info("worker pool started", zap.Int("workers", p.size))
	return nil
}

// Terminate stops intake and waits for in-flight handlers to finish.
// Handlers still running when ctx is done are cancelled.
func (p *Pool) Terminate(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	handlerCancel := p.handlerCancel
	healthDone := p.healthDone
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		p.state.Set(module.StatusStopped)
		return nil
	}

	p.state.Set(module.StatusStopping)
	p.logger.Info("shutting down worker pool")

	cancel()
	<-healthDone

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		handlerCancel()
		<-done
		err = fmt.Errorf("shutdown timeout: in-flight handlers cancelled")
	}
	handlerCancel()

	p.state.Set(module.StatusStopped)
	p.logger.Info("worker pool shut down complete")
	return err
}

// Recover restarts exited workers. It fails while the subscriber is down.
func (p *Pool) Recover(ctx context.Context) error {
	if !p.subscriber.State().IsRunning() {
		return fmt.Errorf("subscriber %s is not running", p.subscriber.Name())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return fmt.Errorf("executor is not running")
	}

	restarted := 0
	for _, w := range p.workers {
		w.mu.Lock()
		stopped := w.status == WorkerStatusStopped
		if stopped {
			w.status = WorkerStatusIdle
		}
		w.mu.Unlock()

		if stopped {
			p.wg.Add(1)
			go w.run(p.runCtx)
			restarted++
		}
	}

	p.state.Set(module.StatusRunning)
	p.logger.Info("pool workers restarted", zap.Int("workers", restarted))
	return nil
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()

	status := make(map[string]WorkerStatus)
	for _, w := range workers {
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

func (w *worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	w.status = status
	if status == WorkerStatusBusy {
		w.lastJob = time.Now()
	}
	w.mu.Unlock()
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()
	defer func() {
		w.setStatus(WorkerStatusStopped)
		if ctx.Err() == nil {
			w.pool.checkHealth()
		}
	}()

	w.pool.logger.Debug("worker started", zap.String("worker_id", w.id))

	deliveries := w.pool.subscriber.Deliveries()
	for {
		select {
		case <-ctx.Done():
			w.pool.logger.Debug("worker stopped", zap.String("worker_id", w.id))
			return
		case d, ok := <-deliveries:
			if !ok {
				w.pool.logger.Error("deliveries closed", zap.String("worker_id", w.id))
				return
			}
			w.handleDelivery(d)
		}
	}
}

// handleDelivery dispatches a delivery to its router
func (w *worker) handleDelivery(d *transport.Delivery) {
	w.setStatus(WorkerStatusBusy)
	defer w.setStatus(WorkerStatusIdle)

	p := w.pool
	msg := d.Message
	startTime := time.Now()

	router, ok := p.routers[msg.Route]
	if !ok {
		router, ok = p.routers[FallbackRoute]
	}
	if !ok {
		p.logger.Error("dropping message",
			zap.String("worker_id", w.id),
			zap.String("message_id", msg.ID),
			zap.String("route", msg.Route),
			zap.Error(ErrNoRoute))
		p.metrics.RecordMessageHandled(msg.Route, "unrouted", time.Since(startTime))
		if err := d.Nack(false); err != nil {
			p.logger.Error("failed to reject message", zap.String("message_id", msg.ID), zap.Error(err))
		}
		return
	}

	reply, err := w.invoke(router, msg)
	duration := time.Since(startTime)

	if err != nil {
		p.logger.Error("handler failed",
			zap.String("worker_id", w.id),
			zap.String("message_id", msg.ID),
			zap.String("route", msg.Route),
			zap.Duration("duration", duration),
			zap.Error(err))
		p.metrics.RecordMessageHandled(msg.Route, "failed", duration)
		if err := d.Nack(p.requeue); err != nil {
			p.logger.Error("failed to reject message", zap.String("message_id", msg.ID), zap.Error(err))
		}
		return
	}

	if reply != nil && msg.ReplyTo != "" {
		w.publishReply(msg, reply)
	}

	if err := d.Ack(); err != nil {
		p.logger.Error("failed to acknowledge message", zap.String("message_id", msg.ID), zap.Error(err))
	}

	p.metrics.RecordMessageHandled(msg.Route, "ok", duration)
	p.logger.Debug("message handled",
		zap.String("worker_id", w.id),
		zap.String("message_id", msg.ID),
		zap.String("route", msg.Route),
		zap.Duration("duration", duration))
}

// invoke runs a router, converting a panic into an error
func (w *worker) invoke(router message.Router, msg *message.Message) (reply *message.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return router.Handle(w.pool.handlerCtx, msg)
}

// publishReply publishes a router reply to the message's ReplyTo route
func (w *worker) publishReply(msg, reply *message.Message) {
	p := w.pool
	if p.publisher == nil {
		p.logger.Warn("reply dropped: no publisher configured",
			zap.String("message_id", msg.ID),
			zap.String("reply_to", msg.ReplyTo))
		return
	}

	reply.Route = msg.ReplyTo
	if err := p.publisher.Publish(p.handlerCtx, reply); err != nil {
		p.logger.Error("failed to publish reply",
			zap.String("worker_id", w.id),
			zap.String("message_id", msg.ID),
			zap.String("reply_to", msg.ReplyTo),
			zap.Error(err))
	}
}
