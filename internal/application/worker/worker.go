package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/aescanero/patchwork/internal/application/components"
	"github.com/aescanero/patchwork/internal/config"
	metricsprom "github.com/aescanero/patchwork/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/patchwork/pkg/adapters/transport"
	"github.com/aescanero/patchwork/pkg/adapters/transport/memory"
	"github.com/aescanero/patchwork/pkg/module"
	"github.com/aescanero/patchwork/pkg/ports"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

var (
	// ErrStartup is returned by Run in debug mode when a component failed to start
	ErrStartup = errors.New("worker failed to start")

	// ErrNotOnLoop is the panic value raised when loop-only code runs elsewhere
	ErrNotOnLoop = errors.New("not running on the worker control loop")
)

// Exit codes reported by Run
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitModuleLost = 2
)

const controlCapacity = 16

// Components holds the worker's collaborators. Publisher is optional.
type Components struct {
	Manager    module.Module
	Executor   module.Module
	Modules    []module.Module
	Publisher  transport.Publisher
	Subscriber transport.Subscriber
}

// loopKey marks contexts derived from the control loop
type loopKey struct{}

// control events handled by the loop
type (
	terminateEvent struct{ code int }
	startedEvent   struct{ err error }
	stoppedEvent   struct{}
)

// Worker supervises the lifecycle of its components
type Worker struct {
	id         string
	debug      bool
	logger     *zap.Logger
	metrics    ports.MetricsCollector
	gatherer   prometheus.Gatherer
	components Components
	state      *module.State
	bus        *memory.Bus

	stdout  io.Writer
	kill    func()
	signals <-chan os.Signal

	control chan interface{}
	done    chan struct{}
	tasks   *taskGroup

	mu      sync.Mutex
	monitor *task

	// owned by the loop goroutine
	exitCode    int
	terminating bool
	starting    bool
	startCancel context.CancelFunc
	startErr    error
	stopTask    *task
}

// Option configures a Worker
type Option func(*Worker)

// WithID sets the worker ID reported in status snapshots
func WithID(id string) Option {
	return func(w *Worker) {
		w.id = id
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m ports.MetricsCollector) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithStdout sets where SIGUSR1 statistics are written
func WithStdout(out io.Writer) Option {
	return func(w *Worker) {
		w.stdout = out
	}
}

// WithKiller replaces the process-level kill used when termination is stuck
func WithKiller(kill func()) Option {
	return func(w *Worker) {
		w.kill = kill
	}
}

// WithSignals replaces OS signal delivery with the given channel
func WithSignals(ch <-chan os.Signal) Option {
	return func(w *Worker) {
		w.signals = ch
	}
}

// WithBus sets the in-process bus used by memory transports
func WithBus(bus *memory.Bus) Option {
	return func(w *Worker) {
		w.bus = bus
	}
}

// WithDebug sets debug mode on workers built from components
func WithDebug(debug bool) Option {
	return func(w *Worker) {
		w.debug = debug
	}
}

// New creates a worker and builds every component from settings
func New(settings *config.Settings, reg *components.Registry, logger *zap.Logger, opts ...Option) (*Worker, error) {
	w := newWorker(logger, append([]Option{WithDebug(settings.Debug)}, opts...)...)

	if w.metrics == nil {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		w.metrics = metricsprom.NewCollector(promReg)
		w.gatherer = promReg
	}

	set, err := reg.Build(settings, components.Deps{
		WorkerID:  w.id,
		Logger:    logger,
		Metrics:   w.metrics,
		Gatherer:  w.gatherer,
		Status:    w,
		Terminate: w.TerminateWorker,
		Bus:       w.bus,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build components: %w", err)
	}

	w.components = Components{
		Manager:    set.Manager,
		Executor:   set.Executor,
		Modules:    set.Modules,
		Publisher:  set.Publisher,
		Subscriber: set.Subscriber,
	}

	return w, nil
}

// NewWithComponents creates a worker around prebuilt components
func NewWithComponents(c Components, logger *zap.Logger, opts ...Option) *Worker {
	w := newWorker(logger, opts...)
	w.components = c
	return w
}

func newWorker(logger *zap.Logger, opts ...Option) *Worker {
	w := &Worker{
		id:      uuid.New().String(),
		logger:  logger,
		state:   module.NewState(),
		stdout:  os.Stdout,
		kill:    forceKill,
		control: make(chan interface{}, controlCapacity),
		done:    make(chan struct{}),
		tasks:   newTaskGroup(),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.metrics == nil {
		w.metrics = ports.NopMetrics{}
	}

	return w
}

// ID returns the worker ID
func (w *Worker) ID() string {
	return w.id
}

// State returns the worker's own lifecycle state
func (w *Worker) State() *module.State {
	return w.state
}

// Main runs the worker and returns the process exit code
func (w *Worker) Main(ctx context.Context) int {
	code, err := w.Run(ctx)
	if err != nil {
		w.logger.Error("worker exited with error", zap.Error(err), zap.Int("exit_code", code))
	}
	return code
}

// Run drives the control loop until the worker has stopped.
//
// Cancelling ctx requests a clean termination, the same as SIGTERM.
// A startup failure yields exit code 1; in debug mode it is also returned.
func (w *Worker) Run(ctx context.Context) (int, error) {
	defer close(w.done)

	signals := w.signals
	if signals == nil {
		ch, release := notifySignals()
		defer release()
		signals = ch
	}

	loopCtx := context.WithValue(context.WithoutCancel(ctx), loopKey{}, w)
	parentDone := ctx.Done()

	w.logger.Info("starting worker", zap.String("worker_id", w.id), zap.Int("pid", os.Getpid()))
	w.state.Set(module.StatusStarting)

	startCtx, cancel := context.WithCancel(loopCtx)
	w.starting = true
	w.startCancel = cancel
	w.tasks.spawn(startCtx, "start", func(ctx context.Context) error {
		err := w.start(ctx)
		w.post(startedEvent{err: err})
		return err
	})

	for {
		select {
		case sig := <-signals:
			w.handleSignal(loopCtx, sig)

		case <-parentDone:
			parentDone = nil
			w.logger.Info("context cancelled, terminating worker")
			w.terminate(loopCtx, ExitOK)

		case ev := <-w.control:
			switch ev := ev.(type) {
			case startedEvent:
				w.onStarted(loopCtx, ev.err)
			case terminateEvent:
				w.terminate(loopCtx, ev.code)
			case stoppedEvent:
				w.checkLeaks()
				w.state.Set(module.StatusStopped)
				w.metrics.SetExitCode(w.exitCode)
				w.logger.Info("worker stopped", zap.Int("exit_code", w.exitCode))
				return w.exitCode, w.startErr
			}
		}
	}
}

// TerminateWorker requests worker termination with the given exit code.
//
// The first request schedules a graceful stop. A request made while a stop
// is already pending kills the process with SIGTERM.
func (w *Worker) TerminateWorker(code int) {
	w.post(terminateEvent{code: code})
}

// post delivers an event to the loop, dropping it once the loop has exited
func (w *Worker) post(ev interface{}) {
	select {
	case w.control <- ev:
	case <-w.done:
	}
}

// assertLoop panics unless ctx was derived from this worker's control loop
func (w *Worker) assertLoop(ctx context.Context) {
	if owner, _ := ctx.Value(loopKey{}).(*Worker); owner != w {
		panic(ErrNotOnLoop)
	}
}

// onStarted handles completion of the start task
func (w *Worker) onStarted(ctx context.Context, err error) {
	w.assertLoop(ctx)
	w.starting = false
	if w.startCancel != nil {
		w.startCancel()
		w.startCancel = nil
	}

	if err != nil {
		if !w.terminating || !errors.Is(err, context.Canceled) {
			w.logger.Error("worker failed to start", zap.Error(err))
			if w.debug {
				w.startErr = fmt.Errorf("%w: %w", ErrStartup, err)
			}
			if w.exitCode == ExitOK {
				w.exitCode = ExitFailure
			}
			w.terminating = true
		}
		w.launchStop(ctx)
		return
	}

	if w.terminating {
		w.launchStop(ctx)
		return
	}

	w.state.Set(module.StatusRunning)
	w.logger.Info("worker started", zap.String("worker_id", w.id))
}

// terminate is TerminateWorker on the loop goroutine
func (w *Worker) terminate(ctx context.Context, code int) {
	w.assertLoop(ctx)

	if w.terminating {
		w.logger.Error("termination already pending, killing process",
			zap.Int("exit_code", code),
		)
		w.kill()
		return
	}

	w.logger.Info("terminating worker", zap.Int("exit_code", code))
	w.terminating = true
	w.exitCode = code

	if w.starting {
		// stop runs once the start task has unwound
		w.startCancel()
		return
	}

	w.launchStop(ctx)
}

// launchStop schedules the stop task so the loop keeps handling events
func (w *Worker) launchStop(ctx context.Context) {
	w.assertLoop(ctx)
	w.state.Set(module.StatusStopping)
	w.stopTask = w.tasks.spawn(ctx, "stop", func(ctx context.Context) error {
		w.stop(ctx)
		w.post(stoppedEvent{})
		return nil
	})
}

// checkLeaks logs loop tasks that survived the stop sequence
func (w *Worker) checkLeaks() {
	if pending := w.tasks.pending(w.stopTask); len(pending) > 0 {
		w.logger.Error("tasks still running after stop", zap.Strings("tasks", pending))
	}
}

// Snapshot returns the status of every component
func (w *Worker) Snapshot() module.Snapshot {
	snap := module.Snapshot{
		WorkerID:  w.id,
		Timestamp: time.Now(),
	}

	for _, e := range w.entries() {
		status, since := componentStatus(e.mod)
		snap.Components = append(snap.Components, module.ComponentStatus{
			Name:   e.mod.Name(),
			Role:   e.role,
			Status: status,
			Since:  since,
		})
	}

	return snap
}

// componentStatus reads a component's status. A component without a state
// reads as failed.
func componentStatus(m module.Module) (module.Status, time.Time) {
	st := m.State()
	if st == nil {
		return module.StatusFailed, time.Time{}
	}
	return st.Status(), st.Since()
}

type entry struct {
	role module.Role
	mod  module.Module
}

// entries lists components in start order
func (w *Worker) entries() []entry {
	c := w.components
	list := make([]entry, 0, len(c.Modules)+4)

	if c.Manager != nil {
		list = append(list, entry{module.RoleManager, c.Manager})
	}
	for _, m := range c.Modules {
		list = append(list, entry{module.RoleModule, m})
	}
	if c.Publisher != nil {
		list = append(list, entry{module.RolePublisher, c.Publisher})
	}
	if c.Subscriber != nil {
		list = append(list, entry{module.RoleSubscriber, c.Subscriber})
	}
	if c.Executor != nil {
		list = append(list, entry{module.RoleExecutor, c.Executor})
	}

	return list
}
