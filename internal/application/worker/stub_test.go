package worker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/patchwork/pkg/adapters/transport"
	"github.com/aescanero/patchwork/pkg/message"
	"github.com/aescanero/patchwork/pkg/module"
)

// callLog records lifecycle calls across stubs in order
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.snapshot() {
		if c == call {
			n++
		}
	}
	return n
}

func (l *callLog) index(call string) int {
	for i, c := range l.snapshot() {
		if c == call {
			return i
		}
	}
	return -1
}

// stub is a module whose behaviour is controlled by the test
type stub struct {
	name  string
	state *module.State
	log   *callLog

	runErr   error
	runBlock bool
	runDelay time.Duration
	termGate chan struct{}
}

func newStub(name string, log *callLog) *stub {
	return &stub{
		name:  name,
		state: module.NewState(),
		log:   log,
	}
}

func (s *stub) Name() string         { return s.name }
func (s *stub) State() *module.State { return s.state }

func (s *stub) Run(ctx context.Context) error {
	s.log.add("run:" + s.name)

	if s.runDelay > 0 {
		time.Sleep(s.runDelay)
	}
	if s.runBlock {
		s.state.Set(module.StatusStarting)
		<-ctx.Done()
		s.state.Set(module.StatusFailed)
		return ctx.Err()
	}
	if s.runErr != nil {
		s.state.Set(module.StatusFailed)
		return s.runErr
	}

	s.state.Set(module.StatusRunning)
	return nil
}

func (s *stub) Terminate(ctx context.Context) error {
	s.log.add("terminate:" + s.name)

	if s.termGate != nil {
		select {
		case <-s.termGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.state.Set(module.StatusStopped)
	return nil
}

// recoverable is a stub that supports one recovery attempt
type recoverable struct {
	*stub
	recoverErr error
}

func (r *recoverable) Recover(ctx context.Context) error {
	r.log.add("recover:" + r.name)
	if r.recoverErr != nil {
		return r.recoverErr
	}
	r.state.Set(module.StatusRunning)
	return nil
}

// flaky reports running from Run and fails shortly after
type flaky struct {
	*stub
	after time.Duration
}

func (f *flaky) Run(ctx context.Context) error {
	if err := f.stub.Run(ctx); err != nil {
		return err
	}
	go func() {
		time.Sleep(f.after)
		f.state.Set(module.StatusFailed)
	}()
	return nil
}

// detachable drops its state once detached
type detachable struct {
	*stub
	gone atomic.Bool
}

func (d *detachable) State() *module.State {
	if d.gone.Load() {
		return nil
	}
	return d.stub.State()
}

// detach hides the state and fires any pending wait on it
func (d *detachable) detach() {
	st := d.stub.State()
	d.gone.Store(true)
	st.Set(module.StatusStopped)
}

// stubPublisher satisfies transport.Publisher
type stubPublisher struct {
	*stub
}

func (p *stubPublisher) Publish(ctx context.Context, msg *message.Message) error {
	return nil
}

// stubSubscriber satisfies transport.Subscriber
type stubSubscriber struct {
	*stub
	deliveries chan *transport.Delivery
}

func (s *stubSubscriber) Deliveries() <-chan *transport.Delivery {
	return s.deliveries
}

// fakeMetrics counts monitor events
type fakeMetrics struct {
	mu          sync.Mutex
	recoveries  map[string]int
	escalations map[string]int
	exitCode    int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		recoveries:  make(map[string]int),
		escalations: make(map[string]int),
		exitCode:    -1,
	}
}

func (m *fakeMetrics) SetComponentStatus(role, name, status string) {}

func (m *fakeMetrics) IncRecoveries(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveries[name]++
}

func (m *fakeMetrics) IncEscalations(name string, exitCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations[name]++
}

func (m *fakeMetrics) RecordMessageHandled(route, status string, duration time.Duration) {}
func (m *fakeMetrics) RecordPoolStatus(idle, busy, stopped int)                          {}

func (m *fakeMetrics) SetExitCode(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitCode = code
}

func (m *fakeMetrics) recovered(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recoveries[name]
}

// syncBuffer is a bytes.Buffer safe for concurrent use
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var errBoom = errors.New("boom")

// fixture is a full set of stub components sharing one call log
type fixture struct {
	log        *callLog
	manager    *stub
	executor   *stub
	modules    []*stub
	publisher  *stubPublisher
	subscriber *stubSubscriber
}

func newFixture() *fixture {
	log := &callLog{}
	return &fixture{
		log:        log,
		manager:    newStub("manager", log),
		executor:   newStub("executor", log),
		modules:    []*stub{newStub("db", log), newStub("cache", log)},
		publisher:  &stubPublisher{stub: newStub("publisher", log)},
		subscriber: &stubSubscriber{stub: newStub("subscriber", log)},
	}
}

func (f *fixture) components() Components {
	mods := make([]module.Module, 0, len(f.modules))
	for _, m := range f.modules {
		mods = append(mods, m)
	}
	return Components{
		Manager:    f.manager,
		Executor:   f.executor,
		Modules:    mods,
		Publisher:  f.publisher,
		Subscriber: f.subscriber,
	}
}
