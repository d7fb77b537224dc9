package worker

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/patchwork/pkg/module"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// newMonitorWorker returns a worker whose control channel tests can drain
func newMonitorWorker(t *testing.T) (*Worker, *fakeMetrics, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	metrics := newFakeMetrics()
	w := NewWithComponents(Components{}, zap.New(core), WithMetrics(metrics))
	return w, metrics, logs
}

// terminations drains and returns the exit codes posted to the loop
func terminations(w *Worker) []int {
	var codes []int
	for {
		select {
		case ev := <-w.control:
			if te, ok := ev.(terminateEvent); ok {
				codes = append(codes, te.code)
			}
		default:
			return codes
		}
	}
}

func runningStub(name string) *stub {
	s := newStub(name, &callLog{})
	s.state.Set(module.StatusRunning)
	return s
}

func newTestMonitor(w *Worker) *monitor {
	return &monitor{
		w:        w,
		registry: newRegistry(),
		wakes:    make(chan handle),
	}
}

func TestMonitor_RunningWakeRearms(t *testing.T) {
	w, metrics, logs := newMonitorWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newTestMonitor(w)
	s := runningStub("db")
	h := m.registry.add(module.RoleModule, s)

	escalated, err := m.handle(ctx, h)
	require.NoError(t, err)
	assert.False(t, escalated)
	assert.Equal(t, 1, metrics.recovered("db"))
	assert.Equal(t, 1, logs.FilterMessage("recovered").Len())
	assert.Empty(t, terminations(w))

	// the fired wait's slot is released and a fresh one is taken
	_, _, ok := m.registry.get(h)
	assert.False(t, ok)
	assert.Equal(t, 1, m.registry.len())

	// the re-armed wait fires on the next transition
	s.state.Set(module.StatusFailed)
	select {
	case got := <-m.wakes:
		assert.NotEqual(t, h, got)
		mod, role, ok := m.registry.get(got)
		require.True(t, ok)
		assert.Same(t, s, mod)
		assert.Equal(t, module.RoleModule, role)
	case <-time.After(waitFor):
		t.Fatal("component was not re-armed")
	}

	cancel()
	m.wg.Wait()
}

func TestMonitor_DownWithoutRecovererEscalatesOnce(t *testing.T) {
	w, _, logs := newMonitorWorker(t)
	ctx, cancel := context.WithCancel(context.Background())

	a := runningStub("a")
	b := runningStub("b")
	done := make(chan error, 1)
	go func() {
		done <- w.monitorSubmodules(ctx, []entry{
			{module.RoleModule, a},
			{module.RoleModule, b},
		})
	}()

	a.state.Set(module.StatusFailed)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("unexpectedly terminated").Len() == 1
	}, waitFor, tick)

	// later failures are not escalated again
	b.state.Set(module.StatusFailed)
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []int{ExitFailure}, terminations(w))
}

func TestMonitor_RecoverySucceeds(t *testing.T) {
	w, metrics, _ := newMonitorWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newTestMonitor(w)
	r := &recoverable{stub: newStub("redis", &callLog{})}
	r.state.Set(module.StatusFailed)
	h := m.registry.add(module.RoleSubscriber, r)

	escalated, err := m.handle(ctx, h)
	require.NoError(t, err)
	assert.False(t, escalated)
	assert.Equal(t, 1, r.log.count("recover:redis"))
	assert.Equal(t, 1, metrics.recovered("redis"))
	assert.Empty(t, terminations(w))

	cancel()
	m.wg.Wait()
}

func TestMonitor_RecoveryFails(t *testing.T) {
	w, metrics, logs := newMonitorWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newTestMonitor(w)
	r := &recoverable{stub: newStub("pg", &callLog{}), recoverErr: errBoom}
	r.state.Set(module.StatusFailed)
	h := m.registry.add(module.RoleModule, r)

	escalated, err := m.handle(ctx, h)
	require.NoError(t, err)
	assert.True(t, escalated)
	assert.Equal(t, 1, r.log.count("recover:pg"), "a single recovery attempt")
	assert.Equal(t, 0, metrics.recovered("pg"))
	assert.Equal(t, 1, logs.FilterMessage("recovery failed").Len())
	assert.Equal(t, []int{ExitFailure}, terminations(w))
}

func TestMonitor_LostComponent(t *testing.T) {
	w, _, logs := newMonitorWorker(t)

	m := newTestMonitor(w)
	h := m.registry.add(module.RoleModule, runningStub("gone"))
	m.registry.release(h)

	escalated, err := m.handle(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, escalated)
	assert.Equal(t, 1, logs.FilterMessage("monitored component was lost").Len())
	assert.Equal(t, []int{ExitModuleLost}, terminations(w))
}

func TestMonitor_AlreadyDownWhenWatched(t *testing.T) {
	w, _, logs := newMonitorWorker(t)
	ctx, cancel := context.WithCancel(context.Background())

	s := runningStub("db")
	s.state.Set(module.StatusFailed)

	done := make(chan error, 1)
	go func() {
		done <- w.monitorSubmodules(ctx, []entry{{module.RoleModule, s}})
	}()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("unexpectedly terminated").Len() == 1
	}, waitFor, tick)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []int{ExitFailure}, terminations(w))
}

func TestMonitor_ComponentDropsState(t *testing.T) {
	w, _, logs := newMonitorWorker(t)
	ctx, cancel := context.WithCancel(context.Background())

	d := &detachable{stub: runningStub("cache")}
	done := make(chan error, 1)
	go func() {
		done <- w.monitorSubmodules(ctx, []entry{
			{module.RoleModule, d},
			{module.RoleModule, runningStub("db")},
		})
	}()

	d.detach()
	require.Eventually(t, func() bool {
		return logs.FilterMessage("monitored component was lost").Len() == 1
	}, waitFor, tick)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []int{ExitModuleLost}, terminations(w))
}

func TestMonitor_CancelledDuringRecovery(t *testing.T) {
	w, _, _ := newMonitorWorker(t)
	ctx, cancel := context.WithCancel(context.Background())

	m := newTestMonitor(w)
	r := &blockingRecoverer{stub: newStub("slow", nil), entered: make(chan struct{})}
	r.state.Set(module.StatusFailed)
	h := m.registry.add(module.RoleModule, r)

	done := make(chan error, 1)
	go func() {
		_, err := m.handle(ctx, h)
		done <- err
	}()

	<-r.entered
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, terminations(w), "cancellation is not a failure")
}

// blockingRecoverer blocks in Recover until its context is done
type blockingRecoverer struct {
	*stub
	entered chan struct{}
}

func (r *blockingRecoverer) Recover(ctx context.Context) error {
	close(r.entered)
	<-ctx.Done()
	return ctx.Err()
}

func TestMonitor_CancelReturnsPromptly(t *testing.T) {
	w, _, _ := newMonitorWorker(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- w.monitorSubmodules(ctx, []entry{{module.RoleManager, runningStub("manager")}})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("monitor did not return on cancel")
	}
	assert.Empty(t, terminations(w))
}
