package worker

import (
	"context"
	"sync"

	"github.com/aescanero/patchwork/internal/logging"
	"github.com/aescanero/patchwork/pkg/module"
	"go.uber.org/zap"
)

// fired is an already closed channel; arming with it wakes immediately
var fired = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// monitor watches component states and reacts to transitions
type monitor struct {
	w        *Worker
	registry *registry
	wakes    chan handle
	wg       sync.WaitGroup
}

// monitorSubmodules watches the given components until ctx is cancelled.
//
// Each component has at most one pending wait and one registry slot. The slot
// is released when the wait fires and a new one is taken on re-arm. On a wake
// the component is either re-armed (running), recovered once, or escalated to
// termination.
func (w *Worker) monitorSubmodules(ctx context.Context, entries []entry) error {
	m := &monitor{
		w:        w,
		registry: newRegistry(),
		wakes:    make(chan handle),
	}

	for _, e := range entries {
		m.watch(ctx, e.role, e.mod)
	}

	return m.run(ctx)
}

// run handles wakes one at a time until ctx is done or the worker escalates
func (m *monitor) run(ctx context.Context) error {
	defer m.wg.Wait()

	w := m.w
	w.logger.Debug("monitoring components", zap.Int("count", m.registry.len()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case h := <-m.wakes:
			escalated, err := m.handle(ctx, h)
			if err != nil {
				return err
			}
			if escalated {
				// termination is underway; stop cancels us shortly
				<-ctx.Done()
				return ctx.Err()
			}
		}
	}
}

// watch registers a component and arms a wait for its next transition. The
// wait is taken before the status is read, so a component that is already
// down or has no state wakes at once.
func (m *monitor) watch(ctx context.Context, role module.Role, mod module.Module) {
	h := m.registry.add(role, mod)

	st := mod.State()
	if st == nil {
		m.arm(ctx, h, fired)
		return
	}

	changed := st.Wait()
	if !st.IsRunning() {
		changed = fired
	}
	m.arm(ctx, h, changed)
}

// arm waits in the background for the next transition of h
func (m *monitor) arm(ctx context.Context, h handle, changed <-chan struct{}) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		select {
		case <-changed:
		case <-ctx.Done():
			return
		}

		select {
		case m.wakes <- h:
		case <-ctx.Done():
		}
	}()
}

// handle reacts to a single wake. It reports whether the worker was asked
// to terminate.
func (m *monitor) handle(ctx context.Context, h handle) (bool, error) {
	w := m.w

	mod, role, ok := m.registry.get(h)
	if !ok {
		w.logger.Error("monitored component was lost")
		w.metrics.IncEscalations("unknown", ExitModuleLost)
		w.TerminateWorker(ExitModuleLost)
		return true, nil
	}
	m.registry.release(h)

	name := mod.Name()
	log := logging.Component(w.logger, string(role), name)

	st := mod.State()
	if st == nil {
		log.Error("monitored component was lost")
		w.metrics.IncEscalations(name, ExitModuleLost)
		w.TerminateWorker(ExitModuleLost)
		return true, nil
	}

	status := st.Status()
	w.metrics.SetComponentStatus(string(role), name, string(status))

	if status == module.StatusRunning {
		log.Info("recovered")
		w.metrics.IncRecoveries(name)
		m.watch(ctx, role, mod)
		return false, nil
	}

	log.Error("unexpectedly terminated", zap.String("status", string(status)))

	if rec, ok := mod.(module.Recoverer); ok {
		log.Info("attempting recovery")
		err := rec.Recover(ctx)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		if err == nil && st.IsRunning() {
			log.Info("recovered")
			w.metrics.IncRecoveries(name)
			w.metrics.SetComponentStatus(string(role), name, string(module.StatusRunning))
			m.watch(ctx, role, mod)
			return false, nil
		}

		if err != nil {
			log.Error("recovery failed", zap.Error(err))
		} else {
			log.Error("recovery failed", zap.String("status", string(st.Status())))
		}
	}

	w.metrics.IncEscalations(name, ExitFailure)
	w.TerminateWorker(ExitFailure)
	return true, nil
}
