package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/aescanero/patchwork/internal/logging"
	"github.com/aescanero/patchwork/pkg/module"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// start brings components up in dependency order and launches the monitor.
// It must run on a loop-derived context.
func (w *Worker) start(ctx context.Context) error {
	w.assertLoop(ctx)
	c := w.components

	if err := w.runComponent(ctx, module.RoleManager, c.Manager); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range c.Modules {
		m := m
		g.Go(func() error {
			return w.runComponent(gctx, module.RoleModule, m)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if c.Publisher != nil {
		if err := w.runComponent(ctx, module.RolePublisher, c.Publisher); err != nil {
			return err
		}
	}

	if err := w.runComponent(ctx, module.RoleSubscriber, c.Subscriber); err != nil {
		return err
	}

	// executor last so it never consumes before its dependencies are up
	if err := w.runComponent(ctx, module.RoleExecutor, c.Executor); err != nil {
		return err
	}

	// the monitor outlives the start task
	entries := w.entries()
	mon := w.tasks.spawn(context.WithoutCancel(ctx), "monitor", func(ctx context.Context) error {
		return w.monitorSubmodules(ctx, entries)
	})

	w.mu.Lock()
	w.monitor = mon
	w.mu.Unlock()

	return nil
}

// runComponent starts a single component and checks it reports running
func (w *Worker) runComponent(ctx context.Context, role module.Role, m module.Module) error {
	if m == nil {
		return fmt.Errorf("no %s configured", role)
	}

	log := logging.Component(w.logger, string(role), m.Name())
	log.Info("starting")

	if err := m.Run(ctx); err != nil {
		w.metrics.SetComponentStatus(string(role), m.Name(), string(module.StatusFailed))
		return fmt.Errorf("failed to start %s %s: %w", role, m.Name(), err)
	}

	if status, _ := componentStatus(m); status != module.StatusRunning {
		w.metrics.SetComponentStatus(string(role), m.Name(), string(status))
		return fmt.Errorf("failed to start %s %s: status is %s", role, m.Name(), status)
	}

	w.metrics.SetComponentStatus(string(role), m.Name(), string(module.StatusRunning))
	log.Info("started")
	return nil
}

// stop cancels the monitor and terminates components in reverse order.
// Errors are logged and never abort the sequence.
func (w *Worker) stop(ctx context.Context) {
	w.assertLoop(ctx)
	w.logger.Info("stopping worker")

	w.mu.Lock()
	mon := w.monitor
	w.monitor = nil
	w.mu.Unlock()

	if mon != nil {
		mon.cancel()
		if err := mon.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("monitor exited with error", zap.Error(err))
		}
	}

	c := w.components

	// executor first so in-flight handlers finish before transports go away
	w.terminateComponent(ctx, module.RoleExecutor, c.Executor)
	w.terminateComponent(ctx, module.RoleSubscriber, c.Subscriber)
	if c.Publisher != nil {
		w.terminateComponent(ctx, module.RolePublisher, c.Publisher)
	}

	var g errgroup.Group
	for _, m := range c.Modules {
		m := m
		g.Go(func() error {
			w.terminateComponent(ctx, module.RoleModule, m)
			return nil
		})
	}
	_ = g.Wait()

	w.terminateComponent(ctx, module.RoleManager, c.Manager)
}

// terminateComponent stops a single component, logging any failure
func (w *Worker) terminateComponent(ctx context.Context, role module.Role, m module.Module) {
	if m == nil {
		return
	}

	log := logging.Component(w.logger, string(role), m.Name())
	log.Info("stopping")

	if err := m.Terminate(ctx); err != nil {
		log.Error("failed to stop", zap.Error(err))
	} else {
		log.Info("stopped")
	}

	status, _ := componentStatus(m)
	w.metrics.SetComponentStatus(string(role), m.Name(), string(status))
}
