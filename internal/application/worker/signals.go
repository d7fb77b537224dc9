package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// handledSignals are the OS signals converted into control events
var handledSignals = []os.Signal{syscall.SIGUSR1, syscall.SIGTERM, syscall.SIGINT}

// notifySignals subscribes to handled signals; release undoes it
func notifySignals() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, len(handledSignals))
	signal.Notify(ch, handledSignals...)
	return ch, func() {
		signal.Stop(ch)
	}
}

// handleSignal runs on the loop goroutine
func (w *Worker) handleSignal(ctx context.Context, sig os.Signal) {
	w.assertLoop(ctx)

	switch sig {
	case syscall.SIGUSR1:
		if err := w.writeStats(w.stdout); err != nil {
			w.logger.Warn("failed to write stats", zap.Error(err))
		}
	case syscall.SIGTERM, syscall.SIGINT:
		w.logger.Info("received signal", zap.String("signal", sig.String()))
		w.terminate(ctx, ExitOK)
	default:
		w.logger.Debug("ignoring signal", zap.String("signal", sig.String()))
	}
}

// forceKill restores the default SIGTERM disposition and re-delivers it
func forceKill() {
	signal.Reset(syscall.SIGTERM)
	_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
}
