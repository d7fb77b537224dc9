package executor

import (
	"context"
	"time"

	"github.com/aescanero/patchwork/pkg/module"
	"go.uber.org/zap"
)

// Census counts pool workers by status
type Census struct {
	Idle    int
	Busy    int
	Stopped int
}

// Total returns the number of workers counted
func (c Census) Total() int {
	return c.Idle + c.Busy + c.Stopped
}

// Census returns the current worker counts
func (p *Pool) Census() Census {
	var c Census
	for _, status := range p.GetStatus() {
		switch status {
		case WorkerStatusIdle:
			c.Idle++
		case WorkerStatusBusy:
			c.Busy++
		case WorkerStatusStopped:
			c.Stopped++
		}
	}
	return c
}

// watchHealth records pool metrics every interval until ctx is done
func (p *Pool) watchHealth(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkHealth()
		}
	}
}

// checkHealth records worker counts. A running pool that lost workers is
// marked failed.
func (p *Pool) checkHealth() {
	c := p.Census()
	p.metrics.RecordPoolStatus(c.Idle, c.Busy, c.Stopped)

	p.logger.Debug("pool health",
		zap.Int("idle", c.Idle),
		zap.Int("busy", c.Busy),
		zap.Int("stopped", c.Stopped))

	if c.Total() > 0 && c.Busy == c.Total() {
		p.logger.Warn("all pool workers busy", zap.Int("workers", c.Total()))
	}

	if c.Stopped > 0 && p.state.IsRunning() {
		p.logger.Error("pool workers exited",
			zap.Int("stopped", c.Stopped),
			zap.Int("workers", c.Total()))
		p.state.Set(module.StatusFailed)
	}
}
