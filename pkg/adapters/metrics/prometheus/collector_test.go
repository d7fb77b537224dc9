package prometheus

import (
	"testing"
	"time"

	"github.com/aescanero/patchwork/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var _ ports.MetricsCollector = (*Collector)(nil)

func TestCollector_ComponentStatus(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.SetComponentStatus("module", "db", "running")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.componentStatus.WithLabelValues("module", "db", "running")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.componentStatus.WithLabelValues("module", "db", "failed")))

	c.SetComponentStatus("module", "db", "failed")
	assert.Equal(t, 0.0, testutil.ToFloat64(c.componentStatus.WithLabelValues("module", "db", "running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.componentStatus.WithLabelValues("module", "db", "failed")))
}

func TestCollector_Counters(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.IncRecoveries("db")
	c.IncRecoveries("db")
	c.IncEscalations("db", 1)
	c.RecordMessageHandled("echo", "ok", 10*time.Millisecond)
	c.RecordPoolStatus(2, 1, 0)
	c.SetExitCode(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.recoveries.WithLabelValues("db")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.escalations.WithLabelValues("db", "1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messagesHandled.WithLabelValues("echo", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.workerPoolIdle))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.workerPoolBusy))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.exitCode))
}
