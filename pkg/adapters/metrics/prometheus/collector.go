package prometheus

import (
	"strconv"
	"time"

	"github.com/aescanero/patchwork/pkg/module"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var componentStatuses = []module.Status{
	module.StatusStopped,
	module.StatusStarting,
	module.StatusRunning,
	module.StatusStopping,
	module.StatusFailed,
}

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	componentStatus   *prometheus.GaugeVec
	recoveries        *prometheus.CounterVec
	escalations       *prometheus.CounterVec
	messagesHandled   *prometheus.CounterVec
	handlerDuration   *prometheus.HistogramVec
	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
	exitCode          prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector registered on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		componentStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "patchwork_component_status",
				Help: "Component lifecycle status (1 for the current status)",
			},
			[]string{"role", "component", "status"},
		),
		recoveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patchwork_monitor_recoveries_total",
				Help: "Total number of components the monitor saw recover",
			},
			[]string{"component"},
		),
		escalations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patchwork_monitor_escalations_total",
				Help: "Total number of component failures escalated to worker termination",
			},
			[]string{"component", "exit_code"},
		),
		messagesHandled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patchwork_messages_handled_total",
				Help: "Total number of messages handled by the executor",
			},
			[]string{"route", "status"},
		),
		handlerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "patchwork_handler_duration_seconds",
				Help:    "Message handler duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"route"},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "patchwork_executor_pool_idle",
				Help: "Number of idle executor workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "patchwork_executor_pool_busy",
				Help: "Number of busy executor workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "patchwork_executor_pool_stopped",
				Help: "Number of stopped executor workers",
			},
		),
		exitCode: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "patchwork_worker_exit_code",
				Help: "Exit code recorded by the worker",
			},
		),
	}
}

// SetComponentStatus sets the status gauge of a component
func (c *Collector) SetComponentStatus(role, name, status string) {
	for _, s := range componentStatuses {
		value := 0.0
		if string(s) == status {
			value = 1
		}
		c.componentStatus.WithLabelValues(role, name, string(s)).Set(value)
	}
}

// IncRecoveries increments the recovery count of a component
func (c *Collector) IncRecoveries(name string) {
	c.recoveries.WithLabelValues(name).Inc()
}

// IncEscalations increments the escalation count of a component
func (c *Collector) IncEscalations(name string, exitCode int) {
	c.escalations.WithLabelValues(name, strconv.Itoa(exitCode)).Inc()
}

// RecordMessageHandled records a handled message
func (c *Collector) RecordMessageHandled(route, status string, duration time.Duration) {
	c.messagesHandled.WithLabelValues(route, status).Inc()
	c.handlerDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordPoolStatus records executor pool status
func (c *Collector) RecordPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}

// SetExitCode records the worker exit code
func (c *Collector) SetExitCode(code int) {
	c.exitCode.Set(float64(code))
}
