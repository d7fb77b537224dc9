// Package ports defines the interfaces worker components depend on for
// cross-cutting adapters.
package ports

import "time"

// MetricsCollector records worker metrics
type MetricsCollector interface {
	SetComponentStatus(role, name, status string)
	IncRecoveries(name string)
	IncEscalations(name string, exitCode int)
	RecordMessageHandled(route, status string, duration time.Duration)
	RecordPoolStatus(idle, busy, stopped int)
	SetExitCode(code int)
}

// NopMetrics discards all metrics
type NopMetrics struct{}

func (NopMetrics) SetComponentStatus(role, name, status string)                     {}
func (NopMetrics) IncRecoveries(name string)                                        {}
func (NopMetrics) IncEscalations(name string, exitCode int)                         {}
func (NopMetrics) RecordMessageHandled(route, status string, duration time.Duration) {}
func (NopMetrics) RecordPoolStatus(idle, busy, stopped int)                         {}
func (NopMetrics) SetExitCode(code int)                                             {}
