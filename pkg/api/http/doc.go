// Package http provides the worker's HTTP management API.
//
// The HTTP server exposes endpoints for:
//   - Health checks
//   - Component status snapshots
//   - Prometheus metrics
//   - Graceful termination requests
package http
