// Package worker implements the Patchwork worker: the process-level
// orchestrator that owns every component's lifecycle.
//
// The worker runs a single control loop that:
//   - Starts components in a fixed order (manager, modules, publisher,
//     subscriber, executor)
//   - Monitors running components and escalates unrecoverable failures
//   - Translates OS signals into control events
//   - Stops components in reverse dependency order and reports the exit code
//
// Exit codes: 0 clean shutdown, 1 start failure or unrecoverable component,
// 2 a monitored component was lost.
package worker
