// Package module defines the lifecycle contract shared by every worker component.
//
// A component (manager, executor, publisher, subscriber or a user module) exposes:
//   - Run: returns once the component is running, or an error
//   - Terminate: best-effort graceful stop
//   - State: an observable lifecycle value the worker monitor waits on
//
// Components that can attempt to repair themselves after going down implement Recoverer.
package module
