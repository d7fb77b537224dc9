// Package executor implements the worker's executor: a pool of goroutines
// that runs routers against incoming messages.
//
// The pool manages a fixed number of goroutines that:
//   - Receive deliveries from the subscriber
//   - Dispatch each message to the router registered for its route
//   - Acknowledge handled messages and reject failed ones
//   - Publish router replies through the optional publisher
//
// A periodic health check records worker counts. A pool that loses workers
// while running reports failed, and Recover restarts them.
package executor
