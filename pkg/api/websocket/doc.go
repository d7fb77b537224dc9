// Package websocket provides real-time status streaming via WebSocket.
//
// Clients connect to /ws/status and receive the worker's component
// snapshot whenever a component changes status.
package websocket
