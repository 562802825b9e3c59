// Package server provides the HTTP API for the taskpoll monitor.
//
// This package is internal to taskpoll and handles all HTTP concerns:
//
//   - REST API: JSON endpoints at "/api/tasks" and "/api/tasks/{name}"
//   - Server-Sent Events: Real-time task updates at "/api/sse"
//   - Metrics: Prometheus exposition at "/metrics"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the taskpoll library should not need to interact with this
// package directly. The server is started by [taskpoll.Monitor.Start].
package server
