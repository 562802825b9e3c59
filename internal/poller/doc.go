// Package poller provides the HTTP and concurrency plumbing for taskpoll.
//
// This package is internal to taskpoll. It has no knowledge of the task status
// payload format; it moves bytes and runs jobs.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with per-request timeouts and size limits
//   - [Pool]: bounded worker pool running a fixed set of jobs once
//   - [Job] and [Outcome]: unit of work and its final result
//
// Users of the taskpoll library should not need to interact with this
// package directly. Configuration is done through the main taskpoll package.
package poller
