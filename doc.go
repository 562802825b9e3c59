// Package taskpoll polls server-side asynchronous tasks over HTTP.
//
// A task backend exposes a status endpoint that answers with a JSON payload
// such as {"status": "PROGRESS", "result": {"current": 5, "total": 10}}.
// taskpoll repeatedly queries that endpoint with a linear backoff until the
// task reaches a terminal status, relaying intermediate payloads to a
// callback.
//
// # Quick Start
//
// Poll a task until it finishes:
//
//	p, _ := taskpoll.New()
//	result, err := p.PollTask(ctx, "https://example.com/tasks/abc/", false,
//	    func(payload taskpoll.Payload) {
//	        if prog, err := payload.Progress(); err == nil {
//	            fmt.Printf("%.0f%%\n", prog.Percent())
//	        }
//	    })
//
// Start a task and wait for its result:
//
//	result, err := p.PerformTask(ctx, "https://example.com/tasks/start/")
//
// # Polling Contract
//
// Before attempt n the poller waits min(n*100ms, 1s). With the timeout
// enabled, the 31st attempt fails with [ErrTimeout] instead of issuing a
// request. Network failures, non-2xx responses and malformed payloads are
// logged and retried. SUCCESS returns the raw "result" value; FAILURE and
// REVOKED return a [*TaskError] whose message is the server "error" value, or
// "unknown server error" when there is none.
//
// # Monitor
//
// [Monitor] polls many tasks on a bounded worker pool and serves their state:
//
//	task, _ := taskpoll.NewTask("import", "https://example.com/tasks/abc/",
//	    taskpoll.WithoutTimeout(),
//	)
//	m, _ := taskpoll.NewMonitor(taskpoll.WithTask(task), taskpoll.WithPort(9090))
//	m.Start(ctx) // blocks until ctx is cancelled
//
// # Architecture
//
// taskpoll consists of several packages:
//
//   - internal/poller: HTTP client and bounded worker pool
//   - internal/store: In-memory task state storage with pub/sub
//   - internal/server: JSON API, Server-Sent Events and Prometheus metrics
//   - page: progress rendering and task wiring for HTML pages
//   - vote: optimistic yes/no vote widgets over HTML forms
//
// The internal packages are not part of the public API and may change
// without notice.
package taskpoll
