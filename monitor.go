package taskpoll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/taskpoll/internal/poller"
	"github.com/jpalmerr/taskpoll/internal/server"
	"github.com/jpalmerr/taskpoll/internal/store"
)

const (
	defaultPort           = 8080
	defaultMaxConcurrency = 10
)

// TaskState is a snapshot of a monitored task, passed to state callbacks.
type TaskState struct {
	// Name is the task name.
	Name string

	// URL is the poll URL.
	URL string

	// Status is the last received status. Empty until the first payload.
	Status Status

	// Labels is a copy of the task labels.
	Labels map[string]string

	// Progress is set for PROGRESS payloads.
	Progress *Progress

	// Result is the SUCCESS result once the task is done.
	Result json.RawMessage

	// Err is the final error: a [*TaskError], [ErrTimeout], or a context error.
	Err error

	// Done is true for the final state of the task.
	Done bool

	// UpdatedAt is when the state was recorded.
	UpdatedAt time.Time
}

// Monitor polls a set of tasks concurrently and serves their state over HTTP.
//
// The typical lifecycle is:
//
//	m, err := taskpoll.NewMonitor(taskpoll.WithTask(task))
//	if err != nil {
//	    slog.Error("failed to create monitor", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	m.Start(ctx) // blocks until context cancelled
//
// Every task is polled once, until it reaches a final outcome. The API keeps
// serving the final states until the context is cancelled.
type Monitor struct {
	tasks          []Task
	port           int
	maxConcurrency int
	logger         *slog.Logger
	poller         *Poller
	ownsPoller     bool
	stateCallbacks []func(TaskState)
	registry       *prometheus.Registry

	// serialises store writes and callbacks across pool workers
	emitMu sync.Mutex
}

// NewMonitor creates a [Monitor] with the given options.
//
// At least one task must be configured via [WithTask] or [WithTasks].
// Defaults:
//   - Port: 8080
//   - Max concurrency: 10
//
// Returns an error if no tasks are configured, task names are not unique, or
// any option is invalid.
func NewMonitor(opts ...MonitorOption) (*Monitor, error) {
	cfg := &monitorConfig{
		tasks:          []Task{},
		port:           defaultPort,
		maxConcurrency: defaultMaxConcurrency,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.tasks) == 0 {
		return nil, errors.New("at least one task is required")
	}

	// task names key the state store
	seen := make(map[string]bool, len(cfg.tasks))
	for _, t := range cfg.tasks {
		if seen[t.name] {
			return nil, fmt.Errorf("duplicate task name: %q", t.name)
		}
		seen[t.name] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	p := cfg.poller
	ownsPoller := false
	if p == nil {
		var err error
		p, err = New(WithLogger(logger), WithMetrics(MustNewMetrics(registry)))
		if err != nil {
			return nil, fmt.Errorf("failed to create poller: %w", err)
		}
		ownsPoller = true
	}

	return &Monitor{
		tasks:          cfg.tasks,
		port:           cfg.port,
		maxConcurrency: cfg.maxConcurrency,
		logger:         logger,
		poller:         p,
		ownsPoller:     ownsPoller,
		stateCallbacks: cfg.stateCallbacks,
		registry:       registry,
	}, nil
}

// Start polls every task and serves the monitor API.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - Tasks are polled on a worker pool bounded by the max concurrency
//   - Every progress payload and final outcome is stored and passed to the
//     state callbacks
//   - The API is available at http://localhost:<port>/api/tasks
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails
// to start.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("task monitor starting", "task_count", len(m.tasks))
	m.logger.Info("api available", "url", fmt.Sprintf("http://localhost:%d/api/tasks", m.port))

	if ctx.Err() != nil {
		return nil
	}

	st := store.NewMemoryStore()
	for _, t := range m.tasks {
		st.Update(toStoreState(TaskState{
			Name:      t.name,
			URL:       t.url,
			Labels:    copyMap(t.labels),
			UpdatedAt: time.Now(),
		}))
	}

	pool := poller.NewPool(m.jobs(st), m.maxConcurrency, m.logger)
	pool.Start(ctx)

	byName := make(map[string]Task, len(m.tasks))
	for _, t := range m.tasks {
		byName[t.name] = t
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for outcome := range pool.Results() {
			t := byName[outcome.Key]
			m.emit(st, finalState(t, outcome))

			logAttrs := []any{
				"task", t.name,
				"url", t.url,
				"duration_ms", outcome.Duration.Milliseconds(),
			}
			if outcome.Err != nil {
				m.logger.Warn("task finished with error", append(logAttrs, "error", outcome.Err.Error())...)
			} else {
				m.logger.Info("task finished", logAttrs...)
			}
		}
	}()

	cleanup := func() {
		pool.Stop()
		wg.Wait()
		if m.ownsPoller {
			m.poller.Close()
		}
	}

	metrics := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	httpServer := server.NewServer(st, m.port, metrics, m.logger)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	m.logger.Info("task monitor stopped")
	return nil
}

// jobs builds one pool job per task.
func (m *Monitor) jobs(st store.Store) []poller.Job {
	jobs := make([]poller.Job, len(m.tasks))
	for i, t := range m.tasks {
		jobs[i] = poller.Job{
			Key: t.name,
			Run: func(ctx context.Context) (json.RawMessage, error) {
				return m.poller.PollTask(ctx, t.url, t.disableTimeout, func(p Payload) {
					m.emit(st, progressState(t, p))
				})
			},
		}
	}
	return jobs
}

// emit stores a state, then invokes the state callbacks.
func (m *Monitor) emit(st store.Store, state TaskState) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	st.Update(toStoreState(state))
	for _, cb := range m.stateCallbacks {
		invokeCallbackSafe(cb, state, m.logger)
	}
}

// Tasks returns a copy of the configured tasks.
func (m *Monitor) Tasks() []Task {
	cp := make([]Task, len(m.tasks))
	copy(cp, m.tasks)
	return cp
}

// Port returns the configured HTTP port.
func (m *Monitor) Port() int {
	return m.port
}

// progressState builds the state for a non-terminal payload.
func progressState(t Task, p Payload) TaskState {
	state := TaskState{
		Name:      t.name,
		URL:       t.url,
		Status:    p.Status,
		Labels:    copyMap(t.labels),
		UpdatedAt: time.Now(),
	}
	if prog, err := p.Progress(); err == nil {
		state.Progress = &prog
	}
	return state
}

// finalState builds the state for a pool outcome.
func finalState(t Task, o poller.Outcome) TaskState {
	state := TaskState{
		Name:      t.name,
		URL:       t.url,
		Labels:    copyMap(t.labels),
		Result:    o.Result,
		Err:       o.Err,
		Done:      true,
		UpdatedAt: time.Now(),
	}

	var taskErr *TaskError
	switch {
	case o.Err == nil:
		state.Status = StatusSuccess
	case errors.As(o.Err, &taskErr):
		state.Status = taskErr.Status
	}
	return state
}

// toStoreState converts a public state to its storage form.
func toStoreState(s TaskState) store.TaskState {
	out := store.TaskState{
		Name:      s.Name,
		URL:       s.URL,
		Status:    s.Status.String(),
		Labels:    copyMap(s.Labels),
		Result:    s.Result,
		Done:      s.Done,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Err != nil {
		msg := s.Err.Error()
		out.Error = &msg
	}
	if s.Progress != nil {
		running := make([]string, len(s.Progress.Running))
		for i, item := range s.Progress.Running {
			running[i] = item.String()
		}
		out.Progress = &store.Progress{
			Current: s.Progress.Current,
			Total:   s.Progress.Total,
			Percent: s.Progress.Percent(),
			Running: running,
		}
	}
	return out
}

// invokeCallbackSafe calls a state callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(TaskState), state TaskState, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("state callback panicked",
				"panic", r,
				"task", state.Name,
			)
		}
	}()
	cb(state)
}
