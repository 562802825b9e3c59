package taskpoll

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// monitorConfig holds mutable state during Monitor construction.
type monitorConfig struct {
	tasks          []Task
	port           int
	maxConcurrency int
	logger         *slog.Logger
	poller         *Poller
	stateCallbacks []func(TaskState)
	registry       *prometheus.Registry
}

// MonitorOption is a function that configures a [Monitor] during construction.
//
// Built-in options: [WithTask], [WithTasks], [WithPort],
// [WithMaxConcurrency], [WithMonitorLogger], [WithPoller],
// [WithStateCallback], [WithRegistry].
type MonitorOption func(*monitorConfig) error

// WithTask adds a single [Task] to the monitor.
//
// Can be called multiple times. At least one task must be configured for
// [NewMonitor] to succeed.
func WithTask(t Task) MonitorOption {
	return func(cfg *monitorConfig) error {
		cfg.tasks = append(cfg.tasks, t)
		return nil
	}
}

// WithTasks adds multiple [Task] values to the monitor.
// Equivalent to calling [WithTask] multiple times.
func WithTasks(tasks ...Task) MonitorOption {
	return func(cfg *monitorConfig) error {
		cfg.tasks = append(cfg.tasks, tasks...)
		return nil
	}
}

// WithPort sets the HTTP port for the monitor API.
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) MonitorOption {
	return func(cfg *monitorConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency sets how many tasks are polled at the same time.
//
// Tasks beyond the limit wait for a running task to finish. Defaults to 10.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) MonitorOption {
	return func(cfg *monitorConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithMonitorLogger sets a custom [slog.Logger] for the monitor.
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(cfg *monitorConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithPoller sets the [Poller] used to poll every task.
//
// If not specified, the monitor creates one with default options, its own
// logger and metrics registered on the monitor registry. A supplied poller
// keeps whatever metrics it was built with; build it with
// WithMetrics(MustNewMetrics(reg)) on the registry passed to [WithRegistry]
// to expose them at /metrics.
//
// Returns an error if p is nil.
func WithPoller(p *Poller) MonitorOption {
	return func(cfg *monitorConfig) error {
		if p == nil {
			return errors.New("poller cannot be nil")
		}
		cfg.poller = p
		return nil
	}
}

// WithStateCallback registers a function called on every task state change:
// each progress payload and the final outcome.
//
// Callbacks run one at a time, in registration order, after the state has
// been stored. They must be non-blocking; a slow callback delays every task.
// Panics are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithStateCallback(cb func(TaskState)) MonitorOption {
	return func(cfg *monitorConfig) error {
		if cb == nil {
			return nil
		}
		cfg.stateCallbacks = append(cfg.stateCallbacks, cb)
		return nil
	}
}

// WithRegistry sets the Prometheus registry served at /metrics.
// If not specified, the monitor uses a fresh registry.
//
// Returns an error if reg is nil.
func WithRegistry(reg *prometheus.Registry) MonitorOption {
	return func(cfg *monitorConfig) error {
		if reg == nil {
			return errors.New("registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}
