package taskpoll

import (
	"errors"
	"net/url"
)

// Task is a named poll target run by a [Monitor].
//
// Task is immutable after creation via [NewTask]. Getters return copies of
// mutable data.
type Task struct {
	name           string
	url            string
	disableTimeout bool
	labels         map[string]string
}

// Name returns the task's display name.
// The name identifies the task in the monitor API and logs.
func (t Task) Name() string {
	return t.name
}

// URL returns the task's poll URL.
func (t Task) URL() string {
	return t.url
}

// TimeoutDisabled reports whether the task is polled without an attempt budget.
func (t Task) TimeoutDisabled() bool {
	return t.disableTimeout
}

// Labels returns a copy of the task's labels.
// Returns nil if no labels are set.
func (t Task) Labels() map[string]string {
	return copyMap(t.labels)
}

// taskConfig holds mutable state during task construction.
type taskConfig struct {
	labels         map[string]string
	disableTimeout bool
}

// TaskOption is a function that configures a [Task] during construction.
//
// Built-in options: [WithLabels], [WithoutTimeout].
type TaskOption func(*taskConfig) error

// WithLabels adds metadata labels to the task.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	task, err := taskpoll.NewTask("import", pollURL,
//	    taskpoll.WithLabels("package", "mesecons"),
//	)
//
// Returns an error if an odd number of arguments is provided.
func WithLabels(keyValues ...string) TaskOption {
	return func(cfg *taskConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithLabels requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.labels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithoutTimeout polls the task until it reaches a terminal status, however
// many attempts that takes.
func WithoutTimeout() TaskOption {
	return func(cfg *taskConfig) error {
		cfg.disableTimeout = true
		return nil
	}
}

// NewTask creates a [Task] with the given name, poll URL, and options.
//
// The rawURL parameter must be a valid URL with a scheme (http:// or https://).
//
// Returns an error if the name is empty or the URL is invalid.
func NewTask(name, rawURL string, opts ...TaskOption) (Task, error) {
	if name == "" {
		return Task{}, errors.New("task name cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Task{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme == "" {
		return Task{}, errors.New("URL must have a scheme (http:// or https://)")
	}

	cfg := &taskConfig{
		labels: make(map[string]string),
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Task{}, err
		}
	}

	return Task{
		name:           name,
		url:            rawURL,
		disableTimeout: cfg.disableTimeout,
		labels:         cfg.labels,
	}, nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
