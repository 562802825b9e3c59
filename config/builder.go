package config

import (
	"errors"
	"net/url"
	"sort"
	"strings"

	"github.com/jpalmerr/taskpoll"
)

// BuildTasks converts parsed configuration into SDK Task objects.
//
// Tasks given by id are polled at {base_url}/tasks/{id}/; a path prefix on
// base_url is kept.
func BuildTasks(cfg *Config) ([]taskpoll.Task, error) {
	tasks := make([]taskpoll.Task, 0, len(cfg.Tasks))
	for _, tc := range cfg.Tasks {
		t, err := buildTask(cfg.BaseURL, tc)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// buildTask converts a single TaskConfig to an SDK Task.
func buildTask(baseURL string, tc TaskConfig) (taskpoll.Task, error) {
	pollURL := tc.PollURL
	if tc.ID != "" {
		u, err := joinTaskURL(baseURL, tc.ID)
		if err != nil {
			return taskpoll.Task{}, err
		}
		pollURL = u
	}

	var opts []taskpoll.TaskOption
	if len(tc.Labels) > 0 {
		opts = append(opts, taskpoll.WithLabels(mapToKeyValuePairs(tc.Labels)...))
	}
	if tc.DisableTimeout {
		opts = append(opts, taskpoll.WithoutTimeout())
	}

	return taskpoll.NewTask(tc.Name, pollURL, opts...)
}

// joinTaskURL appends /tasks/{id}/ to the path of baseURL, keeping any path
// prefix the application is mounted under.
func joinTaskURL(baseURL, id string) (string, error) {
	if baseURL == "" {
		return "", errors.New("base_url is required for task ids")
	}
	return strings.TrimSuffix(baseURL, "/") + "/tasks/" + url.PathEscape(id) + "/", nil
}

// PollerOptions converts the polling settings into SDK poller options.
func PollerOptions(cfg *Config) []taskpoll.Option {
	opts := []taskpoll.Option{
		taskpoll.WithRequestTimeout(cfg.RequestTimeout.Duration()),
		taskpoll.WithMaxAttempts(cfg.MaxAttempts),
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, taskpoll.WithHeaders(mapToKeyValuePairs(cfg.Headers)...))
	}
	return opts
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
