// Package config provides YAML configuration parsing for taskpoll.
//
// This package enables running the task monitor as a standalone binary with
// a configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	base_url: https://app.example.com
//	port: 8080
//	max_concurrency: 10
//	request_timeout: 10s
//	max_attempts: 30
//	headers:
//	  Cookie: "sessionid=${SESSION_ID}"
//
//	tasks:
//	  - name: import
//	    id: 0d9c6f1e
//	  - name: nightly export
//	    poll_url: https://app.example.com/tasks/77ab/
//	    disable_timeout: true
//	    labels:
//	      team: data
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = 8080
	defaultMaxConcurrency = 10
	defaultMaxAttempts    = 30
	defaultRequestTimeout = 10 * time.Second

	// minRequestTimeout guards against timeouts too short to ever see a response.
	minRequestTimeout = 1 * time.Second
)

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// BaseURL is the application root that task ids are resolved against:
	// a task with id X is polled at {base_url}/tasks/X/.
	// Supports environment variable substitution.
	BaseURL string `yaml:"base_url"`

	// Port is the HTTP API port. Defaults to 8080.
	Port int `yaml:"port"`

	// MaxConcurrency bounds how many tasks are polled at once. Defaults to 10.
	MaxConcurrency int `yaml:"max_concurrency"`

	// RequestTimeout bounds each poll request. Defaults to 10s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// MaxAttempts is the number of polls before a task times out. Defaults to 30.
	MaxAttempts int `yaml:"max_attempts"`

	// Headers are sent with every poll request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Tasks are the tasks to monitor.
	Tasks []TaskConfig `yaml:"tasks"`
}

// TaskConfig defines a single monitored task. Exactly one of ID and PollURL
// must be set.
type TaskConfig struct {
	// Name is the display name, unique within the config.
	Name string `yaml:"name"`

	// ID is a task id resolved against base_url.
	ID string `yaml:"id"`

	// PollURL is the full task status URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	PollURL string `yaml:"poll_url"`

	// DisableTimeout polls until the task finishes, however long it takes.
	DisableTimeout bool `yaml:"disable_timeout"`

	// Labels are metadata key-value pairs for grouping/filtering.
	Labels map[string]string `yaml:"labels"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in base_url, poll_url and header values.
// Defaults are applied for Port (8080), MaxConcurrency (10), MaxAttempts (30)
// and RequestTimeout (10s).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = Duration(defaultRequestTimeout)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.RequestTimeout.Duration() < minRequestTimeout {
		return fmt.Errorf("request_timeout must be at least %s, got %s", minRequestTimeout, c.RequestTimeout.Duration())
	}

	if c.BaseURL != "" {
		expanded, err := expandEnvVars(c.BaseURL)
		if err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		c.BaseURL = expanded
		if err := validateHTTPURL(c.BaseURL); err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
	}

	for k, v := range c.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		c.Headers[k] = expanded
	}

	seen := make(map[string]struct{}, len(c.Tasks))
	for i := range c.Tasks {
		tc := &c.Tasks[i]

		if tc.Name == "" {
			return fmt.Errorf("tasks[%d]: name is required", i)
		}
		if _, exists := seen[tc.Name]; exists {
			return fmt.Errorf("tasks[%d] (%s): duplicate task name", i, tc.Name)
		}
		seen[tc.Name] = struct{}{}

		switch {
		case tc.ID == "" && tc.PollURL == "":
			return fmt.Errorf("tasks[%d] (%s): one of id or poll_url is required", i, tc.Name)
		case tc.ID != "" && tc.PollURL != "":
			return fmt.Errorf("tasks[%d] (%s): id and poll_url are mutually exclusive", i, tc.Name)
		case tc.ID != "" && c.BaseURL == "":
			return fmt.Errorf("tasks[%d] (%s): id requires base_url", i, tc.Name)
		}

		if tc.PollURL != "" {
			expanded, err := expandEnvVars(tc.PollURL)
			if err != nil {
				return fmt.Errorf("tasks[%d] (%s): poll_url: %w", i, tc.Name, err)
			}
			tc.PollURL = expanded
			if err := validateHTTPURL(tc.PollURL); err != nil {
				return fmt.Errorf("tasks[%d] (%s): poll_url: %w", i, tc.Name, err)
			}
		}
	}

	if len(c.Tasks) == 0 {
		return errors.New("at least one task must be defined")
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}
