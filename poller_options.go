package taskpoll

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const defaultRequestTimeout = 10 * time.Second

// pollerConfig holds mutable state during Poller construction.
type pollerConfig struct {
	logger         *slog.Logger
	httpClient     *http.Client
	headers        map[string]string
	requestTimeout time.Duration
	maxAttempts    int
	baseDelay      time.Duration
	maxDelay       time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	metrics        *Metrics
}

// Option is a function that configures a [Poller] during construction.
//
// Option implements the functional options pattern. Options return an error
// if validation fails, and [New] returns that error.
type Option func(*pollerConfig) error

// WithLogger sets a custom [slog.Logger] for the poller.
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *pollerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithHTTPClient sets the [http.Client] used for every request.
//
// Use this to carry credentials: a client with a cookie jar behaves like a
// same-origin browser session. Per-request timeouts are still applied via
// context, so the client's own Timeout may be left at zero.
//
// Returns an error if the client is nil.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *pollerConfig) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = c
		return nil
	}
}

// WithHeaders adds HTTP headers sent with every poll and start request.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	p, err := taskpoll.New(
//	    taskpoll.WithHeaders("Authorization", "Bearer token"),
//	)
func WithHeaders(keyValues ...string) Option {
	return func(cfg *pollerConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithRequestTimeout sets the timeout for a single HTTP request.
// Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithMaxAttempts sets the attempt budget used when the timeout is enabled.
// Defaults to [DefaultMaxAttempts].
//
// Returns an error if n is zero or negative.
func WithMaxAttempts(n int) Option {
	return func(cfg *pollerConfig) error {
		if n <= 0 {
			return errors.New("max attempts must be positive")
		}
		cfg.maxAttempts = n
		return nil
	}
}

// WithBackoff sets the linear backoff schedule: the delay before attempt n
// is min(n*base, maxDelay). Defaults to [DefaultBaseDelay] and
// [DefaultMaxDelay].
//
// Returns an error if base is not positive or maxDelay is less than base.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if base <= 0 {
			return errors.New("backoff base must be positive")
		}
		if maxDelay < base {
			return errors.New("backoff max delay must not be less than base")
		}
		cfg.baseDelay = base
		cfg.maxDelay = maxDelay
		return nil
	}
}

// WithSleep replaces the function used to wait between attempts.
//
// The function must return ctx.Err() if ctx is done before d elapses.
// Tests use this to run poll loops without real delays.
//
// Returns an error if fn is nil.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(cfg *pollerConfig) error {
		if fn == nil {
			return errors.New("sleep function cannot be nil")
		}
		cfg.sleep = fn
		return nil
	}
}

// WithMetrics records poll activity on m. See [MustNewMetrics].
//
// Returns an error if m is nil.
func WithMetrics(m *Metrics) Option {
	return func(cfg *pollerConfig) error {
		if m == nil {
			return errors.New("metrics cannot be nil")
		}
		cfg.metrics = m
		return nil
	}
}
