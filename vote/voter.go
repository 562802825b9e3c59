package vote

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jpalmerr/taskpoll/internal/poller"
)

const (
	defaultSubmitTimeout = 10 * time.Second

	// maxLoggedBody caps the response text logged for a rejected vote.
	maxLoggedBody = 512
)

// voterConfig holds mutable state during Voter construction.
type voterConfig struct {
	httpClient *http.Client
	logger     *slog.Logger
	headers    map[string]string
	timeout    time.Duration
}

// Option configures a [Voter].
type Option func(*voterConfig) error

// WithHTTPClient sets the client used to submit votes. Use a client with a
// cookie jar to carry the session.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *voterConfig) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = c
		return nil
	}
}

// WithLogger sets the voter logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *voterConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithHeaders adds HTTP headers to every submission.
// Accepts variadic key-value pairs. The number of arguments must be even.
func WithHeaders(keyValues ...string) Option {
	return func(cfg *voterConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithSubmitTimeout sets the timeout of a vote submission. Defaults to 10 seconds.
func WithSubmitTimeout(d time.Duration) Option {
	return func(cfg *voterConfig) error {
		if d <= 0 {
			return errors.New("submit timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// Voter casts votes: the widget is updated at once and the vote is submitted
// in the background.
//
// Failed submissions are logged and never rolled back or retried, so the
// widget may show a vote the server did not record.
type Voter struct {
	client  *poller.Client
	logger  *slog.Logger
	headers map[string]string
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewVoter creates a [Voter].
func NewVoter(opts ...Option) (*Voter, error) {
	cfg := &voterConfig{
		headers: make(map[string]string),
		timeout: defaultSubmitTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Voter{
		client:  poller.NewClient(cfg.httpClient),
		logger:  logger,
		headers: cfg.headers,
		timeout: cfg.timeout,
	}, nil
}

// Cast applies the vote to w and submits it asynchronously as a
// form-encoded POST to the form action.
//
// Cast returns as soon as the widget is updated. Use [Voter.Wait] to wait for
// submissions to finish.
func (v *Voter) Cast(ctx context.Context, w *Widget, isHelpful bool) {
	w.SetVote(isHelpful)

	values := w.Values(isHelpful)
	action := w.Action()

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()

		resp := v.client.PostForm(ctx, action, values, v.headers, v.timeout)
		if resp.Error != nil {
			v.logger.Error("vote submission failed", "url", action, "error", resp.Error.Error())
			return
		}
		if !resp.OK() {
			body := resp.Body
			if len(body) > maxLoggedBody {
				body = body[:maxLoggedBody]
			}
			v.logger.Error("vote rejected",
				"url", action,
				"status_code", resp.StatusCode,
				"body", string(body),
			)
			return
		}
		v.logger.Debug("vote submitted", "url", action, "is_positive", values.Get("is_positive"))
	}()
}

// Wait blocks until every submission started by Cast has finished.
func (v *Voter) Wait() {
	v.wg.Wait()
}

// Close waits for pending submissions and releases idle connections.
func (v *Voter) Close() {
	v.Wait()
	v.client.Close()
}
