package page

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jpalmerr/taskpoll"
	"github.com/jpalmerr/taskpoll/internal/poller"
)

const defaultPageTimeout = 10 * time.Second

// RenderFunc observes every render of a progress payload.
type RenderFunc func(doc *goquery.Document, v View)

// controllerConfig holds mutable state during Controller construction.
type controllerConfig struct {
	httpClient  *http.Client
	logger      *slog.Logger
	pageTimeout time.Duration
	onRender    RenderFunc
}

// Option configures a [Controller].
type Option func(*controllerConfig) error

// WithHTTPClient sets the client used to load pages. Share the poller's
// client (and cookie jar) to keep one session.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *controllerConfig) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = c
		return nil
	}
}

// WithLogger sets the controller logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *controllerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithPageTimeout sets the timeout for loading a page. Defaults to 10 seconds.
func WithPageTimeout(d time.Duration) Option {
	return func(cfg *controllerConfig) error {
		if d <= 0 {
			return errors.New("page timeout must be positive")
		}
		cfg.pageTimeout = d
		return nil
	}
}

// WithRenderHook registers fn to run after each progress render.
func WithRenderHook(fn RenderFunc) Option {
	return func(cfg *controllerConfig) error {
		cfg.onRender = fn
		return nil
	}
}

// Controller drives one task page: load, watch, render, reload.
type Controller struct {
	poller      *taskpoll.Poller
	client      *poller.Client
	logger      *slog.Logger
	pageTimeout time.Duration
	onRender    RenderFunc
}

// NewController creates a [Controller] that watches tasks with p.
//
// Returns an error if p is nil or any option is invalid.
func NewController(p *taskpoll.Poller, opts ...Option) (*Controller, error) {
	if p == nil {
		return nil, errors.New("poller cannot be nil")
	}

	cfg := &controllerConfig{pageTimeout: defaultPageTimeout}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		poller:      p,
		client:      poller.NewClient(cfg.httpClient),
		logger:      logger,
		pageTimeout: cfg.pageTimeout,
		onRender:    cfg.onRender,
	}, nil
}

// Load fetches and parses the page at pageURL.
func (c *Controller) Load(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp := c.client.Fetch(ctx, poller.Request{
		Method:  http.MethodGet,
		URL:     pageURL,
		Headers: map[string]string{"Accept": "text/html"},
		Timeout: c.pageTimeout,
	})
	if resp.Error != nil {
		return nil, fmt.Errorf("load page: %w", resp.Error)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("load page: unexpected status code %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

// Run initialises the page at pageURL.
//
// If the page carries a data-task-id, Run watches the task with the timeout
// disabled, rendering every progress payload into the loaded document. Once
// the watch ends, successfully or not, the page is reloaded and the fresh
// document returned. Watch failures are logged, not returned; only ctx
// cancellation and load failures are.
//
// A page without a task id is returned as loaded.
func (c *Controller) Run(ctx context.Context, pageURL string) (*goquery.Document, error) {
	doc, err := c.Load(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	taskID, ok := FindTaskID(doc)
	if !ok {
		return doc, nil
	}

	c.logger.Info("watching task", "task_id", taskID, "page", pageURL)
	_, err = c.poller.WatchTask(ctx, pageURL, taskID, func(p taskpoll.Payload) {
		v := NewView(p)
		Render(doc, v)
		if c.onRender != nil {
			c.onRender(doc, v)
		}
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		c.logger.Error("task watch failed", "task_id", taskID, "error", err.Error())
	}

	c.logger.Info("reloading page", "page", pageURL)
	return c.Load(ctx, pageURL)
}

// Close releases idle page connections.
func (c *Controller) Close() {
	c.client.Close()
}
