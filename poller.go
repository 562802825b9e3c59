package taskpoll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jpalmerr/taskpoll/internal/poller"
)

// ProgressFunc receives every non-terminal payload of a poll loop.
//
// ProgressFunc is called synchronously from the polling goroutine, so it
// delays the next attempt until it returns. Panics are recovered and logged.
type ProgressFunc func(Payload)

// Poller polls asynchronous task endpoints.
//
// A Poller is safe for concurrent use. Each [Poller.PollTask] call is an
// independent sequential loop; calls share only the HTTP client and the
// [Poller.WatchTask] deduplication state.
type Poller struct {
	client         *poller.Client
	headers        map[string]string
	requestTimeout time.Duration
	maxAttempts    int
	baseDelay      time.Duration
	maxDelay       time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	logger         *slog.Logger
	metrics        *Metrics

	watches  singleflight.Group
	watchMu  sync.Mutex
	watchSeq uint64
	active   map[string]*watch
}

// watch is one shared poll loop of a task and the callers waiting on it.
type watch struct {
	// key names the loop in the singleflight group; unique per loop.
	key    string
	ctx    context.Context
	cancel context.CancelFunc

	waiters int
	nextSub int
	subs    map[int]ProgressFunc
}

// New creates a [Poller] with the given options.
//
// Defaults:
//   - Max attempts: 30 (only applies when the timeout is enabled)
//   - Backoff: min(attempt*100ms, 1s)
//   - Request timeout: 10 seconds
//
// Returns an error if any option is invalid.
//
// Example:
//
//	p, err := taskpoll.New(
//	    taskpoll.WithHeaders("Authorization", "Bearer token"),
//	    taskpoll.WithRequestTimeout(5 * time.Second),
//	)
func New(opts ...Option) (*Poller, error) {
	cfg := &pollerConfig{
		headers:        make(map[string]string),
		requestTimeout: defaultRequestTimeout,
		maxAttempts:    DefaultMaxAttempts,
		baseDelay:      DefaultBaseDelay,
		maxDelay:       DefaultMaxDelay,
		sleep:          sleepContext,
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

	return &Poller{
		client:         poller.NewClient(cfg.httpClient),
		headers:        cfg.headers,
		requestTimeout: cfg.requestTimeout,
		maxAttempts:    cfg.maxAttempts,
		baseDelay:      cfg.baseDelay,
		maxDelay:       cfg.maxDelay,
		sleep:          cfg.sleep,
		logger:         logger,
		metrics:        cfg.metrics,
		active:         make(map[string]*watch),
	}, nil
}

// PollTask polls pollURL until the task reaches a terminal status.
//
// Every iteration increments an attempt counter. When disableTimeout is false
// and the counter exceeds the attempt budget, PollTask returns [ErrTimeout].
// Otherwise it waits min(attempt*100ms, 1s) and issues a GET with
// "Accept: application/json".
//
// Network failures and malformed payloads are logged and count as a missed
// attempt. A well-formed payload is used whatever the response status code. PENDING and PROGRESS payloads are passed to
// onProgress when it is non-nil.
//
// Returns the raw "result" of a SUCCESS payload, a [*TaskError] for FAILURE
// or REVOKED, or ctx.Err() if ctx is cancelled.
func (p *Poller) PollTask(ctx context.Context, pollURL string, disableTimeout bool, onProgress ProgressFunc) (json.RawMessage, error) {
	start := time.Now()
	p.metrics.sessionStarted()

	result, err := p.pollLoop(ctx, pollURL, disableTimeout, onProgress)

	p.metrics.sessionFinished(sessionOutcome(err), time.Since(start))
	return result, err
}

func (p *Poller) pollLoop(ctx context.Context, pollURL string, disableTimeout bool, onProgress ProgressFunc) (json.RawMessage, error) {
	attempt := 0
	for {
		attempt++
		if !disableTimeout && attempt > p.maxAttempts {
			p.logger.Warn("task poll timed out", "url", pollURL, "attempts", attempt-1)
			return nil, ErrTimeout
		}

		delay := linearBackoff(attempt, p.baseDelay, p.maxDelay)
		p.logger.Debug("polling task", "url", pollURL, "attempt", attempt, "delay_ms", delay.Milliseconds())
		if err := p.sleep(ctx, delay); err != nil {
			return nil, err
		}

		payload, ok := p.fetchPayload(ctx, pollURL, attempt)
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			continue
		}

		switch payload.Status {
		case StatusSuccess:
			p.logger.Debug("task succeeded", "url", pollURL, "attempt", attempt)
			return payload.Result, nil
		case StatusFailure, StatusRevoked:
			return nil, &TaskError{Status: payload.Status, Detail: payload.Error}
		default:
			p.notifyProgress(onProgress, payload, pollURL)
		}
	}
}

// fetchPayload issues one poll request. The boolean is false when the attempt
// produced no usable payload.
func (p *Poller) fetchPayload(ctx context.Context, pollURL string, attempt int) (Payload, bool) {
	resp := p.client.GetJSON(ctx, pollURL, p.headers, p.requestTimeout)
	logAttrs := []any{"url", pollURL, "attempt", attempt, "latency_ms", resp.Latency.Milliseconds()}

	if resp.Error != nil {
		p.metrics.attempt(attemptNetworkError)
		if ctx.Err() == nil {
			p.logger.Warn("task poll request failed", append(logAttrs, "error", resp.Error.Error())...)
		}
		return Payload{}, false
	}

	payload, err := DecodePayload(resp.Body)
	if err != nil {
		if !resp.OK() {
			p.metrics.attempt(attemptHTTPError)
			p.logger.Warn("task poll returned unexpected status code", append(logAttrs, "status_code", resp.StatusCode)...)
			return Payload{}, false
		}
		p.metrics.attempt(attemptMalformed)
		p.logger.Warn("task poll returned malformed payload", append(logAttrs, "error", err.Error())...)
		return Payload{}, false
	}
	if !resp.OK() {
		p.logger.Debug("task poll payload with error status code", append(logAttrs, "status_code", resp.StatusCode)...)
	}

	p.metrics.attempt(attemptPayload)
	p.logger.Debug("task poll payload", append(logAttrs, "status", payload.Status.String())...)
	return payload, true
}

// notifyProgress calls fn with panic recovery. A panic is logged with a
// correlation ID and the stack trace; polling continues.
func (p *Poller) notifyProgress(fn ProgressFunc, payload Payload, pollURL string) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("progress callback panicked",
				"correlation_id", uuid.NewString(),
				"url", pollURL,
				"status", payload.Status.String(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(payload)
}

// PerformTask starts a task and waits for its result.
//
// PerformTask issues one POST to startURL. The response must be a JSON object
// with a string "poll_url"; a relative poll_url is resolved against startURL.
// The task is then polled with the timeout enabled and no progress callback.
//
// Returns an error wrapping [ErrInvalidStartResponse] without polling when
// poll_url is missing or not a string.
func (p *Poller) PerformTask(ctx context.Context, startURL string) (json.RawMessage, error) {
	resp := p.client.PostJSON(ctx, startURL, p.headers, p.requestTimeout)
	if resp.Error != nil {
		return nil, fmt.Errorf("start task: %w", resp.Error)
	}

	pollURL, err := parseStartResponse(resp.Body)
	if err != nil {
		if !resp.OK() {
			return nil, fmt.Errorf("%w (status code %d)", err, resp.StatusCode)
		}
		return nil, err
	}

	resolved, err := resolveReference(startURL, pollURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStartResponse, err)
	}

	p.logger.Info("task started", "start_url", startURL, "poll_url", resolved)
	return p.PollTask(ctx, resolved, false, nil)
}

// parseStartResponse extracts the string poll_url from a start response body.
func parseStartResponse(body []byte) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStartResponse, err)
	}
	raw, ok := fields["poll_url"]
	if !ok {
		return "", ErrInvalidStartResponse
	}
	var pollURL string
	if err := json.Unmarshal(raw, &pollURL); err != nil {
		return "", ErrInvalidStartResponse
	}
	return pollURL, nil
}

// resolveReference resolves ref against base the way a browser resolves a
// relative link.
func resolveReference(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// TaskURL returns the poll URL of a task id relative to baseURL:
// "{baseURL}/tasks/{id}/".
func TaskURL(baseURL, taskID string) (string, error) {
	if taskID == "" {
		return "", errors.New("task id cannot be empty")
	}
	return resolveReference(baseURL, "/tasks/"+url.PathEscape(taskID)+"/")
}

// WatchTask polls the task identified by taskID with the timeout disabled.
//
// The poll URL is built with [TaskURL]. Concurrent watches of the same task
// share one poll loop: every watcher receives the loop's result and every
// watcher's onProgress sees each progress payload. Cancelling ctx detaches
// only this watcher; the loop stops once the last watcher has left.
func (p *Poller) WatchTask(ctx context.Context, baseURL, taskID string, onProgress ProgressFunc) (json.RawMessage, error) {
	pollURL, err := TaskURL(baseURL, taskID)
	if err != nil {
		return nil, err
	}

	w, sub := p.joinWatch(ctx, pollURL, onProgress)
	defer p.leaveWatch(pollURL, w, sub)

	ch := p.watches.DoChan(w.key, func() (any, error) {
		defer p.endWatch(pollURL, w)
		return p.PollTask(w.ctx, pollURL, true, func(payload Payload) {
			p.broadcast(w, payload, pollURL)
		})
	})

	select {
	case res := <-ch:
		if res.Shared {
			p.logger.Debug("joined in-flight task watch", "url", pollURL)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		result, _ := res.Val.(json.RawMessage)
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// joinWatch registers a watcher on the live loop for pollURL, creating one if
// needed. The loop context outlives any single watcher's ctx.
func (p *Poller) joinWatch(ctx context.Context, pollURL string, onProgress ProgressFunc) (*watch, int) {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()

	w := p.active[pollURL]
	if w == nil {
		p.watchSeq++
		loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		w = &watch{
			key:    fmt.Sprintf("%s#%d", pollURL, p.watchSeq),
			ctx:    loopCtx,
			cancel: cancel,
			subs:   make(map[int]ProgressFunc),
		}
		p.active[pollURL] = w
	}

	w.waiters++
	sub := w.nextSub
	w.nextSub++
	if onProgress != nil {
		w.subs[sub] = onProgress
	}
	return w, sub
}

// leaveWatch unregisters a watcher and cancels the loop when none remain.
func (p *Poller) leaveWatch(pollURL string, w *watch, sub int) {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()

	delete(w.subs, sub)
	w.waiters--
	if w.waiters == 0 {
		w.cancel()
		if p.active[pollURL] == w {
			delete(p.active, pollURL)
		}
	}
}

// endWatch retires a finished loop so later watches start a fresh one.
func (p *Poller) endWatch(pollURL string, w *watch) {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()

	if p.active[pollURL] == w {
		delete(p.active, pollURL)
	}
}

// broadcast passes a progress payload to every watcher, in join order.
func (p *Poller) broadcast(w *watch, payload Payload, pollURL string) {
	p.watchMu.Lock()
	ids := make([]int, 0, len(w.subs))
	for id := range w.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]ProgressFunc, len(ids))
	for i, id := range ids {
		fns[i] = w.subs[id]
	}
	p.watchMu.Unlock()

	for _, fn := range fns {
		p.notifyProgress(fn, payload, pollURL)
	}
}

// Close releases idle HTTP connections held by the poller.
func (p *Poller) Close() {
	p.client.Close()
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sessionOutcome maps a PollTask error to a metrics label.
func sessionOutcome(err error) string {
	var taskErr *TaskError
	switch {
	case err == nil:
		return sessionSuccess
	case errors.Is(err, ErrTimeout):
		return sessionTimeout
	case errors.As(err, &taskErr):
		return sessionFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return sessionCancelled
	default:
		return sessionFailure
	}
}
