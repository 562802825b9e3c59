package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is a unit of work run by a [Pool].
//
// Run is expected to block until the job reaches a final outcome (for a task
// poller: a terminal status, a timeout, or ctx cancellation).
type Job struct {
	// Key identifies the job in its [Outcome].
	Key string

	// Run performs the job. It must honour ctx cancellation.
	Run func(ctx context.Context) (json.RawMessage, error)
}

// Outcome holds the final result of a [Job].
type Outcome struct {
	// Key is the job key.
	Key string

	// Result is the value returned by the job on success.
	Result json.RawMessage

	// Err is the error returned by the job, or a panic description.
	Err error

	// StartedAt is when the job started running.
	StartedAt time.Time

	// Duration is how long the job ran.
	Duration time.Duration
}

// Pool runs a fixed set of jobs on a bounded number of workers.
//
// Outcomes are emitted on [Pool.Results]. The results channel is closed once
// every job has finished or the pool is stopped, whichever comes first.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Pool struct {
	jobs           []Job
	maxConcurrency int
	results        chan Outcome
	logger         *slog.Logger
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewPool creates a new [Pool].
//
// Parameters:
//   - jobs: jobs to run, each exactly once
//   - maxConcurrency: maximum number of jobs running at the same time
//   - logger: logger for pool events (panic recovery, etc.)
//
// The pool must be started with [Pool.Start].
func NewPool(jobs []Job, maxConcurrency int, logger *slog.Logger) *Pool {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		jobs:           jobs,
		maxConcurrency: maxConcurrency,
		results:        make(chan Outcome, len(jobs)),
		logger:         logger,
	}
}

// Results returns a receive-only channel that emits one [Outcome] per job.
func (p *Pool) Results() <-chan Outcome {
	return p.results
}

// Start begins running jobs in background goroutines.
//
// Start is non-blocking and idempotent. If Stop was called before Start,
// Start is a no-op. If ctx is nil, context.Background() is used.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.closeOnce.Do(func() { close(p.results) })
		p.runAll(runCtx)
	}()
}

// Stop cancels all running jobs and waits for the workers to exit.
//
// Stop is idempotent and safe to call before Start.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		if p.cancel != nil {
			p.cancel()
		}
	}
	p.mu.Unlock()

	p.wg.Wait()

	// ensure channel is closed even if Start() was never called
	p.closeOnce.Do(func() { close(p.results) })
}

// runAll feeds jobs to maxConcurrency workers and waits for them.
func (p *Pool) runAll(ctx context.Context) {
	queue := make(chan Job, len(p.jobs))
	for _, job := range p.jobs {
		queue <- job
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < p.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				if ctx.Err() != nil {
					return
				}
				// results is buffered for every job, so this send never blocks
				p.results <- p.runJob(ctx, job)
			}
		}()
	}
	wg.Wait()
}

// runJob runs a single job with panic recovery.
// A panicking job yields an Outcome whose error carries a correlation ID; the
// full stack trace is logged.
func (p *Pool) runJob(ctx context.Context, job Job) (out Outcome) {
	out = Outcome{Key: job.Key, StartedAt: time.Now()}

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			p.logger.Error("job panic",
				"correlation_id", correlationID,
				"job", job.Key,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			out.Result = nil
			out.Err = fmt.Errorf("job panic (correlation_id: %s)", correlationID)
		}
		out.Duration = time.Since(out.StartedAt)
	}()

	out.Result, out.Err = job.Run(ctx)
	return out
}
