// Package outbox runs outbound side effects on a bounded worker pool with retries.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/menubot/core/logger"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("outbox: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("outbox: queue full")
)

// Options controls the behaviour of the outbox.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	// Component scopes log events, e.g. "tg.sender".
	Component string
	// Retryable decides whether a failed attempt is retried. Defaults to ShouldRetry.
	Retryable func(error) bool
	// OnFailure is called once per job that ultimately failed.
	OnFailure func(action string, err error)
}

// Job is a unit of outbound work. It must be idempotent if retries are enabled.
type Job func(ctx context.Context) error

type job struct {
	ctx    context.Context
	action string
	run    Job
}

// Outbox executes jobs asynchronously.
type Outbox struct {
	opts Options
	jobs chan job

	mu     sync.RWMutex
	closed bool

	wg   sync.WaitGroup
	errs atomic.Uint64
}

// New starts an outbox with sane defaults if options are zeroed.
func New(opts Options) *Outbox {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}
	if opts.Component == "" {
		opts.Component = "outbox"
	}
	if opts.Retryable == nil {
		opts.Retryable = ShouldRetry
	}

	o := &Outbox{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}
	o.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go o.worker()
	}
	return o
}

// Enqueue schedules run for asynchronous execution.
func (o *Outbox) Enqueue(ctx context.Context, action string, run Job) error {
	if run == nil {
		return errors.New("outbox: nil job")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrQueueClosed
	}
	select {
	case o.jobs <- job{ctx: context.WithoutCancel(ctx), action: action, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Failures returns the number of jobs that ultimately failed.
func (o *Outbox) Failures() uint64 {
	return o.errs.Load()
}

// Close stops accepting jobs and waits for queued ones to finish.
func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.jobs)
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Outbox) worker() {
	defer o.wg.Done()
	for j := range o.jobs {
		_ = o.execute(j)
	}
}

func (o *Outbox) execute(j job) error {
	ctx, cancel := context.WithTimeout(j.ctx, o.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := o.opts.MaxRetries + 1
	var lastErr error

attemptLoop:
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		lastErr = j.run(ctx)
		if lastErr == nil {
			attrs := []slog.Attr{slog.String("action", j.action), slog.Duration("elapsed", time.Since(start))}
			if attempt > 1 {
				attrs = append(attrs, slog.Int("attempt", attempt))
			}
			logger.Debug(j.ctx, o.opts.Component, "send.success", attrs...)
			return nil
		}
		if !o.opts.Retryable(lastErr) || attempt == attempts {
			break
		}

		delay := o.opts.RetryBackoff * time.Duration(attempt)
		logger.Debug(j.ctx, o.opts.Component, "send.retry.backoff",
			slog.String("action", j.action),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			lastErr = ctx.Err()
			break attemptLoop
		case <-timer.C:
		}
	}

	o.errs.Add(1)
	logger.Error(j.ctx, o.opts.Component, "send.fail",
		slog.String("status", "fail"),
		slog.String("action", j.action),
		slog.String("err", Redact(lastErr)),
		slog.String("error_kind", ErrorKind(lastErr)),
		slog.Int("attempts", attempts),
		slog.Duration("elapsed", time.Since(start)),
	)
	if o.opts.OnFailure != nil {
		o.opts.OnFailure(j.action, lastErr)
	}
	return lastErr
}
