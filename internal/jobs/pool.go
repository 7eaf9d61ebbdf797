package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrSnakeDoc/listingd/internal/logger"
	"github.com/MrSnakeDoc/listingd/internal/metrics"
)

// RetryAfter is implemented by errors that know when the job may run again
type RetryAfter interface {
	RetryAfter() time.Duration
}

// Handler runs a claimed job. A returned error schedules a retry.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// PoolConfig tunes workers and retry policy
type PoolConfig struct {
	Workers        int
	PollInterval   time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	MaxAge         time.Duration // jobs failing for longer than this are abandoned
	ReapInterval   time.Duration
}

func (c *PoolConfig) defaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Minute
	}
	if c.MaxAge <= 0 {
		c.MaxAge = time.Hour
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 30 * time.Second
	}
}

// Pool runs jobs from a Queue on a fixed number of workers
type Pool struct {
	queue   *Queue
	handler Handler
	logger  logger.Logger
	cfg     PoolConfig
	now     func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPool creates a worker pool
func NewPool(queue *Queue, handler Handler, log logger.Logger, cfg PoolConfig) *Pool {
	cfg.defaults()
	return &Pool{
		queue:   queue,
		handler: handler,
		logger:  log,
		cfg:     cfg,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the workers and the reaper
func (p *Pool) Start(ctx context.Context) error {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}

	p.wg.Add(1)
	go p.reap(ctx)

	return nil
}

// Stop signals the workers and waits for running jobs to finish
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		ran, err := p.RunOnce(ctx)
		if err != nil {
			p.logger.Warn("job worker error", logger.Error(err))
		}
		if ran {
			continue
		}

		select {
		case <-time.After(p.cfg.PollInterval):
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) reap(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := p.queue.Reap(ctx)
			if err != nil {
				p.logger.Warn("job reaper failed", logger.Error(err))
				continue
			}
			if n > 0 {
				p.logger.Warn("re-queued stalled jobs", logger.Int("count", n))
			}
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce claims and runs a single job. It reports whether a job was due.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.queue.Claim(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := p.logger.With(
		logger.SteamID(job.SteamID),
		logger.String("op", string(job.Op)),
		logger.Int("attempt", job.Attempts+1),
	)

	// a stopping pool lets the job finish
	runErr := p.handler.Handle(context.WithoutCancel(ctx), *job)
	if runErr == nil {
		return true, p.queue.Ack(ctx, job)
	}

	now := p.now()
	if now.Sub(job.FirstEnqueuedAt) >= p.cfg.MaxAge {
		log.Error("abandoning job", logger.Error(runErr),
			logger.Duration("age", now.Sub(job.FirstEnqueuedAt)))
		metrics.JobsAbandoned.WithLabelValues(string(job.Op)).Inc()
		return true, p.queue.Abandon(ctx, job)
	}

	delay := p.Backoff(job.Attempts)
	var ra RetryAfter
	if errors.As(runErr, &ra) && ra.RetryAfter() > 0 {
		delay = ra.RetryAfter()
	}

	log.Warn("job failed, retrying", logger.Error(runErr), logger.Duration("delay", delay))
	metrics.JobRetries.WithLabelValues(string(job.Op)).Inc()
	return true, p.queue.Retry(ctx, job, now.Add(delay))
}

// Backoff returns the exponential delay before the next attempt
func (p *Pool) Backoff(attempts int) time.Duration {
	d := p.cfg.BackoffInitial
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= p.cfg.BackoffMax {
			return p.cfg.BackoffMax
		}
	}
	return d
}
