package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/listingd/internal/credentials"
	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/listener"
	"github.com/MrSnakeDoc/listingd/internal/lock"
	"github.com/MrSnakeDoc/listingd/internal/logger"
	"github.com/MrSnakeDoc/listingd/internal/marketplace"
	"github.com/MrSnakeDoc/listingd/internal/metrics"
	"github.com/MrSnakeDoc/listingd/internal/ratelimit"
	redisstore "github.com/MrSnakeDoc/listingd/internal/store/redis"
)

// Config holds batch sizes and the lease duration of a running batch
type Config struct {
	CreateBatchSize         int
	DeleteBatchSize         int
	DeleteArchivedBatchSize int
	LockTTL                 time.Duration
}

func (c *Config) defaults() {
	if c.CreateBatchSize <= 0 {
		c.CreateBatchSize = 100
	}
	if c.DeleteBatchSize <= 0 {
		c.DeleteBatchSize = 100
	}
	if c.DeleteArchivedBatchSize <= 0 {
		c.DeleteArchivedBatchSize = 100
	}
	if c.LockTTL <= 0 {
		c.LockTTL = time.Minute
	}
}

// Executor runs one batch operation per account at a time against the marketplace
type Executor struct {
	store     *redisstore.Store
	locks     *lock.Manager
	reservoir *ratelimit.Reservoir
	api       marketplace.API
	tokens    credentials.Provider
	listener  *listener.Listener
	logger    logger.Logger
	cfg       Config
}

// New creates an executor
func New(
	store *redisstore.Store,
	locks *lock.Manager,
	reservoir *ratelimit.Reservoir,
	api marketplace.API,
	tokens credentials.Provider,
	l *listener.Listener,
	log logger.Logger,
	cfg Config,
) *Executor {
	cfg.defaults()
	return &Executor{
		store:     store,
		locks:     locks,
		reservoir: reservoir,
		api:       api,
		tokens:    tokens,
		listener:  l,
		logger:    log,
		cfg:       cfg,
	}
}

// BatchSize returns the configured batch size of an operation
func (e *Executor) BatchSize(op domain.Operation) int {
	switch op {
	case domain.OpCreate:
		return e.cfg.CreateBatchSize
	case domain.OpDelete:
		return e.cfg.DeleteBatchSize
	case domain.OpDeleteArchived:
		return e.cfg.DeleteArchivedBatchSize
	}
	return 0
}

// Run executes one batch of op for an account. more reports that the batch
// was full, so the same operation should be scheduled again.
func (e *Executor) Run(ctx context.Context, steamid string, op domain.Operation) (bool, error) {
	if !op.Valid() {
		return false, fmt.Errorf("unknown operation %q", op)
	}

	var more bool
	err := e.locks.WithLock(ctx, lock.Executor(steamid), e.cfg.LockTTL, func(ctx context.Context) error {
		var err error
		switch op {
		case domain.OpCreate:
			more, err = e.runCreate(ctx, steamid)
		case domain.OpDelete, domain.OpDeleteArchived:
			more, err = e.runDelete(ctx, steamid, op)
		case domain.OpDeleteAll:
			more, err = false, e.runDeleteAll(ctx, steamid)
		}
		return err
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return false, &DeferredError{Reason: "another batch is running", Wait: time.Second, Err: err}
	}
	return more, err
}

// acquire gets the account token and a reservoir token, in that order
func (e *Executor) acquire(ctx context.Context, steamid string, op domain.Operation) (string, error) {
	token, err := e.tokens.Token(ctx, steamid)
	if err != nil {
		return "", err
	}

	ok, wait, err := e.reservoir.Take(ctx, steamid)
	if err != nil {
		return "", err
	}
	if !ok {
		metrics.ReservoirEmpty.WithLabelValues(string(op)).Inc()
		return "", &DeferredError{Reason: "reservoir empty", Wait: wait}
	}
	return token, nil
}

// observe records the call outcome and applies the rate-limit penalty
func (e *Executor) observe(ctx context.Context, steamid string, op domain.Operation, started time.Time, callErr error) error {
	metrics.BatchDuration.WithLabelValues(string(op)).Observe(time.Since(started).Seconds())

	if callErr == nil {
		metrics.Batches.WithLabelValues(string(op), "ok").Inc()
		return nil
	}

	rl, ok := marketplace.AsRateLimit(callErr)
	if !ok {
		metrics.Batches.WithLabelValues(string(op), "error").Inc()
		return fmt.Errorf("%s batch: %w", op, callErr)
	}

	metrics.Batches.WithLabelValues(string(op), "rate_limited").Inc()
	metrics.ReservoirPenalties.Inc()

	retryAfter := e.reservoir.Backoff(rl.RetryAfter)
	tokens, err := e.reservoir.Penalize(ctx, steamid, rl.RetryAfter)
	if err != nil {
		e.logger.Error("failed to penalize reservoir", logger.SteamID(steamid), logger.Error(err))
	}

	e.logger.Warn("rate limited by marketplace",
		logger.SteamID(steamid),
		logger.String("op", string(op)),
		logger.Duration("retry_after", rl.RetryAfter),
		logger.Int64("tokens", tokens),
	)
	return &DeferredError{Reason: "rate limited", Wait: retryAfter, Err: callErr}
}
