package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/executor"
	"github.com/MrSnakeDoc/listingd/internal/listener"
	"github.com/MrSnakeDoc/listingd/internal/logger"
	redisstore "github.com/MrSnakeDoc/listingd/internal/store/redis"
)

// DefaultSweepInterval is how often pending queues are checked for missing jobs
const DefaultSweepInterval = time.Minute

// QueueReader exposes the per-account state the sweeper inspects
type QueueReader interface {
	RunningAgents(ctx context.Context) ([]string, error)
	QueueSizes(ctx context.Context, steamid string) (redisstore.QueueSizes, error)
}

// Sweeper makes sure every running account with queued work has a job.
// Enqueue is idempotent, so sweeping an account that already has one is a no-op.
type Sweeper struct {
	store    QueueReader
	jobs     listener.Enqueuer
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewSweeper creates a new sweeper
func NewSweeper(store QueueReader, jobs listener.Enqueuer, log logger.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Sweeper{
		store:    store,
		jobs:     jobs,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Warn("initial sweep failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.Error("sweep failed",
						logger.Error(err))
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the sweeper
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

// Sweep enqueues a job for every non-empty queue of every running agent and
// returns how many enqueue calls were made
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	agents, err := s.store.RunningAgents(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list running agents: %w", err)
	}

	scheduled := 0
	for _, steamid := range agents {
		sizes, err := s.store.QueueSizes(ctx, steamid)
		if err != nil {
			s.logger.Warn("failed to read queue sizes",
				logger.SteamID(steamid),
				logger.Error(err))
			continue
		}

		for _, op := range pendingOps(sizes) {
			if err := s.jobs.Enqueue(ctx, steamid, op, executor.Priority(op)); err != nil {
				s.logger.Warn("failed to schedule job",
					logger.SteamID(steamid),
					logger.String("op", string(op)),
					logger.Error(err))
				continue
			}
			scheduled++
		}
	}

	if scheduled > 0 {
		s.logger.Info("sweep scheduled jobs",
			logger.Int("agents", len(agents)),
			logger.Int("jobs", scheduled))
	} else {
		s.logger.Debug("nothing to sweep")
	}

	return scheduled, nil
}

func pendingOps(sizes redisstore.QueueSizes) []domain.Operation {
	var ops []domain.Operation
	if sizes.Delete > 0 {
		ops = append(ops, domain.OpDelete)
	}
	if sizes.DeleteArchived > 0 {
		ops = append(ops, domain.OpDeleteArchived)
	}
	if sizes.Create > 0 {
		ops = append(ops, domain.OpCreate)
	}
	return ops
}
