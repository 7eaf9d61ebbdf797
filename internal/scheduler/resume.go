package scheduler

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/listingd/internal/logger"
)

// JobRecovery returns jobs left active by a previous process to the ready set
type JobRecovery interface {
	Reap(ctx context.Context) (int, error)
	Pending(ctx context.Context) (int64, error)
}

// Resumer brings persisted work back to life on startup
type Resumer struct {
	jobs    JobRecovery
	sweeper *Sweeper
	logger  logger.Logger
}

// NewResumer creates a new resumer
func NewResumer(jobs JobRecovery, sweeper *Sweeper, log logger.Logger) *Resumer {
	return &Resumer{
		jobs:    jobs,
		sweeper: sweeper,
		logger:  log,
	}
}

// Resume requeues expired active jobs, then sweeps queues so every running
// account with pending work has a job
func (r *Resumer) Resume(ctx context.Context) error {
	r.logger.Info("resuming persisted work")

	reaped, err := r.jobs.Reap(ctx)
	if err != nil {
		return fmt.Errorf("failed to reap jobs: %w", err)
	}

	scheduled, err := r.sweeper.Sweep(ctx)
	if err != nil {
		return err
	}

	pending, err := r.jobs.Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to count jobs: %w", err)
	}

	r.logger.Info("resumed persisted work",
		logger.Int("reaped", reaped),
		logger.Int("scheduled", scheduled),
		logger.Int64("pending", pending))

	return nil
}
