package executor

import (
	"context"

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/jobs"
	"github.com/MrSnakeDoc/listingd/internal/listener"
	"github.com/MrSnakeDoc/listingd/internal/logger"
)

// Processor runs batch jobs and schedules the next batch while work remains
type Processor struct {
	executor *Executor
	jobs     listener.Enqueuer
	logger   logger.Logger
}

// NewProcessor creates the job handler for batch operations
func NewProcessor(e *Executor, q listener.Enqueuer, log logger.Logger) *Processor {
	return &Processor{executor: e, jobs: q, logger: log}
}

// Priority returns the job priority of an operation
func Priority(op domain.Operation) int {
	switch op {
	case domain.OpDeleteAll:
		return jobs.PriorityDeleteAll
	case domain.OpDelete, domain.OpDeleteArchived:
		return jobs.PriorityDelete
	default:
		return jobs.PriorityCreate
	}
}

// Handle implements jobs.Handler
func (p *Processor) Handle(ctx context.Context, job jobs.Job) error {
	more, err := p.executor.Run(ctx, job.SteamID, job.Op)
	if err != nil {
		return err
	}
	if !more {
		return nil
	}

	p.logger.Debug("batch full, scheduling next",
		logger.SteamID(job.SteamID),
		logger.String("op", string(job.Op)),
	)
	return p.jobs.Enqueue(ctx, job.SteamID, job.Op, Priority(job.Op))
}
