package listener

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/events"
	"github.com/MrSnakeDoc/listingd/internal/jobs"
	"github.com/MrSnakeDoc/listingd/internal/lock"
	"github.com/MrSnakeDoc/listingd/internal/logger"
	redisstore "github.com/MrSnakeDoc/listingd/internal/store/redis"
)

// Enqueuer schedules batch jobs for an account
type Enqueuer interface {
	Enqueue(ctx context.Context, steamid string, op domain.Operation, priority int) error
}

// Listener keeps stores and queues consistent as agents start and stop,
// desired state changes and batch results come back.
type Listener struct {
	store     *redisstore.Store
	locks     *lock.Manager
	jobs      Enqueuer
	publisher events.Publisher
	logger    logger.Logger
	lockTTL   time.Duration
	now       func() time.Time
}

// New creates a listener
func New(
	store *redisstore.Store,
	locks *lock.Manager,
	jobs Enqueuer,
	publisher events.Publisher,
	log logger.Logger,
	lockTTL time.Duration,
) *Listener {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Listener{
		store:     store,
		locks:     locks,
		jobs:      jobs,
		publisher: publisher,
		logger:    log,
		lockTTL:   lockTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OnAgentStart marks the agent running and queues every desired listing that can still succeed
func (l *Listener) OnAgentStart(ctx context.Context, steamid string) error {
	var queued int
	err := l.locks.WithLock(ctx, lock.Account(steamid), l.lockTTL, func(ctx context.Context) error {
		desired, err := l.store.AllDesired(ctx, steamid)
		if err != nil {
			return err
		}

		queued = 0
		return l.store.Commit(ctx, func(tx *redisstore.Tx) error {
			tx.SetAgentRunning(steamid, true)
			for _, d := range desired {
				if d.Error.IsTerminal() {
					continue
				}
				tx.EnqueueCreate(steamid, d.Hash, d.Priority)
				queued++
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("agent start %s: %w", steamid, err)
	}

	l.logger.Info("agent started", logger.SteamID(steamid), logger.Int("queued", queued))

	if queued > 0 {
		return l.jobs.Enqueue(ctx, steamid, domain.OpCreate, jobs.PriorityCreate)
	}
	return nil
}

// OnAgentStop marks the agent stopped and wipes its listings from the marketplace
func (l *Listener) OnAgentStop(ctx context.Context, steamid string) error {
	err := l.locks.WithLock(ctx, lock.Account(steamid), l.lockTTL, func(ctx context.Context) error {
		return l.store.Commit(ctx, func(tx *redisstore.Tx) error {
			tx.SetAgentRunning(steamid, false)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("agent stop %s: %w", steamid, err)
	}

	l.logger.Info("agent stopped", logger.SteamID(steamid))
	return l.jobs.Enqueue(ctx, steamid, domain.OpDeleteAll, jobs.PriorityDeleteAll)
}

// OnDeleteAllCompleted forgets everything the marketplace had for the account.
// Desired listings lose their external id so the next start recreates them;
// an agent started again meanwhile gets them queued right away.
func (l *Listener) OnDeleteAllCompleted(ctx context.Context, steamid string) error {
	var running bool
	var requeued int
	err := l.locks.WithLock(ctx, lock.Account(steamid), l.lockTTL, func(ctx context.Context) error {
		desired, err := l.store.AllDesired(ctx, steamid)
		if err != nil {
			return err
		}
		running, err = l.store.AgentRunning(ctx, steamid)
		if err != nil {
			return err
		}

		now := l.now()
		requeued = 0
		return l.store.Commit(ctx, func(tx *redisstore.Tx) error {
			tx.ClearCreate(steamid)
			if err := tx.ClearDelete(steamid, domain.OpDelete); err != nil {
				return err
			}
			if err := tx.ClearDelete(steamid, domain.OpDeleteArchived); err != nil {
				return err
			}
			tx.ClearCurrent(steamid)

			for _, d := range desired {
				if d.ExternalID != nil {
					d.ExternalID = nil
					d.UpdatedAt = now
					if err := tx.PutDesired(d); err != nil {
						return err
					}
				}
				if running && !d.Error.IsTerminal() {
					tx.EnqueueCreate(steamid, d.Hash, d.Priority)
					requeued++
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("delete all completed %s: %w", steamid, err)
	}

	l.logger.Info("all listings deleted", logger.SteamID(steamid), logger.Bool("agent_running", running))
	events.Emit(ctx, l.publisher, l.logger, events.Event{Name: events.CurrentDeletedAll, SteamID64: steamid})

	if requeued > 0 {
		return l.jobs.Enqueue(ctx, steamid, domain.OpCreate, jobs.PriorityCreate)
	}
	return nil
}

// OnDesiredAdded schedules creation of changed desired listings. Queue
// membership was committed together with the records.
func (l *Listener) OnDesiredAdded(ctx context.Context, steamid string, changed []*domain.DesiredListing) error {
	if len(changed) == 0 {
		return nil
	}
	running, err := l.store.AgentRunning(ctx, steamid)
	if err != nil {
		return err
	}
	if !running {
		l.logger.Debug("agent not running, creation deferred",
			logger.SteamID(steamid), logger.Int("count", len(changed)))
		return nil
	}
	return l.jobs.Enqueue(ctx, steamid, domain.OpCreate, jobs.PriorityCreate)
}

// OnDesiredRemoved schedules deletion of the listings freed by removed desired listings
func (l *Listener) OnDesiredRemoved(ctx context.Context, steamid string, removed []*domain.DesiredListing) error {
	freed := 0
	for _, d := range removed {
		if d.ExternalID != nil {
			freed++
		}
	}
	if freed == 0 {
		return nil
	}

	if err := l.jobs.Enqueue(ctx, steamid, domain.OpDelete, jobs.PriorityDelete); err != nil {
		return err
	}
	return l.jobs.Enqueue(ctx, steamid, domain.OpDeleteArchived, jobs.PriorityDelete)
}

func (l *Listener) scheduleCreateIfPending(ctx context.Context, steamid string) error {
	running, err := l.store.AgentRunning(ctx, steamid)
	if err != nil || !running {
		return err
	}
	sizes, err := l.store.QueueSizes(ctx, steamid)
	if err != nil {
		return err
	}
	if sizes.Create == 0 {
		return nil
	}
	return l.jobs.Enqueue(ctx, steamid, domain.OpCreate, jobs.PriorityCreate)
}
