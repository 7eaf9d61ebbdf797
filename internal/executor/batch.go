package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/listener"
	"github.com/MrSnakeDoc/listingd/internal/logger"
	"github.com/MrSnakeDoc/listingd/internal/marketplace"
)

func (e *Executor) runCreate(ctx context.Context, steamid string) (bool, error) {
	running, err := e.store.AgentRunning(ctx, steamid)
	if err != nil {
		return false, err
	}
	if !running {
		e.logger.Debug("agent not running, create batch skipped", logger.SteamID(steamid))
		return false, nil
	}

	size := e.cfg.CreateBatchSize
	hashes, err := e.store.DrainCreate(ctx, steamid, size)
	if err != nil || len(hashes) == 0 {
		return false, err
	}

	records, err := e.store.GetDesired(ctx, steamid, hashes)
	if err != nil {
		return false, err
	}

	outcomes := make([]listener.CreateOutcome, 0, len(hashes))
	send := make([]*domain.DesiredListing, 0, len(hashes))
	for _, h := range hashes {
		d, ok := records[h]
		if !ok {
			outcomes = append(outcomes, listener.CreateOutcome{
				Hash:    h,
				Message: "desired listing missing",
				Class:   domain.ErrorUnknown,
			})
			continue
		}
		if err := d.Listing.Currencies.Validate(); err != nil {
			outcomes = append(outcomes, listener.CreateOutcome{
				Hash:    h,
				Sent:    d.UpdatedAt,
				Message: err.Error(),
				Class:   domain.ErrorInvalidCurrencies,
			})
			continue
		}
		send = append(send, d)
	}

	if len(send) > 0 {
		token, err := e.acquire(ctx, steamid, domain.OpCreate)
		if err != nil {
			return false, err
		}

		specs := make([]domain.ListingSpec, len(send))
		for i, d := range send {
			specs[i] = d.Listing
		}

		started := time.Now()
		results, err := e.api.CreateBatch(ctx, token, specs)
		if err := e.observe(ctx, steamid, domain.OpCreate, started, err); err != nil {
			return false, err
		}

		if len(results) != len(send) {
			return false, fmt.Errorf("create batch returned %d results for %d listings", len(results), len(send))
		}
		for i, d := range send {
			outcomes = append(outcomes, createOutcome(d, results[i]))
		}
	}

	summary, err := e.listener.OnCreateBatch(ctx, steamid, outcomes)
	if err != nil {
		return false, err
	}
	if summary.CapReached {
		// a delete batch reschedules creation once slots are free
		e.logger.Warn("listing cap reached", logger.SteamID(steamid))
		return false, nil
	}
	return len(hashes) == size, nil
}

func createOutcome(d *domain.DesiredListing, r marketplace.CreateResult) listener.CreateOutcome {
	o := listener.CreateOutcome{Hash: d.Hash, Sent: d.UpdatedAt}
	if r.Result != nil && r.Result.ID != "" {
		o.Listing = r.Result
		return o
	}
	if r.Error != nil {
		o.Message = r.Error.Message
	}
	return o
}

func (e *Executor) runDelete(ctx context.Context, steamid string, op domain.Operation) (bool, error) {
	size := e.BatchSize(op)
	ids, err := e.store.DrainDelete(ctx, steamid, op, size)
	if err != nil || len(ids) == 0 {
		return false, err
	}

	token, err := e.acquire(ctx, steamid, op)
	if err != nil {
		return false, err
	}

	var res *marketplace.DeleteResult
	started := time.Now()
	if op == domain.OpDelete {
		res, err = e.api.DeleteBatch(ctx, token, ids)
	} else {
		res, err = e.api.DeleteArchivedBatch(ctx, token, ids)
	}
	if err := e.observe(ctx, steamid, op, started, err); err != nil {
		return false, err
	}

	if res != nil && len(res.Errors) > 0 {
		e.logger.Debug("marketplace refused some deletes",
			logger.SteamID(steamid),
			logger.String("op", string(op)),
			logger.Int("refused", len(res.Errors)),
		)
	}

	if err := e.listener.OnDeleteBatch(ctx, steamid, op, ids); err != nil {
		return false, err
	}
	return len(ids) == size, nil
}

func (e *Executor) runDeleteAll(ctx context.Context, steamid string) error {
	token, err := e.acquire(ctx, steamid, domain.OpDeleteAll)
	if err != nil {
		return err
	}
	started := time.Now()
	active, err := e.api.DeleteAll(ctx, token)
	if err := e.observe(ctx, steamid, domain.OpDeleteAll, started, err); err != nil {
		return err
	}

	if _, err := e.acquire(ctx, steamid, domain.OpDeleteAll); err != nil {
		return err
	}
	started = time.Now()
	archived, err := e.api.DeleteAllArchived(ctx, token)
	if err := e.observe(ctx, steamid, domain.OpDeleteAll, started, err); err != nil {
		return err
	}

	e.logger.Info("marketplace listings wiped",
		logger.SteamID(steamid),
		logger.Int("active", active),
		logger.Int("archived", archived),
	)
	return e.listener.OnDeleteAllCompleted(ctx, steamid)
}
