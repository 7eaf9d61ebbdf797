package listener

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/events"
	"github.com/MrSnakeDoc/listingd/internal/lock"
	"github.com/MrSnakeDoc/listingd/internal/logger"
	redisstore "github.com/MrSnakeDoc/listingd/internal/store/redis"
)

// OnDeleteBatch applies a confirmed delete batch. Every id is dropped from the
// queue it came from, whether the marketplace deleted it or refused for good.
func (l *Listener) OnDeleteBatch(ctx context.Context, steamid string, op domain.Operation, ids []string) error {
	if op != domain.OpDelete && op != domain.OpDeleteArchived {
		return fmt.Errorf("not a delete operation: %q", op)
	}
	if len(ids) == 0 {
		return nil
	}

	var forgotten, retained []string
	var requeue bool
	err := l.locks.WithLock(ctx, lock.Account(steamid), l.lockTTL, func(ctx context.Context) error {
		forgotten, retained, requeue = nil, nil, false

		kept := map[string]bool{}
		if op == domain.OpDelete {
			var err error
			if kept, err = l.store.KeptAmong(ctx, steamid, ids); err != nil {
				return err
			}
		}

		for _, id := range ids {
			if kept[id] {
				retained = append(retained, id)
			} else {
				forgotten = append(forgotten, id)
			}
		}

		owners, err := l.store.OwnersOf(ctx, steamid, forgotten)
		if err != nil {
			return err
		}
		ownerHashes := make([]string, 0, len(owners))
		for _, h := range owners {
			ownerHashes = append(ownerHashes, h)
		}
		records, err := l.store.GetDesired(ctx, steamid, ownerHashes)
		if err != nil {
			return err
		}

		now := l.now()
		return l.store.Commit(ctx, func(tx *redisstore.Tx) error {
			if err := tx.DequeueDelete(steamid, op, ids...); err != nil {
				return err
			}

			// the archived copy of a superseded listing lives on
			tx.Unkeep(steamid, retained...)
			tx.DeleteCurrent(steamid, forgotten...)

			for _, id := range forgotten {
				d := records[owners[id]]
				if d == nil || d.ExternalIDValue() != id {
					continue
				}
				// still desired: it has to be listed again
				d.ExternalID = nil
				d.UpdatedAt = now
				if err := tx.PutDesired(d); err != nil {
					return err
				}
				if !d.Error.IsTerminal() {
					tx.EnqueueCreate(steamid, d.Hash, d.Priority)
					requeue = true
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("apply %s batch %s: %w", op, steamid, err)
	}

	l.logger.Info("delete batch applied",
		logger.SteamID(steamid),
		logger.String("op", string(op)),
		logger.Int("forgotten", len(forgotten)),
		logger.Int("retained", len(retained)),
	)

	events.Emit(ctx, l.publisher, l.logger, events.Event{Name: events.CurrentDeleted, SteamID64: steamid, IDs: ids})

	if requeue {
		l.logger.Warn("deleted listings were still desired, requeued", logger.SteamID(steamid))
	}

	// freed slots may unblock creations held back by the listing cap
	return l.scheduleCreateIfPending(ctx, steamid)
}
