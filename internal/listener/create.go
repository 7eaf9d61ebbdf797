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
	"github.com/MrSnakeDoc/listingd/internal/metrics"
	redisstore "github.com/MrSnakeDoc/listingd/internal/store/redis"
)

// CreateOutcome is the result of one element of a create batch
type CreateOutcome struct {
	Hash string
	// Sent is the UpdatedAt of the desired record that was sent. A record
	// changed after that stays queued so the newer spec goes out too.
	Sent time.Time

	Listing *domain.Listing // nil on failure
	Message string          // marketplace failure message
	Class   domain.ListingError
}

// Failed reports whether the element was refused
func (o CreateOutcome) Failed() bool {
	return o.Listing == nil
}

// CreateSummary counts what a create batch did
type CreateSummary struct {
	Created     int
	Updated     int
	Failed      int
	Overwritten int
	CapReached  bool
}

// OnCreateBatch applies the results of a create batch to both stores and the queues
func (l *Listener) OnCreateBatch(ctx context.Context, steamid string, outcomes []CreateOutcome) (CreateSummary, error) {
	var (
		summary       CreateSummary
		createdIDs    []string
		createdHashes []string
		failedHashes  []string
		needDelete    bool
		needCreate    bool
	)

	err := l.locks.WithLock(ctx, lock.Account(steamid), l.lockTTL, func(ctx context.Context) error {
		summary = CreateSummary{}
		createdIDs, createdHashes, failedHashes = nil, nil, nil
		needDelete, needCreate = false, false

		hashes := make([]string, 0, len(outcomes))
		var ids []string
		for _, o := range outcomes {
			hashes = append(hashes, o.Hash)
			if !o.Failed() {
				ids = append(ids, o.Listing.ID)
			}
		}

		records, err := l.store.GetDesired(ctx, steamid, hashes)
		if err != nil {
			return err
		}
		owners, err := l.store.OwnersOf(ctx, steamid, ids)
		if err != nil {
			return err
		}

		// previous owners of the returned ids may be overwritten
		var others []string
		for _, owner := range owners {
			if _, ok := records[owner]; !ok {
				others = append(others, owner)
			}
		}
		if len(others) > 0 {
			more, err := l.store.GetDesired(ctx, steamid, others)
			if err != nil {
				return err
			}
			for h, d := range more {
				records[h] = d
			}
		}

		stamps := make(map[string]time.Time, len(records))
		for h, d := range records {
			stamps[h] = d.UpdatedAt
		}

		now := l.now()
		overwritten := make(map[string]bool)

		return l.store.Commit(ctx, func(tx *redisstore.Tx) error {
			for _, o := range outcomes {
				d := records[o.Hash]

				if o.Failed() {
					class, capReached := o.Class, false
					if class == "" {
						class, capReached = domain.ClassifyError(o.Message)
					}
					if capReached {
						summary.CapReached = true
						metrics.Listings.WithLabelValues("cap_reached").Inc()
						continue
					}

					// the refusal was for an older spec; the newer one still has to go out
					if d != nil && stamps[o.Hash].After(o.Sent) {
						metrics.Listings.WithLabelValues("stale").Inc()
						needCreate = true
						continue
					}

					summary.Failed++
					failedHashes = append(failedHashes, o.Hash)
					metrics.Listings.WithLabelValues("failed").Inc()

					if d != nil {
						d.Error = class
						d.ErrorMessage = o.Message
						d.LastAttemptedAt = &now
						d.UpdatedAt = now
						if err := tx.PutDesired(d); err != nil {
							return err
						}
					}
					tx.DequeueCreate(steamid, o.Hash)
					continue
				}

				listing := *o.Listing
				if listing.SteamID64 == "" {
					listing.SteamID64 = steamid
				}

				if listing.IsUpdate() {
					summary.Updated++
					metrics.Listings.WithLabelValues("updated").Inc()
				} else {
					summary.Created++
					metrics.Listings.WithLabelValues("created").Inc()
				}
				createdIDs = append(createdIDs, listing.ID)

				// another hash held this id: the marketplace reused the slot
				if prev, ok := owners[listing.ID]; ok && prev != o.Hash {
					if other := records[prev]; other != nil && other.ExternalIDValue() == listing.ID && !overwritten[prev] {
						other.ExternalID = nil
						other.Error = domain.ErrorOverwritten
						other.ErrorMessage = ""
						other.UpdatedAt = now
						if err := tx.PutDesired(other); err != nil {
							return err
						}
						tx.EnqueueCreate(steamid, prev, other.Priority)
						overwritten[prev] = true
						summary.Overwritten++
						needCreate = true
					}
				}
				owners[listing.ID] = o.Hash

				if err := tx.PutCurrent(&listing, o.Hash); err != nil {
					return err
				}
				if err := tx.DequeueDelete(steamid, domain.OpDeleteArchived, listing.ID); err != nil {
					return err
				}

				if listing.Archived {
					// superseded active copy: delete it but keep the bookkeeping
					if err := tx.EnqueueDelete(steamid, domain.OpDelete, listing.ID); err != nil {
						return err
					}
					tx.Keep(steamid, listing.ID)
					needDelete = true
				} else if err := tx.DequeueDelete(steamid, domain.OpDelete, listing.ID); err != nil {
					return err
				}

				if d == nil {
					// removed while the batch was in flight
					if err := tx.EnqueueDelete(steamid, domain.OpDelete, listing.ID); err != nil {
						return err
					}
					if err := tx.EnqueueDelete(steamid, domain.OpDeleteArchived, listing.ID); err != nil {
						return err
					}
					tx.Unkeep(steamid, listing.ID)
					needDelete = true
					continue
				}

				changedMeanwhile := stamps[o.Hash].After(o.Sent)
				id := listing.ID
				d.ExternalID = &id
				d.Error = ""
				d.ErrorMessage = ""
				d.LastAttemptedAt = &now
				d.UpdatedAt = now
				if overwritten[o.Hash] {
					// this batch also reassigned our own earlier id
					delete(overwritten, o.Hash)
					summary.Overwritten--
				}
				if err := tx.PutDesired(d); err != nil {
					return err
				}
				if changedMeanwhile {
					needCreate = true
				} else {
					tx.DequeueCreate(steamid, o.Hash)
				}
				createdHashes = append(createdHashes, o.Hash)
			}
			return nil
		})
	})
	if err != nil {
		return CreateSummary{}, fmt.Errorf("apply create batch %s: %w", steamid, err)
	}

	l.logger.Info("create batch applied",
		logger.SteamID(steamid),
		logger.Int("created", summary.Created),
		logger.Int("updated", summary.Updated),
		logger.Int("failed", summary.Failed),
		logger.Int("overwritten", summary.Overwritten),
		logger.Bool("cap_reached", summary.CapReached),
	)

	events.Emit(ctx, l.publisher, l.logger, events.Event{Name: events.CurrentCreated, SteamID64: steamid, Hashes: createdHashes, IDs: createdIDs})
	events.Emit(ctx, l.publisher, l.logger, events.Event{Name: events.DesiredCreated, SteamID64: steamid, Hashes: createdHashes})
	events.Emit(ctx, l.publisher, l.logger, events.Event{Name: events.CurrentFailed, SteamID64: steamid, Hashes: failedHashes})

	if needDelete {
		if err := l.jobs.Enqueue(ctx, steamid, domain.OpDelete, jobs.PriorityDelete); err != nil {
			return summary, err
		}
		if err := l.jobs.Enqueue(ctx, steamid, domain.OpDeleteArchived, jobs.PriorityDelete); err != nil {
			return summary, err
		}
	}
	if needCreate {
		if err := l.jobs.Enqueue(ctx, steamid, domain.OpCreate, jobs.PriorityCreate); err != nil {
			return summary, err
		}
	}
	return summary, nil
}
