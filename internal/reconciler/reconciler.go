package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/lock"
	"github.com/MrSnakeDoc/listingd/internal/logger"
	redisstore "github.com/MrSnakeDoc/listingd/internal/store/redis"
)

// AddRequest asks for a listing to exist on an account
type AddRequest struct {
	Listing  domain.ListingSpec `json:"listing"`
	Priority *int               `json:"priority,omitempty"`
	Force    bool               `json:"force,omitempty"`
}

// Result splits a merged batch into records that need work and records that did not change
type Result struct {
	Changed   []*domain.DesiredListing
	Unchanged []*domain.DesiredListing
}

// Reconciler merges incoming desired listings into the desired store
type Reconciler struct {
	store   *redisstore.Store
	locks   *lock.Manager
	logger  logger.Logger
	lockTTL time.Duration
	now     func() time.Time
}

// New creates a reconciler
func New(store *redisstore.Store, locks *lock.Manager, log logger.Logger, lockTTL time.Duration) *Reconciler {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Reconciler{
		store:   store,
		locks:   locks,
		logger:  log,
		lockTTL: lockTTL,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AddDesired merges a batch of add requests for one account. Changed and new
// records are queued for creation in the same write that stores them.
func (r *Reconciler) AddDesired(ctx context.Context, steamid string, reqs []AddRequest) (Result, error) {
	incoming, hashes, err := prepare(steamid, reqs)
	if err != nil {
		return Result{}, err
	}
	if len(hashes) == 0 {
		return Result{}, nil
	}

	var res Result
	err = r.locks.WithLock(ctx, lock.Hashes(steamid, hashes...), r.lockTTL, func(ctx context.Context) error {
		existing, err := r.store.GetDesired(ctx, steamid, hashes)
		if err != nil {
			return err
		}

		now := r.now()
		res = Result{}
		records := make([]*domain.DesiredListing, 0, len(hashes))
		for _, h := range hashes {
			d := incoming[h]
			changed, err := merge(d, existing[h], now)
			if err != nil {
				return fmt.Errorf("merge %s: %w", h, err)
			}
			records = append(records, d)
			if changed {
				res.Changed = append(res.Changed, d)
			} else {
				res.Unchanged = append(res.Unchanged, d)
			}
		}

		return r.store.Commit(ctx, func(tx *redisstore.Tx) error {
			for _, d := range records {
				if err := tx.PutDesired(d); err != nil {
					return err
				}
			}
			for _, d := range res.Changed {
				tx.EnqueueCreate(steamid, d.Hash, d.Priority)
				if id := d.ExternalIDValue(); id != "" {
					if err := tx.DequeueDelete(steamid, domain.OpDelete, id); err != nil {
						return err
					}
					if err := tx.DequeueDelete(steamid, domain.OpDeleteArchived, id); err != nil {
						return err
					}
				}
			}
			return nil
		})
	})
	if err != nil {
		return Result{}, fmt.Errorf("add desired %s: %w", steamid, err)
	}

	r.logger.Info("desired listings merged",
		logger.SteamID(steamid),
		logger.Int("changed", len(res.Changed)),
		logger.Int("unchanged", len(res.Unchanged)),
	)
	return res, nil
}

// RemoveDesired deletes desired listings by hash and queues their marketplace
// ids for deletion in both the active and the archived set. It returns the
// removed records; unknown hashes are ignored.
func (r *Reconciler) RemoveDesired(ctx context.Context, steamid string, hashes []string) ([]*domain.DesiredListing, error) {
	hashes = dedupe(hashes)
	if len(hashes) == 0 {
		return nil, nil
	}

	var removed []*domain.DesiredListing
	err := r.locks.WithLock(ctx, lock.Hashes(steamid, hashes...), r.lockTTL, func(ctx context.Context) error {
		existing, err := r.store.GetDesired(ctx, steamid, hashes)
		if err != nil {
			return err
		}

		removed = removed[:0]
		for _, h := range hashes {
			if d, ok := existing[h]; ok {
				removed = append(removed, d)
			}
		}
		return r.commitRemoval(ctx, steamid, removed)
	})
	if err != nil {
		return nil, fmt.Errorf("remove desired %s: %w", steamid, err)
	}

	r.logger.Info("desired listings removed",
		logger.SteamID(steamid),
		logger.Int("requested", len(hashes)),
		logger.Int("removed", len(removed)),
	)
	return removed, nil
}

// RemoveAllDesired deletes every desired listing of an account the same way
// RemoveDesired does. The whole account is locked so no add slips in between
// the read and the delete.
func (r *Reconciler) RemoveAllDesired(ctx context.Context, steamid string) ([]*domain.DesiredListing, error) {
	var removed []*domain.DesiredListing
	err := r.locks.WithLock(ctx, lock.Account(steamid), r.lockTTL, func(ctx context.Context) error {
		all, err := r.store.AllDesired(ctx, steamid)
		if err != nil {
			return err
		}
		removed = all
		return r.commitRemoval(ctx, steamid, removed)
	})
	if err != nil {
		return nil, fmt.Errorf("remove all desired %s: %w", steamid, err)
	}

	r.logger.Info("all desired listings removed",
		logger.SteamID(steamid),
		logger.Int("removed", len(removed)),
	)
	return removed, nil
}

// commitRemoval drops the records and queues their marketplace ids for both deletes
func (r *Reconciler) commitRemoval(ctx context.Context, steamid string, removed []*domain.DesiredListing) error {
	if len(removed) == 0 {
		return nil
	}
	return r.store.Commit(ctx, func(tx *redisstore.Tx) error {
		for _, d := range removed {
			tx.DeleteDesired(steamid, d.Hash)
			tx.DequeueCreate(steamid, d.Hash)
			if id := d.ExternalIDValue(); id != "" {
				if err := tx.EnqueueDelete(steamid, domain.OpDelete, id); err != nil {
					return err
				}
				if err := tx.EnqueueDelete(steamid, domain.OpDeleteArchived, id); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// prepare hashes the requests. Requests for the same hash collapse, the last one wins.
func prepare(steamid string, reqs []AddRequest) (map[string]*domain.DesiredListing, []string, error) {
	incoming := make(map[string]*domain.DesiredListing, len(reqs))
	hashes := make([]string, 0, len(reqs))
	for i, req := range reqs {
		h, err := domain.Hash(req.Listing)
		if err != nil {
			return nil, nil, fmt.Errorf("listing %d: %w", i, err)
		}
		if _, seen := incoming[h]; !seen {
			hashes = append(hashes, h)
		}
		incoming[h] = &domain.DesiredListing{
			Hash:      h,
			SteamID64: steamid,
			Listing:   req.Listing,
			Priority:  req.Priority,
			Force:     req.Force,
		}
	}
	return incoming, hashes, nil
}

// merge folds the stored record into the incoming one and reports whether
// the listing needs to be (re)created.
func merge(in, old *domain.DesiredListing, now time.Time) (bool, error) {
	if old == nil {
		in.UpdatedAt = now
		return true, nil
	}

	// an explicit force starts from scratch
	if in.Force {
		in.UpdatedAt = now
		return true, nil
	}

	in.ExternalID = old.ExternalID
	in.Error = old.Error
	in.ErrorMessage = old.ErrorMessage
	in.LastAttemptedAt = old.LastAttemptedAt

	// the marketplace binds inventory by quantity: a new amount means a new
	// listing, but the inherited id stays so the old ad can still be removed
	if !domain.SameQuantity(in.Listing, old.Listing) {
		in.Force = true
		in.UpdatedAt = now
		return true, nil
	}

	different, err := isDifferent(in.Listing, old.Listing)
	if err != nil {
		return false, err
	}
	if different {
		in.UpdatedAt = now
		return true, nil
	}

	in.UpdatedAt = old.UpdatedAt
	return false, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
