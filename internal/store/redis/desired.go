package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/MrSnakeDoc/listingd/internal/domain"
)

// GetDesired reads the desired listings of an account for the given hashes in one round trip.
// Hashes without a record are absent from the result.
func (s *Store) GetDesired(ctx context.Context, steamid string, hashes []string) (map[string]*domain.DesiredListing, error) {
	return hmget[domain.DesiredListing](ctx, s.client, DesiredKey(steamid), hashes)
}

// AllDesired returns every desired listing of an account, ordered by hash
func (s *Store) AllDesired(ctx context.Context, steamid string) ([]*domain.DesiredListing, error) {
	all, err := hgetall[domain.DesiredListing](ctx, s.client, DesiredKey(steamid))
	if err != nil {
		return nil, err
	}

	out := make([]*domain.DesiredListing, 0, len(all))
	for _, d := range all {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out, nil
}

// Accounts returns every account that has had desired state
func (s *Store) Accounts(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, KeyAccounts).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// PutDesired stores a desired listing. Force is never persisted.
func (tx *Tx) PutDesired(d *domain.DesiredListing) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal desired listing %s: %w", d.Hash, err)
	}
	tx.pipe.HSet(tx.ctx, DesiredKey(d.SteamID64), d.Hash, data)
	tx.pipe.SAdd(tx.ctx, KeyAccounts, d.SteamID64)
	return nil
}

// DeleteDesired removes desired listings by hash
func (tx *Tx) DeleteDesired(steamid string, hashes ...string) {
	if len(hashes) == 0 {
		return
	}
	tx.pipe.HDel(tx.ctx, DesiredKey(steamid), hashes...)
}
