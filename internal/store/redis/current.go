package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/MrSnakeDoc/listingd/internal/domain"
)

// GetCurrent reads current listings by marketplace id
func (s *Store) GetCurrent(ctx context.Context, steamid string, ids []string) (map[string]*domain.Listing, error) {
	return hmget[domain.Listing](ctx, s.client, CurrentKey(steamid), ids)
}

// AllCurrent returns every tracked current listing of an account, ordered by id
func (s *Store) AllCurrent(ctx context.Context, steamid string) ([]*domain.Listing, error) {
	all, err := hgetall[domain.Listing](ctx, s.client, CurrentKey(steamid))
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Listing, 0, len(all))
	for _, l := range all {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// OwnersOf returns, for each id that has one, the desired hash that created it
func (s *Store) OwnersOf(ctx context.Context, steamid string, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	values, err := s.client.HMGet(ctx, OwnersKey(steamid), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get listing owners: %w", err)
	}
	for i, v := range values {
		if hash, ok := v.(string); ok {
			out[ids[i]] = hash
		}
	}
	return out, nil
}

// KeptAmong returns the subset of ids flagged do-not-delete
func (s *Store) KeptAmong(ctx context.Context, steamid string, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	flags, err := s.client.SMIsMember(ctx, KeepKey(steamid), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check kept listings: %w", err)
	}
	for i, kept := range flags {
		if kept {
			out[ids[i]] = true
		}
	}
	return out, nil
}

// PutCurrent stores a snapshot and remembers which desired hash owns it
func (tx *Tx) PutCurrent(l *domain.Listing, owner string) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal listing %s: %w", l.ID, err)
	}
	tx.pipe.HSet(tx.ctx, CurrentKey(l.SteamID64), l.ID, data)
	if owner != "" {
		tx.pipe.HSet(tx.ctx, OwnersKey(l.SteamID64), l.ID, owner)
	}
	return nil
}

// DeleteCurrent forgets snapshots and their owners
func (tx *Tx) DeleteCurrent(steamid string, ids ...string) {
	if len(ids) == 0 {
		return
	}
	tx.pipe.HDel(tx.ctx, CurrentKey(steamid), ids...)
	tx.pipe.HDel(tx.ctx, OwnersKey(steamid), ids...)
}

// ClearCurrent forgets every snapshot of an account
func (tx *Tx) ClearCurrent(steamid string) {
	tx.pipe.Del(tx.ctx, CurrentKey(steamid), OwnersKey(steamid), KeepKey(steamid))
}

// Keep flags ids as superseded: deleting them must not touch bookkeeping
func (tx *Tx) Keep(steamid string, ids ...string) {
	if len(ids) == 0 {
		return
	}
	tx.pipe.SAdd(tx.ctx, KeepKey(steamid), toArgs(ids)...)
}

// Unkeep clears the do-not-delete flag
func (tx *Tx) Unkeep(steamid string, ids ...string) {
	if len(ids) == 0 {
		return
	}
	tx.pipe.SRem(tx.ctx, KeepKey(steamid), toArgs(ids)...)
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
