package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/listingd/internal/domain"
)

// NoPriorityScore sorts listings without a priority after every prioritized one
const NoPriorityScore = 1e15

// QueueSizes reports the pending work of an account
type QueueSizes struct {
	Create         int64 `json:"create"`
	Delete         int64 `json:"delete"`
	DeleteArchived int64 `json:"deleteArchived"`
}

func priorityScore(priority *int) float64 {
	if priority == nil {
		return NoPriorityScore
	}
	return float64(*priority)
}

// DrainCreate returns up to n hashes with the lowest priority value
func (s *Store) DrainCreate(ctx context.Context, steamid string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	hashes, err := s.client.ZRange(ctx, CreateQueueKey(steamid), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to drain create queue: %w", err)
	}
	return hashes, nil
}

// DrainDelete returns up to n arbitrary ids waiting for the given delete kind
func (s *Store) DrainDelete(ctx context.Context, steamid string, op domain.Operation, n int) ([]string, error) {
	key, err := DeleteQueueKey(steamid, op)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	ids, err := s.client.SRandMemberN(ctx, key, int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to drain %s queue: %w", op, err)
	}
	return ids, nil
}

// QueueSizes counts pending work for an account
func (s *Store) QueueSizes(ctx context.Context, steamid string) (QueueSizes, error) {
	deleteKey, _ := DeleteQueueKey(steamid, domain.OpDelete)
	archivedKey, _ := DeleteQueueKey(steamid, domain.OpDeleteArchived)

	var create, del, archived *redis.IntCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		create = pipe.ZCard(ctx, CreateQueueKey(steamid))
		del = pipe.SCard(ctx, deleteKey)
		archived = pipe.SCard(ctx, archivedKey)
		return nil
	})
	if err != nil {
		return QueueSizes{}, fmt.Errorf("failed to count queues: %w", err)
	}

	return QueueSizes{
		Create:         create.Val(),
		Delete:         del.Val(),
		DeleteArchived: archived.Val(),
	}, nil
}

// EnqueueCreate schedules a hash for creation with its priority
func (tx *Tx) EnqueueCreate(steamid, hash string, priority *int) {
	tx.pipe.ZAdd(tx.ctx, CreateQueueKey(steamid), redis.Z{Score: priorityScore(priority), Member: hash})
}

// DequeueCreate removes hashes from the create queue
func (tx *Tx) DequeueCreate(steamid string, hashes ...string) {
	if len(hashes) == 0 {
		return
	}
	tx.pipe.ZRem(tx.ctx, CreateQueueKey(steamid), toArgs(hashes)...)
}

// ClearCreate empties the create queue
func (tx *Tx) ClearCreate(steamid string) {
	tx.pipe.Del(tx.ctx, CreateQueueKey(steamid))
}

// EnqueueDelete adds ids to a delete queue
func (tx *Tx) EnqueueDelete(steamid string, op domain.Operation, ids ...string) error {
	key, err := DeleteQueueKey(steamid, op)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		tx.pipe.SAdd(tx.ctx, key, toArgs(ids)...)
	}
	return nil
}

// DequeueDelete removes ids from a delete queue
func (tx *Tx) DequeueDelete(steamid string, op domain.Operation, ids ...string) error {
	key, err := DeleteQueueKey(steamid, op)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		tx.pipe.SRem(tx.ctx, key, toArgs(ids)...)
	}
	return nil
}

// ClearDelete empties a delete queue
func (tx *Tx) ClearDelete(steamid string, op domain.Operation) error {
	key, err := DeleteQueueKey(steamid, op)
	if err != nil {
		return err
	}
	tx.pipe.Del(tx.ctx, key)
	return nil
}
