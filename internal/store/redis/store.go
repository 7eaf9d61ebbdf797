package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store handles Redis operations for desired state, current state and work queues
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// Client exposes the underlying connection for components sharing the keyspace
func (s *Store) Client() *redis.Client {
	return s.client
}

// Ping checks that Redis answers
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Tx collects writes that are committed together by Store.Commit
type Tx struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

// Commit runs fn against a MULTI/EXEC pipeline and executes it atomically.
// ctx doubles as the fence: when it is done (lock lost, caller gone) nothing is written.
func (s *Store) Commit(ctx context.Context, fn func(tx *Tx) error) error {
	pipe := s.client.TxPipeline()
	tx := &Tx{ctx: ctx, pipe: pipe}

	if err := fn(tx); err != nil {
		pipe.Discard()
		return err
	}

	if err := ctx.Err(); err != nil {
		pipe.Discard()
		return fmt.Errorf("commit aborted: %w", context.Cause(ctx))
	}

	if pipe.Len() == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func decode[T any](raw string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// hmget returns the decoded values present for fields, keyed by field
func hmget[T any](ctx context.Context, client *redis.Client, key string, fields []string) (map[string]*T, error) {
	out := make(map[string]*T, len(fields))
	if len(fields) == 0 {
		return out, nil
	}

	values, err := client.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		decoded, err := decode[T](raw)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s/%s: %w", key, fields[i], err)
		}
		out[fields[i]] = decoded
	}
	return out, nil
}

func hgetall[T any](ctx context.Context, client *redis.Client, key string) (map[string]*T, error) {
	values, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	out := make(map[string]*T, len(values))
	for field, raw := range values {
		decoded, err := decode[T](raw)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s/%s: %w", key, field, err)
		}
		out[field] = decoded
	}
	return out, nil
}
