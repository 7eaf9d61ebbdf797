package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/listingd/internal/domain"
)

const (
	keyReady      = "listingd:jobs:ready"
	keyActive     = "listingd:jobs:active"
	keyMetaPrefix = "listingd:jobs:meta:"

	// each priority step moves a job this much ahead of its run time
	priorityStep = time.Second
)

// Priorities used by the engine. Deleting frees slots, so deletes go first.
const (
	PriorityCreate    = 0
	PriorityDelete    = 5
	PriorityDeleteAll = 10
)

// Job is one batch operation for one account. At most one job per
// (account, operation) is pending at any time.
type Job struct {
	SteamID         string
	Op              domain.Operation
	Attempts        int
	FirstEnqueuedAt time.Time
}

// ID is the idempotency key of the job
func (j Job) ID() string {
	return string(j.Op) + ":" + j.SteamID
}

func parseID(id string) (domain.Operation, string, error) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 || i == len(id)-1 {
		return "", "", fmt.Errorf("malformed job id %q", id)
	}
	op := domain.Operation(id[:i])
	if !op.Valid() {
		return "", "", fmt.Errorf("unknown operation in job id %q", id)
	}
	return op, id[i+1:], nil
}

// Queue is a Redis-backed delayed job queue keyed by job id
type Queue struct {
	client     *redis.Client
	visibility time.Duration
	now        func() time.Time
}

// NewQueue creates a job queue. A claimed job is handed out again once
// visibility elapses without an ack.
func NewQueue(client *redis.Client, visibility time.Duration) *Queue {
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &Queue{
		client:     client,
		visibility: visibility,
		now:        time.Now,
	}
}

func score(runAt time.Time, priority int) float64 {
	return float64(runAt.Add(-time.Duration(priority) * priorityStep).UnixMilli())
}

// Enqueue schedules op for an account now. It is a no-op while the same job is pending.
func (q *Queue) Enqueue(ctx context.Context, steamid string, op domain.Operation, priority int) error {
	if !op.Valid() {
		return fmt.Errorf("unknown operation %q", op)
	}
	job := Job{SteamID: steamid, Op: op}
	now := q.now()
	err := enqueueScript.Run(ctx, q.client,
		[]string{keyReady, keyMetaPrefix + job.ID()},
		job.ID(), score(now, priority), now.UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", job.ID(), err)
	}
	return nil
}

// Claim takes the next due job, or returns nil when none is due
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	now := q.now()
	res, err := claimScript.Run(ctx, q.client,
		[]string{keyReady, keyActive},
		now.UnixMilli(), q.visibility.Milliseconds(), keyMetaPrefix,
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("unexpected claim reply %v", res)
	}

	op, steamid, err := parseID(res[0])
	if err != nil {
		return nil, err
	}
	attempts, _ := strconv.Atoi(res[1])
	first, _ := strconv.ParseInt(res[2], 10, 64)

	return &Job{
		SteamID:         steamid,
		Op:              op,
		Attempts:        attempts,
		FirstEnqueuedAt: time.UnixMilli(first),
	}, nil
}

// Ack marks a claimed job done
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	err := ackScript.Run(ctx, q.client,
		[]string{keyActive, keyReady, keyMetaPrefix + job.ID()},
		job.ID(), q.now().UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to ack %s: %w", job.ID(), err)
	}
	return nil
}

// Retry puts a claimed job back to run at runAt
func (q *Queue) Retry(ctx context.Context, job *Job, runAt time.Time) error {
	err := retryScript.Run(ctx, q.client,
		[]string{keyActive, keyReady, keyMetaPrefix + job.ID()},
		job.ID(), score(runAt, 0),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to retry %s: %w", job.ID(), err)
	}
	return nil
}

// Abandon drops a claimed job. A pending re-enqueue of the same job survives.
func (q *Queue) Abandon(ctx context.Context, job *Job) error {
	return q.Ack(ctx, job)
}

// Reap re-queues claimed jobs whose worker disappeared
func (q *Queue) Reap(ctx context.Context) (int, error) {
	n, err := reapScript.Run(ctx, q.client,
		[]string{keyActive, keyReady},
		q.now().UnixMilli(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to reap jobs: %w", err)
	}
	return n, nil
}

// Pending reports how many jobs wait to run, including delayed retries
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, keyReady).Result()
}
