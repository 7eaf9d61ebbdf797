package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/listingd/internal/logger"
)

func newTestManager(t *testing.T, wait time.Duration) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewManager(client, logger.NewNop(), Options{Wait: wait, RetryDelay: 5 * time.Millisecond}), mr
}

func TestWithLockRunsAndReleases(t *testing.T) {
	m, mr := newTestManager(t, 50*time.Millisecond)
	ctx := context.Background()

	ran := false
	err := m.WithLock(ctx, Account("a"), time.Second, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(keyPrefix+"account:a"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(keyPrefix+"account:a"), "lock must be released")
}

func TestWithLockReleasesOnError(t *testing.T) {
	m, mr := newTestManager(t, 50*time.Millisecond)
	boom := errors.New("boom")

	err := m.WithLock(context.Background(), Hashes("a", "h1", "h2"), time.Second, func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(keyPrefix+"account:a:m:h1"))
	assert.False(t, mr.Exists(keyPrefix+"account:a:holders"))
}

func TestWithLockIsExclusive(t *testing.T) {
	m, _ := newTestManager(t, 20*time.Millisecond)
	ctx := context.Background()

	err := m.WithLock(ctx, Account("a"), time.Second, func(ctx context.Context) error {
		inner := m.WithLock(ctx, Account("a"), time.Second, func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, ErrNotAcquired)

		other := m.WithLock(ctx, Account("b"), time.Second, func(context.Context) error { return nil })
		assert.NoError(t, other, "accounts are independent")
		return nil
	})
	require.NoError(t, err)
}

func TestScopeAndMembersExcludeEachOther(t *testing.T) {
	m, _ := newTestManager(t, 20*time.Millisecond)
	ctx := context.Background()

	err := m.WithLock(ctx, Hashes("a", "h1"), time.Second, func(ctx context.Context) error {
		assert.ErrorIs(t, m.WithLock(ctx, Account("a"), time.Second, noop), ErrNotAcquired)
		assert.ErrorIs(t, m.WithLock(ctx, Hashes("a", "h2", "h1"), time.Second, noop), ErrNotAcquired)
		assert.NoError(t, m.WithLock(ctx, Hashes("a", "h2"), time.Second, noop), "disjoint hashes run concurrently")
		return nil
	})
	require.NoError(t, err)

	err = m.WithLock(ctx, Account("a"), time.Second, func(ctx context.Context) error {
		assert.ErrorIs(t, m.WithLock(ctx, Hashes("a", "h1"), time.Second, noop), ErrNotAcquired)
		return nil
	})
	require.NoError(t, err)
}

func TestExecutorLockIsIndependentOfState(t *testing.T) {
	m, _ := newTestManager(t, 20*time.Millisecond)
	ctx := context.Background()

	err := m.WithLock(ctx, Executor("a"), time.Second, func(ctx context.Context) error {
		return m.WithLock(ctx, Account("a"), time.Second, noop)
	})
	require.NoError(t, err)
}

func TestWithLockWaitsForRelease(t *testing.T) {
	m, _ := newTestManager(t, 2*time.Second)
	ctx := context.Background()

	var held atomic.Bool
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.WithLock(ctx, Account("a"), time.Second, func(context.Context) error {
			held.Store(true)
			close(started)
			time.Sleep(50 * time.Millisecond)
			held.Store(false)
			return nil
		})
	}()

	<-started
	err := m.WithLock(ctx, Account("a"), time.Second, func(context.Context) error {
		assert.False(t, held.Load(), "critical sections overlapped")
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestLostLeaseCancelsCriticalSection(t *testing.T) {
	m, mr := newTestManager(t, 50*time.Millisecond)

	err := m.WithLock(context.Background(), Account("a"), 150*time.Millisecond, func(ctx context.Context) error {
		mr.Del(keyPrefix + "account:a")
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-time.After(2 * time.Second):
			return errors.New("lease loss not detected")
		}
	})
	require.ErrorIs(t, err, ErrLockLost)
}

func TestReleaseDoesNotStealForeignLock(t *testing.T) {
	m, mr := newTestManager(t, 50*time.Millisecond)

	err := m.WithLock(context.Background(), Account("a"), time.Minute, func(ctx context.Context) error {
		// simulate expiry followed by another owner taking the key
		require.NoError(t, mr.Set(keyPrefix+"account:a", "someone-else"))
		return nil
	})
	require.NoError(t, err)

	got, err := mr.Get(keyPrefix + "account:a")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func noop(context.Context) error { return nil }
