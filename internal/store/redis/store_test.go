package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/listingd/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client), mr
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestDesiredRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	d := &domain.DesiredListing{
		Hash:       "h1",
		SteamID64:  "76561198000000001",
		Listing:    domain.ListingSpec{ID: "1234"},
		ExternalID: strPtr("e1"),
		Priority:   intPtr(3),
		Error:      domain.ErrorUnknown,
		Force:      true,
	}

	err := store.Commit(ctx, func(tx *Tx) error {
		return tx.PutDesired(d)
	})
	require.NoError(t, err)

	got, err := store.GetDesired(ctx, d.SteamID64, []string{"h1", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got["h1"].ExternalIDValue())
	assert.Equal(t, 3, *got["h1"].Priority)
	assert.Equal(t, domain.ErrorUnknown, got["h1"].Error)
	assert.False(t, got["h1"].Force, "force must never be persisted")

	accounts, err := store.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{d.SteamID64}, accounts)

	require.NoError(t, store.Commit(ctx, func(tx *Tx) error {
		tx.DeleteDesired(d.SteamID64, "h1")
		return nil
	}))
	all, err := store.AllDesired(ctx, d.SteamID64)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCommitIsFenced(t *testing.T) {
	store, mr := newTestStore(t)

	lost := errors.New("lock lost")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(lost)

	err := store.Commit(ctx, func(tx *Tx) error {
		tx.EnqueueCreate("a", "h1", nil)
		return nil
	})
	require.ErrorIs(t, err, lost)
	assert.False(t, mr.Exists(CreateQueueKey("a")), "nothing may be written once the fence is down")
}

func TestCommitDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	boom := errors.New("boom")
	err := store.Commit(ctx, func(tx *Tx) error {
		tx.EnqueueCreate("a", "h1", nil)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(CreateQueueKey("a")))
}

func TestCreateQueueOrdering(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Commit(ctx, func(tx *Tx) error {
		tx.EnqueueCreate("a", "none", nil)
		tx.EnqueueCreate("a", "second", intPtr(5))
		tx.EnqueueCreate("a", "first", intPtr(-1))
		return nil
	}))

	hashes, err := store.DrainCreate(ctx, "a", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, hashes)

	hashes, err = store.DrainCreate(ctx, "a", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "none"}, hashes)

	require.NoError(t, store.Commit(ctx, func(tx *Tx) error {
		tx.DequeueCreate("a", "first", "none")
		return nil
	}))
	sizes, err := store.QueueSizes(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, QueueSizes{Create: 1}, sizes)
}

func TestDeleteQueues(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Commit(ctx, func(tx *Tx) error {
		if err := tx.EnqueueDelete("a", domain.OpDelete, "e1", "e2"); err != nil {
			return err
		}
		return tx.EnqueueDelete("a", domain.OpDeleteArchived, "e1")
	}))

	ids, err := store.DrainDelete(ctx, "a", domain.OpDelete, 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e1", "e2"}, ids)

	ids, err = store.DrainDelete(ctx, "a", domain.OpDelete, 1)
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	_, err = store.DrainDelete(ctx, "a", domain.OpCreate, 1)
	assert.Error(t, err)

	require.NoError(t, store.Commit(ctx, func(tx *Tx) error {
		return tx.ClearDelete("a", domain.OpDeleteArchived)
	}))
	sizes, err := store.QueueSizes(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, QueueSizes{Delete: 2}, sizes)
}

func TestCurrentBookkeeping(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Commit(ctx, func(tx *Tx) error {
		if err := tx.PutCurrent(&domain.Listing{ID: "e1", SteamID64: "a", ListedAt: 10, BumpedAt: 10}, "h1"); err != nil {
			return err
		}
		if err := tx.PutCurrent(&domain.Listing{ID: "e2", SteamID64: "a", Archived: true}, "h2"); err != nil {
			return err
		}
		tx.Keep("a", "e2")
		return nil
	}))

	owners, err := store.OwnersOf(ctx, "a", []string{"e1", "e2", "e3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"e1": "h1", "e2": "h2"}, owners)

	kept, err := store.KeptAmong(ctx, "a", []string{"e1", "e2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"e2": true}, kept)

	require.NoError(t, store.Commit(ctx, func(tx *Tx) error {
		tx.DeleteCurrent("a", "e1")
		tx.Unkeep("a", "e2")
		return nil
	}))

	all, err := store.AllCurrent(ctx, "a")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "e2", all[0].ID)
	assert.True(t, all[0].Archived)

	require.NoError(t, store.Commit(ctx, func(tx *Tx) error {
		tx.ClearCurrent("a")
		return nil
	}))
	all, err = store.AllCurrent(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAgents(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Commit(ctx, func(tx *Tx) error {
		tx.SetAgentRunning("a", true)
		tx.SetAgentRunning("b", true)
		return nil
	}))
	running, err := store.AgentRunning(ctx, "a")
	require.NoError(t, err)
	assert.True(t, running)

	require.NoError(t, store.Commit(ctx, func(tx *Tx) error {
		tx.SetAgentRunning("a", false)
		return nil
	}))
	agents, err := store.RunningAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, agents)
}
