package reconciler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/events"
	"github.com/MrSnakeDoc/listingd/internal/listener"
	"github.com/MrSnakeDoc/listingd/internal/lock"
	"github.com/MrSnakeDoc/listingd/internal/logger"
	redisstore "github.com/MrSnakeDoc/listingd/internal/store/redis"
)

const steamid = "76561198000000001"

type fakeJobs struct {
	mu  sync.Mutex
	ops []domain.Operation
}

func (f *fakeJobs) Enqueue(_ context.Context, _ string, op domain.Operation, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) byName(name events.Name) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	store      *redisstore.Store
	reconciler *Reconciler
	listener   *listener.Listener
	service    *Service
	jobs       *fakeJobs
	pub        *fakePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := logger.NewNop()
	store := redisstore.NewStore(client)
	locks := lock.NewManager(client, log, lock.Options{Wait: time.Second, RetryDelay: 10 * time.Millisecond})

	f := &fixture{store: store, jobs: &fakeJobs{}, pub: &fakePublisher{}}
	f.reconciler = New(store, locks, log, 5*time.Second)
	f.listener = listener.New(store, locks, f.jobs, f.pub, log, 5*time.Second)
	f.service = NewService(f.reconciler, f.listener, f.pub, log)
	return f
}

func (f *fixture) desired(t *testing.T, hash string) *domain.DesiredListing {
	t.Helper()
	got, err := f.store.GetDesired(context.Background(), steamid, []string{hash})
	require.NoError(t, err)
	return got[hash]
}

func (f *fixture) createQueue(t *testing.T) []string {
	t.Helper()
	hashes, err := f.store.DrainCreate(context.Background(), steamid, 100)
	require.NoError(t, err)
	return hashes
}

func buyListing(quantity int) domain.ListingSpec {
	return domain.ListingSpec{
		Item:       map[string]any{"defindex": 5021, "quality": 6, "quantity": quantity},
		Currencies: domain.Currencies{Keys: decimal.NewFromInt(1), Metal: decimal.RequireFromString("1.5")},
	}
}

func intPtr(i int) *int { return &i }

func TestAddDesiredNew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.reconciler.AddDesired(ctx, steamid, []AddRequest{
		{Listing: buyListing(1), Priority: intPtr(2)},
		{Listing: domain.ListingSpec{ID: "1234", Currencies: domain.Currencies{Keys: decimal.NewFromInt(1)}}},
	})
	require.NoError(t, err)
	require.Len(t, res.Changed, 2)
	assert.Empty(t, res.Unchanged)

	// prioritized first, unprioritized last
	queue := f.createQueue(t)
	require.Len(t, queue, 2)
	assert.Equal(t, res.Changed[0].Hash, queue[0])
	assert.Equal(t, res.Changed[1].Hash, queue[1])

	got := f.desired(t, res.Changed[0].Hash)
	require.NotNil(t, got)
	assert.Equal(t, steamid, got.SteamID64)
	assert.Nil(t, got.ExternalID)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestAddDesiredCollapsesDuplicates(t *testing.T) {
	f := newFixture(t)

	first := buyListing(1)
	second := buyListing(1)
	second.Details = "last one wins"

	res, err := f.reconciler.AddDesired(context.Background(), steamid, []AddRequest{{Listing: first}, {Listing: second}})
	require.NoError(t, err)
	require.Len(t, res.Changed, 1)

	all, err := f.store.AllDesired(context.Background(), steamid)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "last one wins", all[0].Listing.Details)
}

func TestAddDesiredRejectsInvalidSpec(t *testing.T) {
	f := newFixture(t)
	_, err := f.reconciler.AddDesired(context.Background(), steamid, []AddRequest{{Listing: domain.ListingSpec{}}})
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
}

// seedCreated stores a record as if it had been created on the marketplace
func seedCreated(t *testing.T, f *fixture, spec domain.ListingSpec) *domain.DesiredListing {
	t.Helper()
	hash, err := domain.Hash(spec)
	require.NoError(t, err)

	attempted := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id := "123"
	d := &domain.DesiredListing{
		Hash:            hash,
		SteamID64:       steamid,
		Listing:         spec,
		ExternalID:      &id,
		Error:           domain.ErrorUnknown,
		ErrorMessage:    "earlier hiccup",
		LastAttemptedAt: &attempted,
		UpdatedAt:       attempted,
	}
	require.NoError(t, f.store.Commit(context.Background(), func(tx *redisstore.Tx) error {
		return tx.PutDesired(d)
	}))
	return d
}

func TestMergeKeepsIdenticalRecord(t *testing.T) {
	f := newFixture(t)
	old := seedCreated(t, f, buyListing(1))

	// same payload, numbers spelled differently
	var same domain.ListingSpec
	require.NoError(t, json.Unmarshal([]byte(`{
		"item": {"quality": 6.0, "defindex": 5021, "quantity": 1},
		"currencies": {"metal": 1.50, "keys": 1}
	}`), &same))

	res, err := f.service.AddDesired(context.Background(), steamid, []AddRequest{{Listing: same}})
	require.NoError(t, err)
	assert.Empty(t, res.Changed)
	require.Len(t, res.Unchanged, 1)

	got := f.desired(t, old.Hash)
	assert.Equal(t, "123", got.ExternalIDValue())
	assert.Equal(t, domain.ErrorUnknown, got.Error)
	require.NotNil(t, got.LastAttemptedAt)
	assert.True(t, got.LastAttemptedAt.Equal(*old.LastAttemptedAt))
	assert.True(t, got.UpdatedAt.Equal(old.UpdatedAt))

	assert.Empty(t, f.createQueue(t))
	assert.Empty(t, f.pub.byName(events.DesiredAdded), "no notification for unchanged records")
	assert.Empty(t, f.jobs.ops)
}

func TestMergeInheritsOnChange(t *testing.T) {
	f := newFixture(t)
	old := seedCreated(t, f, buyListing(1))

	changed := buyListing(1)
	changed.Currencies.Keys = decimal.NewFromInt(2)

	res, err := f.reconciler.AddDesired(context.Background(), steamid, []AddRequest{{Listing: changed}})
	require.NoError(t, err)
	require.Len(t, res.Changed, 1)

	got := f.desired(t, old.Hash)
	assert.Equal(t, "123", got.ExternalIDValue(), "an update keeps the marketplace id")
	assert.Equal(t, domain.ErrorUnknown, got.Error)
	assert.True(t, got.UpdatedAt.After(old.UpdatedAt))
	assert.Equal(t, []string{old.Hash}, f.createQueue(t))
}

func TestQuantityChangeForcesRecreation(t *testing.T) {
	f := newFixture(t)
	old := seedCreated(t, f, buyListing(1))

	require.NoError(t, f.store.Commit(context.Background(), func(tx *redisstore.Tx) error {
		tx.SetAgentRunning(steamid, true)
		return nil
	}))

	res, err := f.service.AddDesired(context.Background(), steamid, []AddRequest{{Listing: buyListing(2)}})
	require.NoError(t, err)
	require.Len(t, res.Changed, 1)
	assert.Equal(t, old.Hash, res.Changed[0].Hash, "quantity is not part of identity")

	got := f.desired(t, old.Hash)
	assert.Equal(t, "123", got.ExternalIDValue(), "the old ad stays reachable")
	assert.Equal(t, domain.ErrorUnknown, got.Error)
	require.NotNil(t, got.LastAttemptedAt)
	assert.True(t, got.LastAttemptedAt.Equal(*old.LastAttemptedAt))
	assert.True(t, got.UpdatedAt.After(old.UpdatedAt))
	assert.Equal(t, 2, got.Listing.Quantity())
	assert.Equal(t, []string{old.Hash}, f.createQueue(t))

	added := f.pub.byName(events.DesiredAdded)
	require.Len(t, added, 1)
	assert.Equal(t, []string{old.Hash}, added[0].Hashes)
	assert.Equal(t, []domain.Operation{domain.OpCreate}, f.jobs.ops)
}

func TestQuantityChangeThenRemoveDeletesOldAd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := seedCreated(t, f, buyListing(1))

	_, err := f.reconciler.AddDesired(ctx, steamid, []AddRequest{{Listing: buyListing(2)}})
	require.NoError(t, err)

	removed, err := f.reconciler.RemoveDesired(ctx, steamid, []string{old.Hash})
	require.NoError(t, err)
	require.Len(t, removed, 1)

	for _, op := range []domain.Operation{domain.OpDelete, domain.OpDeleteArchived} {
		ids, err := f.store.DrainDelete(ctx, steamid, op, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"123"}, ids, op)
	}
}

func TestExplicitForceInheritsNothing(t *testing.T) {
	f := newFixture(t)
	old := seedCreated(t, f, buyListing(1))

	_, err := f.reconciler.AddDesired(context.Background(), steamid, []AddRequest{{Listing: buyListing(1), Force: true}})
	require.NoError(t, err)

	got := f.desired(t, old.Hash)
	assert.Nil(t, got.ExternalID)
	assert.Empty(t, got.Error)
	assert.Nil(t, got.LastAttemptedAt)
}

func TestForceAlwaysDifferent(t *testing.T) {
	f := newFixture(t)
	seedCreated(t, f, buyListing(1))

	res, err := f.reconciler.AddDesired(context.Background(), steamid, []AddRequest{{Listing: buyListing(1), Force: true}})
	require.NoError(t, err)
	assert.Len(t, res.Changed, 1)
}

func TestChangeClearsPendingDeletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := seedCreated(t, f, buyListing(1))

	require.NoError(t, f.store.Commit(ctx, func(tx *redisstore.Tx) error {
		return tx.EnqueueDelete(steamid, domain.OpDelete, "123")
	}))

	changed := buyListing(1)
	changed.Details = "new text"
	_, err := f.reconciler.AddDesired(ctx, steamid, []AddRequest{{Listing: changed}})
	require.NoError(t, err)

	ids, err := f.store.DrainDelete(ctx, steamid, domain.OpDelete, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, []string{old.Hash}, f.createQueue(t))
}

func TestRemoveDesired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := seedCreated(t, f, buyListing(1))

	res, err := f.reconciler.AddDesired(ctx, steamid, []AddRequest{{Listing: domain.ListingSpec{ID: "999", Currencies: domain.Currencies{Keys: decimal.NewFromInt(3)}}}})
	require.NoError(t, err)
	pending := res.Changed[0]

	removed, err := f.service.RemoveDesired(ctx, steamid, []string{created.Hash, pending.Hash, "unknown", created.Hash})
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	assert.Nil(t, f.desired(t, created.Hash))
	assert.Nil(t, f.desired(t, pending.Hash))
	assert.Empty(t, f.createQueue(t))

	for _, op := range []domain.Operation{domain.OpDelete, domain.OpDeleteArchived} {
		ids, err := f.store.DrainDelete(ctx, steamid, op, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"123"}, ids, op)
	}

	assert.Equal(t, []domain.Operation{domain.OpDelete, domain.OpDeleteArchived}, f.jobs.ops)
	assert.Len(t, f.pub.byName(events.DesiredRemoved), 1)

	none, err := f.reconciler.RemoveDesired(ctx, steamid, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRemoveAllDesired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := seedCreated(t, f, buyListing(1))

	res, err := f.reconciler.AddDesired(ctx, steamid, []AddRequest{{Listing: domain.ListingSpec{ID: "999", Currencies: domain.Currencies{Keys: decimal.NewFromInt(3)}}}})
	require.NoError(t, err)
	pending := res.Changed[0]

	removed, err := f.service.RemoveAllDesired(ctx, steamid)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{created.Hash, pending.Hash}, hashesOf(removed))

	all, err := f.store.AllDesired(ctx, steamid)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.createQueue(t))

	for _, op := range []domain.Operation{domain.OpDelete, domain.OpDeleteArchived} {
		ids, err := f.store.DrainDelete(ctx, steamid, op, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"123"}, ids, op)
	}
	assert.Equal(t, []domain.Operation{domain.OpDelete, domain.OpDeleteArchived}, f.jobs.ops)
	assert.Len(t, f.pub.byName(events.DesiredRemoved), 1)

	again, err := f.service.RemoveAllDesired(ctx, steamid)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestQueueAndStateStayConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var reqs []AddRequest
	for i := 0; i < 20; i++ {
		reqs = append(reqs, AddRequest{Listing: domain.ListingSpec{
			Item:       map[string]any{"defindex": i},
			Currencies: domain.Currencies{Metal: decimal.NewFromInt(int64(i + 1))},
		}})
	}
	res, err := f.reconciler.AddDesired(ctx, steamid, reqs)
	require.NoError(t, err)

	var drop []string
	for i, d := range res.Changed {
		if i%3 == 0 {
			drop = append(drop, d.Hash)
		}
	}
	_, err = f.reconciler.RemoveDesired(ctx, steamid, drop)
	require.NoError(t, err)

	queue := f.createQueue(t)
	all, err := f.store.AllDesired(ctx, steamid)
	require.NoError(t, err)

	stored := make([]string, 0, len(all))
	for _, d := range all {
		stored = append(stored, d.Hash)
	}
	assert.ElementsMatch(t, stored, queue)
}

func TestEndToEndCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.listener.OnAgentStart(ctx, steamid))

	res, err := f.service.AddDesired(ctx, steamid, []AddRequest{{
		Listing: domain.ListingSpec{ID: "1234", Currencies: domain.Currencies{Keys: decimal.NewFromInt(1)}},
	}})
	require.NoError(t, err)
	require.Len(t, res.Changed, 1)

	const h = "7110eda4d09e062aa5e4a390b0a572ac0d2c0220"
	assert.Equal(t, h, res.Changed[0].Hash)

	d := f.desired(t, h)
	require.NotNil(t, d)
	assert.Nil(t, d.ExternalID)
	assert.Equal(t, "1234", d.Listing.ID)
	assert.Equal(t, []string{h}, f.createQueue(t))

	_, err = f.listener.OnCreateBatch(ctx, steamid, []listener.CreateOutcome{{
		Hash:    h,
		Sent:    d.UpdatedAt,
		Listing: &domain.Listing{ID: "abc123", ListedAt: 10, BumpedAt: 10},
	}})
	require.NoError(t, err)

	assert.Equal(t, "abc123", f.desired(t, h).ExternalIDValue())
	current, err := f.store.GetCurrent(ctx, steamid, []string{"abc123"})
	require.NoError(t, err)
	assert.Contains(t, current, "abc123")
	assert.Empty(t, f.createQueue(t))
}
