//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/MrSnakeDoc/listingd/internal/credentials"
	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/events"
	"github.com/MrSnakeDoc/listingd/internal/executor"
	"github.com/MrSnakeDoc/listingd/internal/jobs"
	"github.com/MrSnakeDoc/listingd/internal/listener"
	"github.com/MrSnakeDoc/listingd/internal/lock"
	"github.com/MrSnakeDoc/listingd/internal/logger"
	"github.com/MrSnakeDoc/listingd/internal/marketplace"
	"github.com/MrSnakeDoc/listingd/internal/ratelimit"
	"github.com/MrSnakeDoc/listingd/internal/reconciler"
	redisstore "github.com/MrSnakeDoc/listingd/internal/store/redis"
)

const steamid = "76561198000000001"

type EngineSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcredis.RedisContainer
	client    *goredis.Client

	market    *fakeMarketplace
	store     *redisstore.Store
	reservoir *ratelimit.Reservoir
	listener  *listener.Listener
	service   *reconciler.Service
	pool      *jobs.Pool
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcredis.Run(s.ctx, "redis:7-alpine")
	s.Require().NoError(err)
	s.container = container

	uri, err := container.ConnectionString(s.ctx)
	s.Require().NoError(err)
	opts, err := goredis.ParseURL(uri)
	s.Require().NoError(err)
	s.client = goredis.NewClient(opts)
}

func (s *EngineSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *EngineSuite) SetupTest() {
	s.Require().NoError(s.client.FlushDB(s.ctx).Err())

	s.market = newFakeMarketplace()
	srv := s.market.server()
	s.T().Cleanup(srv.Close)

	log := logger.NewNop()
	s.store = redisstore.NewStore(s.client)
	locks := lock.NewManager(s.client, log, lock.Options{Wait: 2 * time.Second, RetryDelay: 10 * time.Millisecond})
	s.reservoir = ratelimit.NewReservoir(s.client, ratelimit.Config{
		Size:           10,
		RefillAmount:   1,
		RefillInterval: 6 * time.Second,
		DefaultBackoff: time.Minute,
	})

	tokens := credentials.NewStore(s.client)
	s.Require().NoError(tokens.Set(s.ctx, steamid, "token"))

	queue := jobs.NewQueue(s.client, time.Minute)
	pub := events.NewLogPublisher(log)
	s.listener = listener.New(s.store, locks, queue, pub, log, 5*time.Second)
	s.service = reconciler.NewService(reconciler.New(s.store, locks, log, 5*time.Second), s.listener, pub, log)

	api := marketplace.NewClient(marketplace.Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	exec := executor.New(s.store, locks, s.reservoir, api, tokens, s.listener, log, executor.Config{LockTTL: 10 * time.Second})
	s.pool = jobs.NewPool(queue, executor.NewProcessor(exec, queue, log), log, jobs.PoolConfig{})
}

// drain runs due jobs until none is left
func (s *EngineSuite) drain() {
	for i := 0; i < 50; i++ {
		ran, err := s.pool.RunOnce(s.ctx)
		s.Require().NoError(err)
		if !ran {
			return
		}
	}
	s.Fail("jobs never drained")
}

func sellListing(id string) reconciler.AddRequest {
	return reconciler.AddRequest{Listing: domain.ListingSpec{
		ID:         id,
		Currencies: domain.Currencies{Keys: decimal.NewFromInt(1)},
	}}
}

func (s *EngineSuite) TestLifecycle() {
	s.Require().NoError(s.listener.OnAgentStart(s.ctx, steamid))

	res, err := s.service.AddDesired(s.ctx, steamid, []reconciler.AddRequest{sellListing("440_1"), sellListing("440_2")})
	s.Require().NoError(err)
	s.Require().Len(res.Changed, 2)

	s.drain()

	desired, err := s.store.AllDesired(s.ctx, steamid)
	s.Require().NoError(err)
	for _, d := range desired {
		s.NotEmpty(d.ExternalIDValue(), "hash %s has no external id", d.Hash)
	}
	s.Len(s.market.activeIDs(), 2)

	// adding the same listings again creates nothing
	res, err = s.service.AddDesired(s.ctx, steamid, []reconciler.AddRequest{sellListing("440_1"), sellListing("440_2")})
	s.Require().NoError(err)
	s.Empty(res.Changed)
	s.drain()
	s.Equal(1, s.market.count("create"))

	// removing one deletes its ad
	_, err = s.service.RemoveDesired(s.ctx, steamid, []string{res.Unchanged[0].Hash})
	s.Require().NoError(err)
	s.drain()
	s.Len(s.market.activeIDs(), 1)

	current, err := s.store.AllCurrent(s.ctx, steamid)
	s.Require().NoError(err)
	s.Len(current, 1)

	// stopping the agent wipes the account
	s.Require().NoError(s.listener.OnAgentStop(s.ctx, steamid))
	s.drain()
	s.Empty(s.market.activeIDs())

	current, err = s.store.AllCurrent(s.ctx, steamid)
	s.Require().NoError(err)
	s.Empty(current)

	desired, err = s.store.AllDesired(s.ctx, steamid)
	s.Require().NoError(err)
	s.Require().Len(desired, 1)
	s.Nil(desired[0].ExternalID)
}

func (s *EngineSuite) TestRateLimitDrainsReservoir() {
	s.market.rateLimit = 1
	s.Require().NoError(s.listener.OnAgentStart(s.ctx, steamid))

	_, err := s.service.AddDesired(s.ctx, steamid, []reconciler.AddRequest{sellListing("440_7")})
	s.Require().NoError(err)

	s.drain()

	s.Equal(1, s.market.count("create"))
	tokens, err := s.reservoir.Tokens(s.ctx, steamid)
	s.Require().NoError(err)
	s.LessOrEqual(tokens, int64(-2))

	// the retry is deferred and nothing else reached the marketplace
	sizes, err := s.store.QueueSizes(s.ctx, steamid)
	s.Require().NoError(err)
	s.Equal(int64(1), sizes.Create)
	s.Empty(s.market.activeIDs())
}
