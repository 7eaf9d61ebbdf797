package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/logger"
	"github.com/MrSnakeDoc/listingd/internal/reconciler"
	redisstore "github.com/MrSnakeDoc/listingd/internal/store/redis"
)

// DesiredService applies desired listing changes
type DesiredService interface {
	AddDesired(ctx context.Context, steamid string, reqs []reconciler.AddRequest) (reconciler.Result, error)
	RemoveDesired(ctx context.Context, steamid string, hashes []string) ([]*domain.DesiredListing, error)
	RemoveAllDesired(ctx context.Context, steamid string) ([]*domain.DesiredListing, error)
}

// AgentSignals receives agent registration changes
type AgentSignals interface {
	OnAgentStart(ctx context.Context, steamid string) error
	OnAgentStop(ctx context.Context, steamid string) error
}

// StateReader is the read side of the account state
type StateReader interface {
	Ping(ctx context.Context) error
	Accounts(ctx context.Context) ([]string, error)
	AllDesired(ctx context.Context, steamid string) ([]*domain.DesiredListing, error)
	AllCurrent(ctx context.Context, steamid string) ([]*domain.Listing, error)
	QueueSizes(ctx context.Context, steamid string) (redisstore.QueueSizes, error)
	AgentRunning(ctx context.Context, steamid string) (bool, error)
}

// JobStats reports the job backlog
type JobStats interface {
	Pending(ctx context.Context) (int64, error)
}

type Deps struct {
	Logger        logger.Logger
	StartTime     time.Time
	Version       string
	Commit        string
	BuildDate     string
	GoVersion     string
	TimeNow       func() time.Time // for testing, defaults to time.Now
	AllowedCIDRS  []string         // IPs allowed to reach the operator endpoints
	TrustProxy    bool             // true if running behind a trusted reverse proxy
	State         StateReader
	Desired       DesiredService
	Agents        AgentSignals
	Jobs          JobStats
	ReloadTrigger chan struct{} // nil when no desired file is configured
}
