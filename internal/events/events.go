package events

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/listingd/internal/logger"
)

// Name identifies a lifecycle notification. It is also the AMQP routing key.
type Name string

const (
	CurrentCreated    Name = "current-listings.created"
	CurrentFailed     Name = "current-listings.failed"
	CurrentDeleted    Name = "current-listings.deleted"
	CurrentDeletedAll Name = "current-listings.deleted-all"
	DesiredAdded      Name = "desired-listings.added"
	DesiredRemoved    Name = "desired-listings.removed"
	DesiredCreated    Name = "desired-listings.created"
)

// Event is a notification about listings of one account
type Event struct {
	Name      Name      `json:"name"`
	SteamID64 string    `json:"steamid64"`
	Hashes    []string  `json:"hashes,omitempty"`
	IDs       []string  `json:"ids,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger logger.Logger
}

// NewLogPublisher creates a publisher backed by the logger
func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{logger: log}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.logger.Debug("event",
		logger.String("name", string(ev.Name)),
		logger.SteamID(ev.SteamID64),
		logger.Strings("hashes", ev.Hashes),
		logger.Strings("ids", ev.IDs),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Emit publishes ev and only logs a failure. Notifications are best effort:
// state is already committed when they are sent.
func Emit(ctx context.Context, pub Publisher, log logger.Logger, ev Event) {
	if pub == nil {
		return
	}
	if len(ev.Hashes) == 0 && len(ev.IDs) == 0 && ev.Name != CurrentDeletedAll {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := pub.Publish(ctx, ev); err != nil {
		log.Warn("failed to publish event",
			logger.String("name", string(ev.Name)),
			logger.SteamID(ev.SteamID64),
			logger.Error(err),
		)
	}
}
