package reconciler

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/events"
	"github.com/MrSnakeDoc/listingd/internal/listener"
	"github.com/MrSnakeDoc/listingd/internal/logger"
	"github.com/MrSnakeDoc/listingd/internal/metrics"
)

// Service is the entry point for desired state changes. It runs the
// reconciler and hands its results to the lifecycle listener.
type Service struct {
	reconciler *Reconciler
	listener   *listener.Listener
	publisher  events.Publisher
	logger     logger.Logger
}

// NewService creates the desired state service
func NewService(r *Reconciler, l *listener.Listener, pub events.Publisher, log logger.Logger) *Service {
	return &Service{
		reconciler: r,
		listener:   l,
		publisher:  pub,
		logger:     log,
	}
}

// AddDesired merges listings and schedules work for the changed ones
func (s *Service) AddDesired(ctx context.Context, steamid string, reqs []AddRequest) (Result, error) {
	res, err := s.reconciler.AddDesired(ctx, steamid, reqs)
	if err != nil {
		return Result{}, err
	}

	metrics.DesiredChanges.WithLabelValues("changed").Add(float64(len(res.Changed)))
	metrics.DesiredChanges.WithLabelValues("unchanged").Add(float64(len(res.Unchanged)))

	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Name:      events.DesiredAdded,
		SteamID64: steamid,
		Hashes:    hashesOf(res.Changed),
	})

	if err := s.listener.OnDesiredAdded(ctx, steamid, res.Changed); err != nil {
		return res, fmt.Errorf("schedule creation: %w", err)
	}
	return res, nil
}

// RemoveDesired removes listings and schedules deletion of what they had on the marketplace
func (s *Service) RemoveDesired(ctx context.Context, steamid string, hashes []string) ([]*domain.DesiredListing, error) {
	removed, err := s.reconciler.RemoveDesired(ctx, steamid, hashes)
	if err != nil {
		return nil, err
	}
	return s.removed(ctx, steamid, removed)
}

// RemoveAllDesired empties an account's desired set and schedules deletion of its ads
func (s *Service) RemoveAllDesired(ctx context.Context, steamid string) ([]*domain.DesiredListing, error) {
	removed, err := s.reconciler.RemoveAllDesired(ctx, steamid)
	if err != nil {
		return nil, err
	}
	return s.removed(ctx, steamid, removed)
}

func (s *Service) removed(ctx context.Context, steamid string, removed []*domain.DesiredListing) ([]*domain.DesiredListing, error) {
	metrics.DesiredChanges.WithLabelValues("removed").Add(float64(len(removed)))

	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Name:      events.DesiredRemoved,
		SteamID64: steamid,
		Hashes:    hashesOf(removed),
	})

	if err := s.listener.OnDesiredRemoved(ctx, steamid, removed); err != nil {
		return removed, fmt.Errorf("schedule deletion: %w", err)
	}
	return removed, nil
}

func hashesOf(records []*domain.DesiredListing) []string {
	out := make([]string, 0, len(records))
	for _, d := range records {
		out = append(out, d.Hash)
	}
	return out
}
