package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/logger"
	"github.com/MrSnakeDoc/listingd/internal/reconciler"
	"github.com/MrSnakeDoc/listingd/internal/sources/desiredfile"
)

// DesiredService applies desired listing changes
type DesiredService interface {
	AddDesired(ctx context.Context, steamid string, reqs []reconciler.AddRequest) (reconciler.Result, error)
	RemoveDesired(ctx context.Context, steamid string, hashes []string) ([]*domain.DesiredListing, error)
}

// AgentSignals receives agent registration changes
type AgentSignals interface {
	OnAgentStart(ctx context.Context, steamid string) error
	OnAgentStop(ctx context.Context, steamid string) error
}

// DesiredReader reads the stored state the reloader compares the file with
type DesiredReader interface {
	AllDesired(ctx context.Context, steamid string) ([]*domain.DesiredListing, error)
	AgentRunning(ctx context.Context, steamid string) (bool, error)
}

// DesiredReloader handles periodic reloading of the desired listings file
type DesiredReloader struct {
	loader        *desiredfile.Loader
	mapper        *desiredfile.Mapper
	service       DesiredService
	agents        AgentSignals
	store         DesiredReader
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewDesiredReloader creates a new desired file reloader
func NewDesiredReloader(
	desiredFile string,
	service DesiredService,
	agents AgentSignals,
	store DesiredReader,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *DesiredReloader {
	return &DesiredReloader{
		loader:        desiredfile.NewLoader(desiredFile),
		mapper:        desiredfile.NewMapper(),
		service:       service,
		agents:        agents,
		store:         store,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads the file once, then again on every tick or manual trigger
func (dr *DesiredReloader) Start(ctx context.Context) error {
	if err := dr.Reload(ctx); err != nil {
		return fmt.Errorf("initial reload failed: %w", err)
	}

	ticker := time.NewTicker(dr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := dr.Reload(ctx); err != nil {
					dr.logger.Error("failed to reload desired listings",
						logger.Error(err))
				}
			case <-dr.manualTrigger:
				dr.logger.Info("manual reload triggered")
				if err := dr.Reload(ctx); err != nil {
					dr.logger.Error("failed to reload desired listings",
						logger.Error(err))
				}
			case <-dr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (dr *DesiredReloader) Stop() {
	close(dr.stopCh)
}

// Reload applies the file to every account it declares. An account that fails
// is logged and skipped so one bad account does not block the others.
func (dr *DesiredReloader) Reload(ctx context.Context) error {
	dr.logger.Info("reloading desired listings", logger.String("path", dr.loader.Path()))

	file, err := dr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load desired listings: %w", err)
	}

	accounts, err := dr.mapper.Map(file)
	if err != nil {
		return fmt.Errorf("failed to map desired listings: %w", err)
	}

	failed := 0
	for _, acc := range accounts {
		if err := dr.apply(ctx, acc); err != nil {
			failed++
			dr.logger.Error("failed to apply desired listings",
				logger.SteamID(acc.SteamID),
				logger.Error(err))
		}
	}

	dr.logger.Info("desired listings reloaded",
		logger.Int("accounts", len(accounts)),
		logger.Int("failed", failed))

	if failed > 0 {
		return fmt.Errorf("%d of %d accounts failed to reload", failed, len(accounts))
	}
	return nil
}

func (dr *DesiredReloader) apply(ctx context.Context, acc desiredfile.Account) error {
	if len(acc.Requests) > 0 {
		res, err := dr.service.AddDesired(ctx, acc.SteamID, acc.Requests)
		if err != nil {
			return fmt.Errorf("add desired: %w", err)
		}
		dr.logger.Debug("desired listings merged",
			logger.SteamID(acc.SteamID),
			logger.Int("changed", len(res.Changed)),
			logger.Int("unchanged", len(res.Unchanged)))
	}

	if acc.Exclusive {
		if err := dr.prune(ctx, acc); err != nil {
			return err
		}
	}

	return dr.syncAgent(ctx, acc)
}

// prune removes stored desired listings the file no longer declares
func (dr *DesiredReloader) prune(ctx context.Context, acc desiredfile.Account) error {
	stored, err := dr.store.AllDesired(ctx, acc.SteamID)
	if err != nil {
		return fmt.Errorf("read desired: %w", err)
	}

	var stale []string
	for _, d := range stored {
		if _, ok := acc.Hashes[d.Hash]; !ok {
			stale = append(stale, d.Hash)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	dr.logger.Info("removing desired listings missing from file",
		logger.SteamID(acc.SteamID),
		logger.Int("count", len(stale)))

	if _, err := dr.service.RemoveDesired(ctx, acc.SteamID, stale); err != nil {
		return fmt.Errorf("remove desired: %w", err)
	}
	return nil
}

func (dr *DesiredReloader) syncAgent(ctx context.Context, acc desiredfile.Account) error {
	if acc.Agent == "" || dr.agents == nil {
		return nil
	}

	running, err := dr.store.AgentRunning(ctx, acc.SteamID)
	if err != nil {
		return fmt.Errorf("read agent state: %w", err)
	}

	switch {
	case acc.Agent == desiredfile.AgentRunning && !running:
		return dr.agents.OnAgentStart(ctx, acc.SteamID)
	case acc.Agent == desiredfile.AgentStopped && running:
		return dr.agents.OnAgentStop(ctx, acc.SteamID)
	}
	return nil
}
