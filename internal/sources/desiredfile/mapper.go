package desiredfile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/reconciler"
)

// Agent states accepted in the file
const (
	AgentRunning = "running"
	AgentStopped = "stopped"
)

// Account is the mapped desired state of one account
type Account struct {
	SteamID   string
	Agent     string
	Exclusive bool
	Requests  []reconciler.AddRequest
	Hashes    map[string]struct{}
}

// Mapper converts the file into add requests
type Mapper struct{}

// NewMapper creates a new mapper instance
func NewMapper() *Mapper {
	return &Mapper{}
}

// Map converts the file into per-account requests, ordered by steamid.
// Any invalid entry fails the whole file so a typo never prunes listings.
func (m *Mapper) Map(f *File) ([]Account, error) {
	if f == nil || len(f.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts found in desired file")
	}

	ids := make([]string, 0, len(f.Accounts))
	for id := range f.Accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	accounts := make([]Account, 0, len(ids))
	for _, steamid := range ids {
		cfg := f.Accounts[steamid]
		if !domain.ValidSteamID64(steamid) {
			return nil, fmt.Errorf("invalid steamid %q", steamid)
		}

		agent := strings.ToLower(strings.TrimSpace(cfg.Agent))
		if agent != "" && agent != AgentRunning && agent != AgentStopped {
			return nil, fmt.Errorf("account %s: invalid agent state %q", steamid, cfg.Agent)
		}

		acc := Account{
			SteamID:   steamid,
			Agent:     agent,
			Exclusive: cfg.Exclusive,
			Requests:  make([]reconciler.AddRequest, 0, len(cfg.Listings)),
			Hashes:    make(map[string]struct{}, len(cfg.Listings)),
		}

		for i, lc := range cfg.Listings {
			spec, err := mapListing(lc)
			if err != nil {
				return nil, fmt.Errorf("account %s listing %d: %w", steamid, i, err)
			}
			hash, err := domain.Hash(spec)
			if err != nil {
				return nil, fmt.Errorf("account %s listing %d: %w", steamid, i, err)
			}
			acc.Hashes[hash] = struct{}{}
			acc.Requests = append(acc.Requests, reconciler.AddRequest{
				Listing:  spec,
				Priority: lc.Priority,
				Force:    lc.Force,
			})
		}

		accounts = append(accounts, acc)
	}

	return accounts, nil
}

func mapListing(lc ListingConfig) (domain.ListingSpec, error) {
	keys, err := parseAmount(lc.Currencies.Keys)
	if err != nil {
		return domain.ListingSpec{}, fmt.Errorf("keys: %w", err)
	}
	metal, err := parseAmount(lc.Currencies.Metal)
	if err != nil {
		return domain.ListingSpec{}, fmt.Errorf("metal: %w", err)
	}

	return domain.ListingSpec{
		ID:         strings.TrimSpace(lc.ID),
		Item:       lc.Item,
		Currencies: domain.Currencies{Keys: keys, Metal: metal},
		Details:    lc.Details,
	}, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
