//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/marketplace"
)

// fakeMarketplace is an in-memory marketplace speaking the batch API
type fakeMarketplace struct {
	mu        sync.Mutex
	next      int
	active    map[string]domain.Listing
	rateLimit int // remaining create calls answered with 429
	calls     map[string]int
}

func newFakeMarketplace() *fakeMarketplace {
	return &fakeMarketplace{
		active: map[string]domain.Listing{},
		calls:  map[string]int{},
	}
}

func (m *fakeMarketplace) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/classifieds/listings/batch", m.createBatch)
	mux.HandleFunc("DELETE /v2/classifieds/listings/batch", m.deleteBatch)
	mux.HandleFunc("DELETE /v2/classifieds/archive/batch", m.deleteBatch)
	mux.HandleFunc("DELETE /v2/classifieds/listings", m.deleteAll)
	mux.HandleFunc("DELETE /v2/classifieds/archive", m.deleteAll)
	return httptest.NewServer(mux)
}

func (m *fakeMarketplace) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *fakeMarketplace) activeIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

func (m *fakeMarketplace) createBatch(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["create"]++

	if m.rateLimit > 0 {
		m.rateLimit--
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Too many requests, retry in 12 seconds"})
		return
	}

	var specs []domain.ListingSpec
	if err := json.NewDecoder(r.Body).Decode(&specs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().Unix()
	results := make([]marketplace.CreateResult, 0, len(specs))
	for _, spec := range specs {
		m.next++
		l := domain.Listing{
			ID:         fmt.Sprintf("ad-%d", m.next),
			Currencies: spec.Currencies,
			Item:       spec.Item,
			Details:    spec.Details,
			ListedAt:   now,
			BumpedAt:   now,
		}
		m.active[l.ID] = l
		results = append(results, marketplace.CreateResult{Result: &l})
	}
	_ = json.NewEncoder(w).Encode(results)
}

func (m *fakeMarketplace) deleteBatch(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["delete"]++

	var req struct {
		ListingIDs []string `json:"listing_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	deleted := 0
	for _, id := range req.ListingIDs {
		if _, ok := m.active[id]; ok {
			delete(m.active, id)
			deleted++
		}
	}
	_ = json.NewEncoder(w).Encode(marketplace.DeleteResult{Deleted: deleted})
}

func (m *fakeMarketplace) deleteAll(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["delete-all"]++

	n := len(m.active)
	m.active = map[string]domain.Listing{}
	_ = json.NewEncoder(w).Encode(map[string]int{"deleted": n})
}
