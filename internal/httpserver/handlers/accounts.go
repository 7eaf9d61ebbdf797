package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/listingd/internal/lock"
	"github.com/MrSnakeDoc/listingd/internal/logger"
	"github.com/MrSnakeDoc/listingd/internal/reconciler"
	redisstore "github.com/MrSnakeDoc/listingd/internal/store/redis"
)

const maxBodyBytes = 8 << 20

type accountSummary struct {
	SteamID64 string                `json:"steamid64"`
	Running   bool                  `json:"running"`
	Queues    redisstore.QueueSizes `json:"queues"`
}

type addDesiredRequest struct {
	Listings []reconciler.AddRequest `json:"listings"`
}

type addDesiredResponse struct {
	Changed   []string `json:"changed"`
	Unchanged []string `json:"unchanged"`
}

type removeDesiredRequest struct {
	Hashes []string `json:"hashes"`
}

type removeDesiredResponse struct {
	Removed []string `json:"removed"`
}

// ListAccounts lists every account with desired state
func ListAccounts(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := d.State.Accounts(r.Context())
		if err != nil {
			internalError(d, w, "failed to list accounts", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"accounts": ids})
	}
}

// GetAccount returns the agent state and queue sizes of an account
func GetAccount(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		steamid, ok := steamID(w, r)
		if !ok {
			return
		}

		running, err := d.State.AgentRunning(r.Context(), steamid)
		if err != nil {
			internalError(d, w, "failed to read agent state", err)
			return
		}
		sizes, err := d.State.QueueSizes(r.Context(), steamid)
		if err != nil {
			internalError(d, w, "failed to read queues", err)
			return
		}

		writeJSON(w, http.StatusOK, accountSummary{SteamID64: steamid, Running: running, Queues: sizes})
	}
}

// GetDesired returns the desired listings of an account
func GetDesired(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		steamid, ok := steamID(w, r)
		if !ok {
			return
		}
		desired, err := d.State.AllDesired(r.Context(), steamid)
		if err != nil {
			internalError(d, w, "failed to read desired listings", err)
			return
		}
		if desired == nil {
			desired = []*domain.DesiredListing{}
		}
		writeJSON(w, http.StatusOK, desired)
	}
}

// GetCurrent returns the listings known to exist on the marketplace
func GetCurrent(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		steamid, ok := steamID(w, r)
		if !ok {
			return
		}
		current, err := d.State.AllCurrent(r.Context(), steamid)
		if err != nil {
			internalError(d, w, "failed to read current listings", err)
			return
		}
		if current == nil {
			current = []*domain.Listing{}
		}
		writeJSON(w, http.StatusOK, current)
	}
}

// AddDesired merges listings into the desired set of an account
func AddDesired(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		steamid, ok := steamID(w, r)
		if !ok {
			return
		}

		var req addDesiredRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Listings) == 0 {
			writeError(w, http.StatusBadRequest, "listings must not be empty")
			return
		}

		res, err := d.Desired.AddDesired(r.Context(), steamid, req.Listings)
		if err != nil {
			mutationError(d, w, "failed to add desired listings", err)
			return
		}

		writeJSON(w, http.StatusOK, addDesiredResponse{
			Changed:   hashes(res.Changed),
			Unchanged: hashes(res.Unchanged),
		})
	}
}

// RemoveDesired removes listings from the desired set of an account
func RemoveDesired(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		steamid, ok := steamID(w, r)
		if !ok {
			return
		}

		var req removeDesiredRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Hashes) == 0 {
			writeError(w, http.StatusBadRequest, "hashes must not be empty")
			return
		}

		removed, err := d.Desired.RemoveDesired(r.Context(), steamid, req.Hashes)
		if err != nil {
			mutationError(d, w, "failed to remove desired listings", err)
			return
		}

		writeJSON(w, http.StatusOK, removeDesiredResponse{Removed: hashes(removed)})
	}
}

// RemoveAllDesired empties the desired set of an account
func RemoveAllDesired(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		steamid, ok := steamID(w, r)
		if !ok {
			return
		}

		removed, err := d.Desired.RemoveAllDesired(r.Context(), steamid)
		if err != nil {
			mutationError(d, w, "failed to remove desired listings", err)
			return
		}

		writeJSON(w, http.StatusOK, removeDesiredResponse{Removed: hashes(removed)})
	}
}

// StartAgent records that the account's agent is running
func StartAgent(d deps.Deps) http.HandlerFunc {
	return agentSignal(d, "started", d.Agents.OnAgentStart)
}

// StopAgent records that the account's agent stopped; its listings are wiped
func StopAgent(d deps.Deps) http.HandlerFunc {
	return agentSignal(d, "stopped", d.Agents.OnAgentStop)
}

func agentSignal(d deps.Deps, state string, signal func(ctx context.Context, steamid string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		steamid, ok := steamID(w, r)
		if !ok {
			return
		}
		if err := signal(r.Context(), steamid); err != nil {
			mutationError(d, w, "failed to signal agent", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"steamid64": steamid, "agent": state})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func mutationError(d deps.Deps, w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSpec):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lock.ErrNotAcquired):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "account busy, retry later")
	default:
		internalError(d, w, msg, err)
	}
}

func internalError(d deps.Deps, w http.ResponseWriter, msg string, err error) {
	d.Logger.Error(msg, logger.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}

func hashes(records []*domain.DesiredListing) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Hash)
	}
	return out
}
