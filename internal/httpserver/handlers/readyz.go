package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/listingd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/listingd/internal/logger"
)

type readyzResponse struct {
	Ready       bool   `json:"ready"`
	Redis       string `json:"redis"`
	PendingJobs *int64 `json:"pending_jobs,omitempty"`
}

// Readyz reports ready only while Redis answers, since every operation needs it
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := d.State.Ping(ctx); err != nil {
			d.Logger.Warn("readiness check failed", logger.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Ready: false, Redis: "unavailable"})
			return
		}

		resp := readyzResponse{Ready: true, Redis: "ok"}
		if d.Jobs != nil {
			if pending, err := d.Jobs.Pending(ctx); err == nil {
				resp.PendingJobs = &pending
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
