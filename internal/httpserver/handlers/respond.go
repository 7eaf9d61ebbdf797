package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/listingd/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// steamID reads and validates the {steamid} URL parameter, answering 400 when invalid
func steamID(w http.ResponseWriter, r *http.Request) (string, bool) {
	steamid := chi.URLParam(r, "steamid")
	if !domain.ValidSteamID64(steamid) {
		writeError(w, http.StatusBadRequest, "invalid steamid")
		return "", false
	}
	return steamid, true
}
