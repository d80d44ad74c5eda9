package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mcdev12/livevote/go/internal/voting/events"
	"github.com/rs/zerolog/log"
)

// StateProvider returns the current round snapshot
type StateProvider interface {
	Snapshot(ctx context.Context) (events.State, error)
}

// StateHandler serves the round snapshot over plain HTTP
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetState handles GET /api/round/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state, err := h.stateProvider.Snapshot(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get round state")
		http.Error(w, "Failed to get round state", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Msg("failed to encode round state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/round/state", h.HandleGetState)
}
