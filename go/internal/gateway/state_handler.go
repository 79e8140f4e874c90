package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/mcdev12/focushub/go/internal/store"
	"github.com/rs/zerolog/log"
)

// StateHandler serves one-shot snapshots of the room over plain HTTP, for
// clients that want current state without holding a websocket open.
type StateHandler struct {
	store           store.Store
	snapshotTimeout time.Duration
}

// RoomState is the response of the state endpoint.
type RoomState struct {
	Presence []models.PresenceRecord `json:"presence"`
	Messages []models.Message        `json:"messages"`
}

// NewStateHandler creates a state handler over st.
func NewStateHandler(st store.Store) *StateHandler {
	return &StateHandler{
		store:           st,
		snapshotTimeout: 5 * time.Second,
	}
}

// HandleRoomState responds with the current presence set and message
// sequence, taken from short-lived watches so the snapshots carry the same
// consistency guarantees every subscriber gets.
func (h *StateHandler) HandleRoomState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	presenceCh := make(chan []models.PresenceRecord, 1)
	presenceSub, err := h.store.WatchPresence(ctx, func(records []models.PresenceRecord) {
		select {
		case presenceCh <- records:
		default:
		}
	})
	if err != nil {
		log.Error().Err(err).Msg("state snapshot: presence watch failed")
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	defer presenceSub.Unsubscribe()

	messagesCh := make(chan []models.Message, 1)
	messagesSub, err := h.store.WatchMessages(ctx, func(msgs []models.Message) {
		select {
		case messagesCh <- msgs:
		default:
		}
	})
	if err != nil {
		log.Error().Err(err).Msg("state snapshot: message watch failed")
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	defer messagesSub.Unsubscribe()

	var state RoomState
	timeout := time.NewTimer(h.snapshotTimeout)
	defer timeout.Stop()

	for i := 0; i < 2; i++ {
		select {
		case state.Presence = <-presenceCh:
			presenceCh = nil
		case state.Messages = <-messagesCh:
			messagesCh = nil
		case <-timeout.C:
			log.Warn().Msg("state snapshot timed out waiting for store")
			http.Error(w, "store timeout", http.StatusGatewayTimeout)
			return
		case <-ctx.Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Msg("failed to encode room state")
	}
}

// RegisterStateRoutes registers the REST snapshot routes.
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/state", h.HandleRoomState)
}
