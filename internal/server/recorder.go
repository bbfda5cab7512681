package server

import (
	"log/slog"
	"sync"

	"github.com/Tyrowin/phrasehat/internal/game"
	"github.com/Tyrowin/phrasehat/internal/hub"
	"github.com/Tyrowin/phrasehat/internal/metrics"
)

// Recorder applies phrase batches to the shared hat and pushes the result to
// every registered stream.
type Recorder struct {
	// mu orders append+broadcast pairs so streams see versions in order.
	mu      sync.Mutex
	state   *game.State
	hub     *hub.Hub
	metrics *metrics.Metrics
}

// NewRecorder creates a Recorder over the given state and hub.
func NewRecorder(state *game.State, h *hub.Hub, m *metrics.Metrics) *Recorder {
	return &Recorder{state: state, hub: h, metrics: m}
}

// Record appends phrases and broadcasts the new hat. gameID and playerID are
// only logged; all games share one hat.
func (r *Recorder) Record(gameID, playerID string, phrases []string) (game.Snapshot, hub.BroadcastResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.state.Append(phrases)
	result := r.hub.Broadcast(snap)

	r.metrics.PhrasesRecorded.Add(float64(len(phrases)))
	r.metrics.HatSize.Set(float64(len(snap.Hat)))

	slog.Info("Received phrases",
		"game_id", gameID,
		"player_id", playerID,
		"phrases", len(phrases),
		"version", snap.Version,
		"delivered", result.Delivered,
	)
	return snap, result
}
