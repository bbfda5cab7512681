// Package hub coordinates subscription registration, snapshot broadcast and
// the reaping of clients that can no longer receive data.
package hub

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Tyrowin/phrasehat/internal/game"
	"github.com/Tyrowin/phrasehat/internal/metrics"
)

// Options configures a Hub.
type Options struct {
	// BufferSize caps each subscription's queue. Zero or negative means
	// unbounded: a stalled client grows memory until it is reaped.
	BufferSize int
}

// BroadcastResult summarizes one broadcast pass.
type BroadcastResult struct {
	Delivered int
	Pruned    int
}

// Hub is the registry of live subscriptions. Disconnected clients are reaped
// lazily: a subscription whose consumer has gone is removed by the first
// broadcast that fails to deliver to it.
type Hub struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*Subscription
	opts    Options
	metrics *metrics.Metrics
}

// New creates an empty hub.
func New(opts Options, m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Subscription),
		opts:    opts,
		metrics: m,
	}
}

// Register creates a subscription for a newly connected client. The client
// only sees snapshots broadcast after this call returns.
func (h *Hub) Register(gameID, playerID string) *Subscription {
	sub := newSubscription(gameID, playerID, h.opts.BufferSize)

	h.mu.Lock()
	h.clients[sub.id] = sub
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.metrics.StreamClients.Set(float64(clientCount))
	slog.Info("Client registered",
		"subscription_id", sub.id.String(),
		"game_id", gameID,
		"player_id", playerID,
		"clients", clientCount,
	)
	return sub
}

// Broadcast queues an independent copy of snap on every registered
// subscription. Subscriptions that refuse delivery are dropped in the same
// pass. Broadcast never blocks on a consumer.
func (h *Hub) Broadcast(snap game.Snapshot) BroadcastResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	result := h.broadcastToClients(snap)
	clientCount := len(h.clients)

	h.metrics.Broadcasts.Inc()
	h.metrics.Deliveries.Add(float64(result.Delivered))
	h.metrics.StreamClients.Set(float64(clientCount))

	slog.Debug("Broadcast snapshot",
		"version", snap.Version,
		"delivered", result.Delivered,
		"pruned", result.Pruned,
		"clients", clientCount,
	)
	return result
}

// broadcastToClients must be called with h.mu held.
func (h *Hub) broadcastToClients(snap game.Snapshot) BroadcastResult {
	var result BroadcastResult
	var failed []*Subscription
	var reasons []string

	for _, sub := range h.clients {
		err := sub.deliver(snap.Clone())
		if err == nil {
			result.Delivered++
			continue
		}
		failed = append(failed, sub)
		reasons = append(reasons, pruneReason(err))
	}

	h.removeFailedClients(failed, reasons)
	result.Pruned = len(failed)
	return result
}

// removeFailedClients must be called with h.mu held.
func (h *Hub) removeFailedClients(failed []*Subscription, reasons []string) {
	for i, sub := range failed {
		delete(h.clients, sub.id)
		// A full queue means the consumer is still attached; close it so its
		// stream ends instead of silently missing updates.
		sub.Close()
		h.metrics.ClientsPruned.WithLabelValues(reasons[i]).Inc()
		slog.Debug("Client pruned",
			"subscription_id", sub.id.String(),
			"game_id", sub.gameID,
			"player_id", sub.playerID,
			"reason", reasons[i],
		)
	}
}

func pruneReason(err error) string {
	if errors.Is(err, ErrSubscriptionFull) {
		return metrics.ReasonFull
	}
	return metrics.ReasonClosed
}

// Remove drops sub from the registry right away and closes it. It reports
// whether sub was still registered.
func (h *Hub) Remove(sub *Subscription) bool {
	h.mu.Lock()
	_, exists := h.clients[sub.id]
	if exists {
		delete(h.clients, sub.id)
	}
	clientCount := len(h.clients)
	h.mu.Unlock()

	sub.Close()
	if !exists {
		return false
	}

	h.metrics.StreamClients.Set(float64(clientCount))
	h.metrics.ClientsPruned.WithLabelValues(metrics.ReasonRemoved).Inc()
	slog.Info("Client unregistered",
		"subscription_id", sub.id.String(),
		"game_id", sub.gameID,
		"player_id", sub.playerID,
		"clients", clientCount,
	)
	return true
}

// Len returns the number of registered subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every subscription and empties the registry, which ends all
// streaming connections.
func (h *Hub) Shutdown() {
	slog.Info("Shutting down all client subscriptions...")

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[uuid.UUID]*Subscription)
	h.mu.Unlock()

	for _, sub := range clients {
		sub.Close()
	}

	h.metrics.StreamClients.Set(0)
	h.metrics.ClientsPruned.WithLabelValues(metrics.ReasonShutdown).Add(float64(len(clients)))
	slog.Info("Closed client subscriptions", "count", len(clients))
}
