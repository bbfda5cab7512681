package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/Tyrowin/phrasehat/internal/game"
)

var (
	// ErrSubscriptionClosed is returned once the consumer side of a
	// subscription has gone away.
	ErrSubscriptionClosed = errors.New("hub: subscription closed")
	// ErrSubscriptionFull is returned when a capped queue cannot take another
	// snapshot.
	ErrSubscriptionFull = errors.New("hub: subscription queue full")
)

// Subscription is the per-client conduit between the hub (producer) and one
// streaming connection (consumer). Values are delivered FIFO.
type Subscription struct {
	id       uuid.UUID
	gameID   string
	playerID string
	capacity int

	mu     sync.Mutex
	queue  []game.Snapshot
	closed bool
	notify chan struct{}
	done   chan struct{}
}

func newSubscription(gameID, playerID string, capacity int) *Subscription {
	return &Subscription{
		id:       uuid.New(),
		gameID:   gameID,
		playerID: playerID,
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() uuid.UUID { return s.id }

// GameID returns the game id the client connected with.
func (s *Subscription) GameID() string { return s.gameID }

// PlayerID returns the player id the client connected with.
func (s *Subscription) PlayerID() string { return s.playerID }

// Done is closed when the subscription is closed by either side.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Pending reports how many snapshots are queued and not yet consumed.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// deliver queues snap without blocking.
func (s *Subscription) deliver(snap game.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriptionClosed
	}
	if s.capacity > 0 && len(s.queue) >= s.capacity {
		return ErrSubscriptionFull
	}
	s.queue = append(s.queue, snap)

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Ready signals that TryNext may have a value. A signal can be spurious, so
// callers drain with TryNext until it reports false.
func (s *Subscription) Ready() <-chan struct{} { return s.notify }

// TryNext pops the oldest queued snapshot without blocking.
func (s *Subscription) TryNext() (game.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || len(s.queue) == 0 {
		return game.Snapshot{}, false
	}
	snap := s.queue[0]
	s.queue[0] = game.Snapshot{}
	s.queue = s.queue[1:]
	return snap, true
}

// Next blocks until a snapshot is available and returns it. It returns
// ErrSubscriptionClosed after Close, or ctx.Err() when ctx is done first.
func (s *Subscription) Next(ctx context.Context) (game.Snapshot, error) {
	for {
		if snap, ok := s.TryNext(); ok {
			return snap, nil
		}
		if s.Closed() {
			return game.Snapshot{}, ErrSubscriptionClosed
		}

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return game.Snapshot{}, ctx.Err()
		}
	}
}

// Close marks the consumer as gone and drops anything still queued. The hub
// notices on its next delivery attempt. Close is idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.queue = nil
	close(s.done)
}

// Closed reports whether Close has been called.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
