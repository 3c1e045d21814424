// Package events is the in-process notification channel between the
// settlement engine and interested collaborators (websocket feed, tests).
// It replaces client polling of game state.
package events

import (
	"sync"
	"time"

	"stonepot/internal/metrics"
)

type Kind string

const (
	KindGameCompleted Kind = "game_completed"
	KindGameCancelled Kind = "game_cancelled"
)

// Event describes one settled or cancelled game.
type Event struct {
	Kind           Kind      `json:"kind"`
	GameID         int64     `json:"game_id"`
	WinnerIDs      []int64   `json:"winner_ids,omitempty"`
	WinningNumber  int64     `json:"winning_number,omitempty"`
	PerWinnerShare int64     `json:"per_winner_share,omitempty"`
	Commission     int64     `json:"commission,omitempty"`
	At             time.Time `json:"at"`
}

// Bus fans events out to subscribers. Delivery is best-effort: a
// subscriber that stops draining loses events rather than blocking the
// settlement path.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a receive channel and a cancel func. Cancel is safe
// to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			metrics.EventsDropped.Inc()
		}
	}
}
