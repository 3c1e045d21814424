// Package ws pushes settlement outcomes to connected players so they do
// not have to poll game state.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"stonepot/internal/events"
	"stonepot/internal/logger"
)

// Hub fans bus events out to the websocket clients watching each game.
type Hub struct {
	mu     sync.RWMutex
	byGame map[int64]map[*Client]struct{}
	bus    *events.Bus
}

func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		byGame: make(map[int64]map[*Client]struct{}),
		bus:    bus,
	}
}

// Run relays bus events until the context ends. Call it once from main.
func (h *Hub) Run(ctx context.Context) {
	ch, cancel := h.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.byGame[c.GameID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.byGame[c.GameID] = clients
	}
	clients[c] = struct{}{}
	logger.Debug("ws client registered", "user_id", c.UserID, "game_id", c.GameID)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.byGame[c.GameID]
	if !ok {
		return
	}
	if _, present := clients[c]; !present {
		return
	}
	delete(clients, c)
	close(c.Send)
	if len(clients) == 0 {
		delete(h.byGame, c.GameID)
	}
}

func (h *Hub) broadcast(ev events.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		logger.Error("ws event marshal failed", "game_id", ev.GameID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byGame[ev.GameID] {
		select {
		case c.Send <- msg:
		default:
			// slow consumer; the next poll of game state catches them up
			logger.Warn("ws client send buffer full, dropping event",
				"user_id", c.UserID, "game_id", ev.GameID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for gameID, clients := range h.byGame {
		for c := range clients {
			close(c.Send)
		}
		delete(h.byGame, gameID)
	}
}
