package worker

import (
	"context"
	"time"

	"stonepot/internal/service"
)

// GameExpiry cancels waiting games that did not fill within the
// configured window and refunds the seats already staked.
type GameExpiry struct {
	games       *service.GameService
	fillTimeout time.Duration
	interval    time.Duration
}

func NewGameExpiry(games *service.GameService, fillTimeout, interval time.Duration) *GameExpiry {
	return &GameExpiry{games: games, fillTimeout: fillTimeout, interval: interval}
}

func (w *GameExpiry) Run(ctx context.Context) {
	runEvery(ctx, "game_expiry", w.interval, func(ctx context.Context) error {
		return w.games.CancelExpired(ctx, w.fillTimeout)
	})
}
