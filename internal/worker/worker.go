// Package worker holds the engine's periodic sweeps: cancelling games
// that never filled, re-driving settlements whose owner crashed, and
// auditing wallet balances against the ledger.
package worker

import (
	"context"
	"time"

	"stonepot/internal/logger"
)

// runEvery runs fn on a fixed ticker until the context ends. The first
// run happens after one interval, not immediately, so startup is quiet.
func runEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("worker started", "worker", name, "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped", "worker", name)
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				logger.Error("worker sweep failed", "worker", name, "error", err)
			}
		}
	}
}
