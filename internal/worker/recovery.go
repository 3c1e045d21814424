package worker

import (
	"context"
	"time"

	"stonepot/internal/service"
)

// SettlementRecovery re-drives games stuck in resolving or cancelling.
// A game parks in those states only when the process that claimed it
// died mid-payout; both paths are idempotent, so rerunning is safe.
type SettlementRecovery struct {
	settler    *service.SettlementService
	stuckAfter time.Duration
	interval   time.Duration
}

func NewSettlementRecovery(settler *service.SettlementService, stuckAfter, interval time.Duration) *SettlementRecovery {
	return &SettlementRecovery{settler: settler, stuckAfter: stuckAfter, interval: interval}
}

func (w *SettlementRecovery) Run(ctx context.Context) {
	runEvery(ctx, "settlement_recovery", w.interval, func(ctx context.Context) error {
		return w.settler.RecoverStuck(ctx, w.stuckAfter)
	})
}
