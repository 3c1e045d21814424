package worker

import (
	"context"
	"time"

	"stonepot/internal/logger"
	"stonepot/internal/service"
)

// Reconciler audits every wallet's cached balance against the ledger.
// It only reports; drift means an integrity bug that a human has to
// look at, not something to silently paper over.
type Reconciler struct {
	wallet   *service.WalletService
	interval time.Duration
}

func NewReconciler(wallet *service.WalletService, interval time.Duration) *Reconciler {
	return &Reconciler{wallet: wallet, interval: interval}
}

func (w *Reconciler) Run(ctx context.Context) {
	runEvery(ctx, "reconciler", w.interval, func(ctx context.Context) error {
		userIDs, err := w.wallet.ListUserIDs(ctx)
		if err != nil {
			return err
		}

		var drifted int
		for _, userID := range userIDs {
			drift, err := w.wallet.Recompute(ctx, userID)
			if err != nil {
				logger.Error("reconciliation failed for wallet", "user_id", userID, "error", err)
				continue
			}
			if drift != 0 {
				drifted++
			}
		}
		if drifted > 0 {
			logger.Error("reconciliation sweep found drifted wallets", "count", drifted)
		}
		return nil
	})
}
