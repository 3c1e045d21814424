package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stonepot/internal/domain"
	"stonepot/internal/events"
	"stonepot/internal/logger"
	"stonepot/internal/metrics"
	"stonepot/internal/repository"
	"stonepot/internal/settle"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotResolvable = errors.New("game is not in a resolvable state")

// SettlementService drives a claimed game to its terminal state. Resolve
// and Cancel are both re-runnable: every credit carries a deterministic
// reference, so a crash mid-payout is repaired by running the same method
// again, and already-paid legs collapse into no-ops.
type SettlementService struct {
	db     *pgxpool.Pool
	games  *repository.GameRepository
	wallet *WalletService
	bus    *events.Bus
}

func NewSettlementService(db *pgxpool.Pool, wallet *WalletService, bus *events.Bus) *SettlementService {
	return &SettlementService{
		db:     db,
		games:  repository.NewGameRepository(db),
		wallet: wallet,
		bus:    bus,
	}
}

// Resolve settles a game that holds the resolving claim: compute winners
// from the rolls, credit each winner's share, credit the house commission,
// then flip the game to completed. A game already completed is a no-op, so
// the recovery worker can re-drive any resolving game safely.
func (s *SettlementService) Resolve(ctx context.Context, gameID int64) error {
	start := time.Now()
	err := s.resolve(ctx, gameID)
	if err != nil {
		metrics.ObserveSettlement("error", start)
		return err
	}
	metrics.ObserveSettlement("success", start)
	return nil
}

func (s *SettlementService) resolve(ctx context.Context, gameID int64) error {
	g, err := s.games.Get(ctx, gameID)
	if err != nil {
		return err
	}
	switch g.Status {
	case domain.GameCompleted:
		return nil
	case domain.GameResolving:
	default:
		return fmt.Errorf("%w: game %d is %s", ErrNotResolvable, gameID, g.Status)
	}

	players, err := s.games.GetPlayers(ctx, gameID)
	if err != nil {
		return err
	}

	rolls := make([]settle.Roll, 0, len(players))
	for _, p := range players {
		if p.RolledNumber == nil {
			return fmt.Errorf("%w: game %d has outstanding rolls", ErrNotResolvable, gameID)
		}
		rolls = append(rolls, settle.Roll{UserID: p.UserID, Number: *p.RolledNumber})
	}

	res, err := settle.Resolve(rolls, g.StakePot, g.CommissionRateBps)
	if err != nil {
		return err
	}

	// Payout legs first; the terminal flip only happens once every credit
	// is durable. Shares can be zero when commission swallows a tiny pot.
	if res.PerWinnerShare > 0 {
		for _, winnerID := range res.WinnerIDs {
			ref := fmt.Sprintf("game:%d:win:%d", gameID, winnerID)
			if _, err := s.wallet.Credit(ctx, winnerID, res.PerWinnerShare, ref, domain.KindWinnings, &gameID); err != nil {
				return fmt.Errorf("credit winner %d: %w", winnerID, err)
			}
		}
	}
	if res.Commission > 0 {
		ref := fmt.Sprintf("game:%d:commission", gameID)
		if _, err := s.wallet.Credit(ctx, domain.HouseUserID, res.Commission, ref, domain.KindCommission, &gameID); err != nil {
			return fmt.Errorf("credit commission: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.games.MarkWinnersTx(ctx, tx, gameID, res.WinnerIDs, res.PerWinnerShare); err != nil {
		return err
	}
	if err := s.games.CompleteTx(ctx, tx, gameID, res.WinnerIDs, res.WinningNumber); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			// a concurrent recovery run finished the flip first
			return nil
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info("game settled",
		"game_id", gameID,
		"winners", res.WinnerIDs,
		"winning_number", res.WinningNumber,
		"pot", res.Pot,
		"per_winner_share", res.PerWinnerShare,
		"commission", res.Commission,
	)

	s.bus.Publish(events.Event{
		Kind:           events.KindGameCompleted,
		GameID:         gameID,
		WinnerIDs:      res.WinnerIDs,
		WinningNumber:  res.WinningNumber,
		PerWinnerShare: res.PerWinnerShare,
		Commission:     res.Commission,
	})
	return nil
}

// Cancel aborts a game that never filled: claim the cancelling state,
// refund every staked seat, then finish the flip to cancelled. Like
// Resolve it is re-runnable from any point after the claim.
func (s *SettlementService) Cancel(ctx context.Context, gameID int64) error {
	g, err := s.games.Get(ctx, gameID)
	if err != nil {
		return err
	}

	switch g.Status {
	case domain.GameCancelled:
		return nil
	case domain.GameWaiting:
		claimed, err := s.games.CASStatus(ctx, gameID, domain.GameWaiting, domain.GameCancelling)
		if err != nil {
			return err
		}
		if !claimed {
			// lost the claim race; whoever won it drives the refunds
			return nil
		}
	case domain.GameCancelling:
		// resuming an interrupted cancellation
	default:
		return fmt.Errorf("%w: game %d is %s", ErrNotResolvable, gameID, g.Status)
	}

	players, err := s.games.GetPlayers(ctx, gameID)
	if err != nil {
		return err
	}
	for _, p := range players {
		ref := fmt.Sprintf("game:%d:refund:%d", gameID, p.UserID)
		if _, err := s.wallet.Credit(ctx, p.UserID, g.Stake, ref, domain.KindRefund, &gameID); err != nil {
			return fmt.Errorf("refund player %d: %w", p.UserID, err)
		}
	}

	done, err := s.games.CASStatus(ctx, gameID, domain.GameCancelling, domain.GameCancelled)
	if err != nil {
		return err
	}
	if !done {
		// a concurrent run already finished; refunds above were no-ops
		return nil
	}

	logger.Info("game cancelled", "game_id", gameID, "refunded_players", len(players))
	s.bus.Publish(events.Event{Kind: events.KindGameCancelled, GameID: gameID})
	return nil
}

// RecoverStuck re-drives games parked in a claim state longer than
// stuckAfter. Their owner crashed mid-settlement; both paths are
// idempotent so re-running from the top is always safe.
func (s *SettlementService) RecoverStuck(ctx context.Context, stuckAfter time.Duration) error {
	cutoff := time.Now().Add(-stuckAfter)

	resolving, err := s.games.ListStuck(ctx, domain.GameResolving, cutoff)
	if err != nil {
		return err
	}
	for _, g := range resolving {
		logger.Warn("re-driving stuck settlement", "game_id", g.ID, "stuck_since", g.UpdatedAt)
		if err := s.Resolve(ctx, g.ID); err != nil {
			logger.Error("stuck settlement recovery failed", "game_id", g.ID, "error", err)
		}
	}

	cancelling, err := s.games.ListStuck(ctx, domain.GameCancelling, cutoff)
	if err != nil {
		return err
	}
	for _, g := range cancelling {
		logger.Warn("re-driving stuck cancellation", "game_id", g.ID, "stuck_since", g.UpdatedAt)
		if err := s.Cancel(ctx, g.ID); err != nil {
			logger.Error("stuck cancellation recovery failed", "game_id", g.ID, "error", err)
		}
	}
	return nil
}
