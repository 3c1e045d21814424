package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stonepot/internal/domain"
	"stonepot/internal/logger"
	"stonepot/internal/metrics"
	"stonepot/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrInvalidStake       = errors.New("invalid stake")
	ErrInvalidPlayerCount = errors.New("invalid player count")
	ErrInvalidCommission  = errors.New("invalid commission rate")
	ErrInvalidRoll        = errors.New("invalid roll")
	ErrGameNotFound       = errors.New("game not found")
	ErrGameFull           = errors.New("game full")
	ErrAlreadyJoined      = errors.New("already joined")
	ErrAlreadyRolled      = errors.New("already rolled")
	ErrNotAPlayer         = errors.New("not a player in this game")
	ErrRollNotOpen        = errors.New("game is not accepting rolls")
	ErrGameNotJoinable    = errors.New("game is not accepting players")
)

// GameLimits bounds what a game may be created with.
type GameLimits struct {
	MinStake         int64
	MaxStake         int64
	MaxPlayers       int
	CommissionCapBps int
}

// GameService owns the game lifecycle: creation, joining (stake debit and
// roster insert in one transaction), roll recording and the hand-off to
// settlement when the last roll lands.
type GameService struct {
	db      *pgxpool.Pool
	games   *repository.GameRepository
	wallet  *WalletService
	settler *SettlementService
	limits  GameLimits
}

func NewGameService(db *pgxpool.Pool, wallet *WalletService, settler *SettlementService, limits GameLimits) *GameService {
	return &GameService{
		db:      db,
		games:   repository.NewGameRepository(db),
		wallet:  wallet,
		settler: settler,
		limits:  limits,
	}
}

// CreateGame opens a waiting game. The creator takes no seat here; they
// join through JoinGame like everyone else.
func (s *GameService) CreateGame(ctx context.Context, creatorID int64, maxPlayers int, stake int64, commissionRateBps int) (*domain.Game, error) {
	if stake < s.limits.MinStake || stake > s.limits.MaxStake {
		return nil, ErrInvalidStake
	}
	if maxPlayers < 2 || maxPlayers > s.limits.MaxPlayers {
		return nil, ErrInvalidPlayerCount
	}
	if commissionRateBps < 0 || commissionRateBps > s.limits.CommissionCapBps {
		return nil, ErrInvalidCommission
	}

	g := &domain.Game{
		CreatorID:         creatorID,
		MaxPlayers:        maxPlayers,
		Stake:             stake,
		CommissionRateBps: commissionRateBps,
		Status:            domain.GameWaiting,
	}
	if err := s.games.Create(ctx, g); err != nil {
		return nil, err
	}

	metrics.GamesCreated.Inc()
	logger.Info("game created",
		"game_id", g.ID, "creator_id", creatorID, "stake", stake, "max_players", maxPlayers)
	return g, nil
}

// GetGame returns a game with its roster.
func (s *GameService) GetGame(ctx context.Context, gameID int64) (*domain.Game, []*domain.GamePlayer, error) {
	g, err := s.games.Get(ctx, gameID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrGameNotFound
		}
		return nil, nil, err
	}
	players, err := s.games.GetPlayers(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	return g, players, nil
}

// JoinGame seats a player: roster insert, stake debit and pot increment
// are one transaction, so a failed debit leaves no partial state. Filling
// the last seat flips the game to in_progress in the same transaction.
// Wallet version conflicts retry the whole join so the funds check always
// sees current state.
func (s *GameService) JoinGame(ctx context.Context, gameID, userID int64) (*domain.Game, error) {
	var g *domain.Game
	var err error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		g, err = s.joinOnce(ctx, gameID, userID)
		if !errors.Is(err, ErrConcurrentModification) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	metrics.StakesPlaced.Inc()
	logger.Info("player joined game", "game_id", gameID, "user_id", userID, "status", g.Status)
	return g, nil
}

func (s *GameService) joinOnce(ctx context.Context, gameID, userID int64) (*domain.Game, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	g, err := s.games.GetForUpdateTx(ctx, tx, gameID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	if g.Status != domain.GameWaiting {
		if g.Status == domain.GameInProgress {
			return nil, ErrGameFull
		}
		return nil, ErrGameNotJoinable
	}

	var seated int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM game_players WHERE game_id = $1`, gameID,
	).Scan(&seated); err != nil {
		return nil, err
	}
	if seated >= g.MaxPlayers {
		return nil, ErrGameFull
	}

	player := &domain.GamePlayer{GameID: gameID, UserID: userID, TurnOrder: seated + 1}
	if err := s.games.InsertPlayerTx(ctx, tx, player); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrAlreadyJoined
		}
		return nil, err
	}

	ref := stakeReference(gameID, userID)
	if _, err := s.wallet.DebitTx(ctx, tx, userID, g.Stake, ref, domain.KindStake, &gameID); err != nil {
		return nil, err
	}

	if err := s.games.AddToPotTx(ctx, tx, gameID, g.Stake); err != nil {
		return nil, err
	}
	g.StakePot += g.Stake

	if seated+1 == g.MaxPlayers {
		if err := s.games.SetStatusTx(ctx, tx, gameID, domain.GameWaiting, domain.GameInProgress); err != nil {
			return nil, err
		}
		g.Status = domain.GameInProgress
	}

	return g, tx.Commit(ctx)
}

// RollOutcome tells the caller whether their roll closed the set.
type RollOutcome struct {
	AllRolled bool
	Settled   bool
}

// SubmitRoll records a roll exactly once. The caller whose roll completes
// the set also wins the settlement claim and runs the resolver
// synchronously; a concurrent last-roller simply loses the
// compare-and-set and returns with AllRolled only.
func (s *GameService) SubmitRoll(ctx context.Context, gameID, userID, rolledNumber int64) (*RollOutcome, error) {
	if rolledNumber <= 0 {
		return nil, ErrInvalidRoll
	}

	g, err := s.games.Get(ctx, gameID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	if g.Status != domain.GameInProgress {
		return nil, ErrRollNotOpen
	}

	if err := s.games.SetRoll(ctx, gameID, userID, rolledNumber); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			return nil, ErrAlreadyRolled
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotAPlayer
		}
		return nil, err
	}

	outstanding, err := s.games.CountOutstandingRolls(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if outstanding > 0 {
		return &RollOutcome{}, nil
	}

	claimed, err := s.games.CASStatus(ctx, gameID, domain.GameInProgress, domain.GameResolving)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// another last-roller won the claim and is settling
		return &RollOutcome{AllRolled: true}, nil
	}

	if err := s.settler.Resolve(ctx, gameID); err != nil {
		// the claim stays held; the recovery worker re-drives it
		logger.Error("settlement failed, game left resolving", "game_id", gameID, "error", err)
		return nil, err
	}
	return &RollOutcome{AllRolled: true, Settled: true}, nil
}

// CancelExpired sweeps waiting games that failed to fill in time and
// refunds their stakes.
func (s *GameService) CancelExpired(ctx context.Context, fillTimeout time.Duration) error {
	cutoff := time.Now().Add(-fillTimeout)
	stale, err := s.games.ListWaitingBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, g := range stale {
		if err := s.settler.Cancel(ctx, g.ID); err != nil {
			logger.Error("failed to cancel expired game", "game_id", g.ID, "error", err)
		}
	}
	return nil
}

func stakeReference(gameID, userID int64) string {
	return fmt.Sprintf("game:%d:stake:%d", gameID, userID)
}
