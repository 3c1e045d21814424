package repository

import (
	"context"
	"errors"
	"time"

	"stonepot/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GameRepository owns game and roster rows while a game is open. Status
// changes go through CASStatus so every transition is a single conditional
// update that exactly one caller can win.
type GameRepository struct {
	db *pgxpool.Pool
}

func NewGameRepository(db *pgxpool.Pool) *GameRepository {
	return &GameRepository{db: db}
}

const gameColumns = `id, creator_id, max_players, stake, stake_pot, commission_rate_bps,
	status, winner_ids, winning_number, created_at, updated_at`

// Create inserts a waiting game with an empty pot.
func (r *GameRepository) Create(ctx context.Context, g *domain.Game) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO games (creator_id, max_players, stake, commission_rate_bps, status)
		 VALUES ($1, $2, $3, $4, 'waiting')
		 RETURNING id, stake_pot, created_at, updated_at`,
		g.CreatorID, g.MaxPlayers, g.Stake, g.CommissionRateBps,
	).Scan(&g.ID, &g.StakePot, &g.CreatedAt, &g.UpdatedAt)
}

// Get returns a game by id.
func (r *GameRepository) Get(ctx context.Context, id int64) (*domain.Game, error) {
	row := r.db.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	return scanGame(row)
}

// GetForUpdateTx locks the game row for the duration of the transaction.
// Join serializes on this lock so the seat count cannot be oversold.
func (r *GameRepository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id int64) (*domain.Game, error) {
	row := tx.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1 FOR UPDATE`, id)
	return scanGame(row)
}

// InsertPlayerTx adds a seat. A repeat join hits the primary key and
// returns ErrAlreadyExists.
func (r *GameRepository) InsertPlayerTx(ctx context.Context, tx pgx.Tx, p *domain.GamePlayer) error {
	err := tx.QueryRow(ctx,
		`INSERT INTO game_players (game_id, user_id, turn_order)
		 VALUES ($1, $2, $3)
		 RETURNING joined_at`,
		p.GameID, p.UserID, p.TurnOrder,
	).Scan(&p.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// AddToPotTx bumps the pot after a successful stake debit.
func (r *GameRepository) AddToPotTx(ctx context.Context, tx pgx.Tx, gameID, amount int64) error {
	_, err := tx.Exec(ctx,
		`UPDATE games SET stake_pot = stake_pot + $2, updated_at = now() WHERE id = $1`,
		gameID, amount,
	)
	return err
}

// SetStatusTx transitions the game inside the caller's transaction.
func (r *GameRepository) SetStatusTx(ctx context.Context, tx pgx.Tx, gameID int64, from, to domain.GameStatus) error {
	if !from.CanTransition(to) {
		return ErrInvalidStateTransition
	}
	tag, err := tx.Exec(ctx,
		`UPDATE games SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		gameID, from, to,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// CASStatus is the claim primitive: at most one caller observes true for
// a given transition of a given game.
func (r *GameRepository) CASStatus(ctx context.Context, gameID int64, from, to domain.GameStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, ErrInvalidStateTransition
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE games SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		gameID, from, to,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetRoll records a roll exactly once. Returns ErrAlreadyExists when the
// player rolled before and ErrNotFound when they never joined.
func (r *GameRepository) SetRoll(ctx context.Context, gameID, userID, rolledNumber int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE game_players SET rolled_number = $3
		 WHERE game_id = $1 AND user_id = $2 AND rolled_number IS NULL`,
		gameID, userID, rolledNumber,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM game_players WHERE game_id = $1 AND user_id = $2)`,
		gameID, userID,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrAlreadyExists
	}
	return ErrNotFound
}

// GetPlayers returns the roster in turn order.
func (r *GameRepository) GetPlayers(ctx context.Context, gameID int64) ([]*domain.GamePlayer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT game_id, user_id, turn_order, rolled_number, is_winner, win_share, joined_at
		 FROM game_players
		 WHERE game_id = $1
		 ORDER BY turn_order`,
		gameID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []*domain.GamePlayer
	for rows.Next() {
		var p domain.GamePlayer
		if err := rows.Scan(
			&p.GameID, &p.UserID, &p.TurnOrder, &p.RolledNumber,
			&p.IsWinner, &p.WinShare, &p.JoinedAt,
		); err != nil {
			return nil, err
		}
		players = append(players, &p)
	}
	return players, rows.Err()
}

// CountOutstandingRolls returns how many seats still have no roll.
func (r *GameRepository) CountOutstandingRolls(ctx context.Context, gameID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM game_players WHERE game_id = $1 AND rolled_number IS NULL`,
		gameID,
	).Scan(&n)
	return n, err
}

// MarkWinnersTx stamps is_winner/win_share on the winning seats.
func (r *GameRepository) MarkWinnersTx(ctx context.Context, tx pgx.Tx, gameID int64, winnerIDs []int64, share int64) error {
	_, err := tx.Exec(ctx,
		`UPDATE game_players SET is_winner = true, win_share = $3
		 WHERE game_id = $1 AND user_id = ANY($2)`,
		gameID, winnerIDs, share,
	)
	return err
}

// CompleteTx finishes settlement: winners, winning number and the
// resolving -> completed transition in one statement.
func (r *GameRepository) CompleteTx(ctx context.Context, tx pgx.Tx, gameID int64, winnerIDs []int64, winningNumber int64) error {
	tag, err := tx.Exec(ctx,
		`UPDATE games
		 SET status = 'completed', winner_ids = $2, winning_number = $3, updated_at = now()
		 WHERE id = $1 AND status = 'resolving'`,
		gameID, winnerIDs, winningNumber,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ListWaitingBefore returns waiting games created before the cutoff, i.e.
// games that failed to fill and are due for cancellation.
func (r *GameRepository) ListWaitingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Game, error) {
	return r.listByStatusBefore(ctx, domain.GameWaiting, "created_at", cutoff)
}

// ListStuck returns games parked in an intermediate claim state longer
// than the threshold; the recovery worker re-drives them.
func (r *GameRepository) ListStuck(ctx context.Context, status domain.GameStatus, cutoff time.Time) ([]*domain.Game, error) {
	return r.listByStatusBefore(ctx, status, "updated_at", cutoff)
}

func (r *GameRepository) listByStatusBefore(ctx context.Context, status domain.GameStatus, tsColumn string, cutoff time.Time) ([]*domain.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE status = $1 AND ` + tsColumn + ` < $2 ORDER BY id`
	rows, err := r.db.Query(ctx, query, status, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []*domain.Game
	for rows.Next() {
		g, err := scanGameRow(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func scanGame(row pgx.Row) (*domain.Game, error) {
	g, err := scanGameRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return g, nil
}

func scanGameRow(row pgx.Row) (*domain.Game, error) {
	var g domain.Game
	var winningNumber *int64
	if err := row.Scan(
		&g.ID, &g.CreatorID, &g.MaxPlayers, &g.Stake, &g.StakePot,
		&g.CommissionRateBps, &g.Status, &g.WinnerIDs, &winningNumber,
		&g.CreatedAt, &g.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if winningNumber != nil {
		g.WinningNumber = *winningNumber
	}
	return &g, nil
}
