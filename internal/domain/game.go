package domain

import "time"

// GameStatus is the lifecycle state of a game.
type GameStatus string

const (
	GameWaiting    GameStatus = "waiting"
	GameInProgress GameStatus = "in_progress"
	// GameResolving is the settlement claim: exactly one caller wins the
	// in_progress -> resolving transition and runs the resolver.
	GameResolving  GameStatus = "resolving"
	GameCompleted  GameStatus = "completed"
	GameCancelling GameStatus = "cancelling"
	GameCancelled  GameStatus = "cancelled"
)

// CanTransition reports whether a game status change is legal.
// Forward-only: waiting may fill or expire, settlement and cancellation
// each pass through an intermediate claim state, terminals never move.
func (s GameStatus) CanTransition(to GameStatus) bool {
	switch s {
	case GameWaiting:
		return to == GameInProgress || to == GameCancelling
	case GameInProgress:
		return to == GameResolving
	case GameResolving:
		return to == GameCompleted
	case GameCancelling:
		return to == GameCancelled
	}
	return false
}

// Terminal reports whether the status is a dead end.
func (s GameStatus) Terminal() bool {
	return s == GameCompleted || s == GameCancelled
}

// Game is one stone-rolling round: players join by staking into the pot,
// roll once each, and the highest roll(s) take the pot minus commission.
type Game struct {
	ID                int64      `db:"id" json:"id"`
	CreatorID         int64      `db:"creator_id" json:"creator_id"`
	MaxPlayers        int        `db:"max_players" json:"max_players"`
	Stake             int64      `db:"stake" json:"stake"`
	StakePot          int64      `db:"stake_pot" json:"stake_pot"`
	CommissionRateBps int        `db:"commission_rate_bps" json:"commission_rate_bps"`
	Status            GameStatus `db:"status" json:"status"`
	WinnerIDs         []int64    `db:"winner_ids" json:"winner_ids,omitempty"`
	WinningNumber     int64      `db:"winning_number" json:"winning_number,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// GamePlayer is one seat in a game. RolledNumber is set at most once;
// after the game completes the row is read-only history.
type GamePlayer struct {
	GameID       int64     `db:"game_id" json:"game_id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	TurnOrder    int       `db:"turn_order" json:"turn_order"`
	RolledNumber *int64    `db:"rolled_number" json:"rolled_number,omitempty"`
	IsWinner     bool      `db:"is_winner" json:"is_winner"`
	WinShare     int64     `db:"win_share" json:"win_share,omitempty"`
	JoinedAt     time.Time `db:"joined_at" json:"joined_at"`
}
