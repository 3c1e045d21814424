// Package settle holds the pure settlement arithmetic: winner selection
// and pot division. It is deliberately free of storage and transport so
// the monetary invariants can be tested exhaustively.
package settle

import (
	"errors"
	"sort"
)

var ErrNoRolls = errors.New("no rolls to settle")

// Roll is one player's submitted number.
type Roll struct {
	UserID int64
	Number int64
}

// Result is the full monetary outcome of one game. The invariant
// PerWinnerShare*len(WinnerIDs) + Commission == Pot holds exactly.
type Result struct {
	WinnerIDs      []int64
	WinningNumber  int64
	Pot            int64
	Commission     int64
	PrizePool      int64
	PerWinnerShare int64
}

// Resolve determines winners and splits the pot.
//
// Winners are every player whose roll equals the maximum (ties split the
// pot). Commission is floor(pot * rateBps / 10000); the prize pool is
// divided evenly and any integer-division residue is absorbed into
// commission, so no minor unit is ever created or destroyed.
func Resolve(rolls []Roll, pot int64, rateBps int) (Result, error) {
	if len(rolls) == 0 {
		return Result{}, ErrNoRolls
	}

	maxRoll := rolls[0].Number
	for _, r := range rolls[1:] {
		if r.Number > maxRoll {
			maxRoll = r.Number
		}
	}

	var winners []int64
	for _, r := range rolls {
		if r.Number == maxRoll {
			winners = append(winners, r.UserID)
		}
	}
	sort.Slice(winners, func(i, j int) bool { return winners[i] < winners[j] })

	commission := pot * int64(rateBps) / 10000
	prizePool := pot - commission
	share := prizePool / int64(len(winners))
	// rounding residue goes to the house, not the players
	commission += prizePool - share*int64(len(winners))

	return Result{
		WinnerIDs:      winners,
		WinningNumber:  maxRoll,
		Pot:            pot,
		Commission:     commission,
		PrizePool:      pot - commission,
		PerWinnerShare: share,
	}, nil
}
