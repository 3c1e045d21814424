package domain

import "time"

// Wallet is the cached spendable-balance projection for one user.
// Balance is in minor units and must always equal the sum of the user's
// completed ledger entries; Version is the optimistic-lock token and is
// bumped on every debit/credit.
type Wallet struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	Version   int64     `db:"version" json:"version"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HouseUserID is the reserved wallet that collects commission and the
// rounding residue of tie splits. Seeded by migration.
const HouseUserID int64 = 0
