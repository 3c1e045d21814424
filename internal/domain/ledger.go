package domain

import "time"

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	KindDeposit    EntryKind = "deposit"
	KindWithdrawal EntryKind = "withdrawal"
	KindStake      EntryKind = "stake"
	KindWinnings   EntryKind = "winnings"
	KindRefund     EntryKind = "refund"
	KindCommission EntryKind = "commission"
)

// EntryStatus is the lifecycle state of a ledger entry.
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
	EntryDisputed  EntryStatus = "disputed"
)

// LedgerEntry is one immutable monetary movement. Amount is signed minor
// units (debits negative, credits positive). Reference is globally unique
// and is the sole idempotency primitive: replaying an operation with the
// same reference is a no-op.
type LedgerEntry struct {
	ID        int64       `db:"id" json:"id"`
	UserID    int64       `db:"user_id" json:"user_id"`
	Amount    int64       `db:"amount" json:"amount"`
	Currency  string      `db:"currency" json:"currency"`
	Kind      EntryKind   `db:"kind" json:"kind"`
	Status    EntryStatus `db:"status" json:"status"`
	Reference string      `db:"reference" json:"reference"`
	GameID    *int64      `db:"game_id" json:"game_id,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

// CanTransition reports whether a ledger status change is legal.
// Only pending entries may move, and only to completed or failed; a
// completed entry is immutable and corrections require an offsetting entry.
func (s EntryStatus) CanTransition(to EntryStatus) bool {
	if s != EntryPending {
		return false
	}
	return to == EntryCompleted || to == EntryFailed
}
