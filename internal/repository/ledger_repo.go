package repository

import (
	"context"
	"errors"

	"stonepot/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepository is the append-only transaction log. Entries are never
// updated except for the one-way pending -> {completed,failed} transition;
// the unique reference column is the idempotency guard for every money
// movement in the system.
type LedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const ledgerColumns = `id, user_id, amount, currency, kind, status, reference, game_id, created_at`

// InsertTx appends a new entry inside an existing transaction. A reference
// collision yields ErrDuplicateReference.
func (r *LedgerRepository) InsertTx(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	if e.Currency == "" {
		e.Currency = "NGN"
	}
	err := tx.QueryRow(ctx,
		`INSERT INTO ledger_entries (user_id, amount, currency, kind, status, reference, game_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		e.UserID, e.Amount, e.Currency, e.Kind, e.Status, e.Reference, e.GameID,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

// GetByReference looks an entry up by its idempotency reference. Failed
// entries do not hold the reference (they may be retried), so the live
// entry wins when both exist.
func (r *LedgerRepository) GetByReference(ctx context.Context, reference string) (*domain.LedgerEntry, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		 WHERE reference = $1
		 ORDER BY (status = 'failed'), id DESC
		 LIMIT 1`, reference)
	return scanEntry(row)
}

// GetByReferenceTx is GetByReference inside a transaction, locking the row.
func (r *LedgerRepository) GetByReferenceTx(ctx context.Context, tx pgx.Tx, reference string) (*domain.LedgerEntry, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		 WHERE reference = $1
		 ORDER BY (status = 'failed'), id DESC
		 LIMIT 1
		 FOR UPDATE`, reference)
	return scanEntry(row)
}

// GetByUserID returns a user's entries in creation order, oldest first.
// This is the audit/export read; balance reads go through the wallet.
func (r *LedgerRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+ledgerColumns+`
		 FROM ledger_entries
		 WHERE user_id = $1
		 ORDER BY created_at ASC, id ASC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// MarkStatusTx performs the one-way pending -> {completed,failed}
// transition. Anything else is ErrInvalidStateTransition.
func (r *LedgerRepository) MarkStatusTx(ctx context.Context, tx pgx.Tx, id int64, to domain.EntryStatus) error {
	if !domain.EntryPending.CanTransition(to) {
		return ErrInvalidStateTransition
	}
	tag, err := tx.Exec(ctx,
		`UPDATE ledger_entries SET status = $2 WHERE id = $1 AND status = 'pending'`,
		id, to,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStateTransition
	}
	return nil
}

// SumCompletedByUser recomputes a balance from the ledger. Used by the
// reconciliation worker to detect projection drift.
func (r *LedgerRepository) SumCompletedByUser(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		 WHERE user_id = $1 AND status = 'completed'`,
		userID,
	).Scan(&sum)
	return sum, err
}

// SumStakesForGame returns the total of completed stake entries for a
// game. The game's stake_pot must always match it.
func (r *LedgerRepository) SumStakesForGame(ctx context.Context, gameID int64) (int64, error) {
	var sum int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(-amount), 0) FROM ledger_entries
		 WHERE game_id = $1 AND kind = 'stake' AND status = 'completed'`,
		gameID,
	).Scan(&sum)
	return sum, err
}

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	if err := row.Scan(
		&e.ID, &e.UserID, &e.Amount, &e.Currency, &e.Kind, &e.Status,
		&e.Reference, &e.GameID, &e.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func scanEntries(rows pgx.Rows) ([]*domain.LedgerEntry, error) {
	var result []*domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Amount, &e.Currency, &e.Kind, &e.Status,
			&e.Reference, &e.GameID, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
