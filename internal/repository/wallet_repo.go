package repository

import (
	"context"
	"errors"

	"stonepot/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WalletRepository owns the balance+version pair. Balance is mutated only
// through ApplyDeltaTx, which is guarded by the optimistic version token;
// no other component may write it.
type WalletRepository struct {
	db *pgxpool.Pool
}

func NewWalletRepository(db *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{db: db}
}

const walletColumns = `user_id, balance, version, active, created_at, updated_at`

// Get returns the wallet for a user.
func (r *WalletRepository) Get(ctx context.Context, userID int64) (*domain.Wallet, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	return scanWallet(row)
}

// GetTx reads the wallet inside a transaction without locking it; the
// version check on the subsequent update is the concurrency guard.
func (r *WalletRepository) GetTx(ctx context.Context, tx pgx.Tx, userID int64) (*domain.Wallet, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	return scanWallet(row)
}

// Create opens a wallet with zero balance. Creating an existing wallet is
// a no-op so registration can be retried safely.
func (r *WalletRepository) Create(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO wallets (user_id, balance, version, active)
		 VALUES ($1, 0, 0, true)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	return err
}

// ApplyDeltaTx adjusts the balance by delta if and only if the caller
// holds the current version. A stale version yields ErrVersionConflict and
// the caller must re-read and re-apply its business rule. The balance
// check constraint keeps the result non-negative even under races.
// The active flag is deliberately not checked here: it is a business rule
// that gates debits only, enforced by the wallet service, and must never
// stop a credit from landing.
func (r *WalletRepository) ApplyDeltaTx(ctx context.Context, tx pgx.Tx, userID, delta, expectedVersion int64) error {
	tag, err := tx.Exec(ctx,
		`UPDATE wallets
		 SET balance = balance + $2, version = version + 1, updated_at = now()
		 WHERE user_id = $1 AND version = $3`,
		userID, delta, expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// Deactivate soft-disables a wallet. Rows are never deleted while ledger
// entries reference them.
func (r *WalletRepository) Deactivate(ctx context.Context, userID int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE wallets SET active = false, updated_at = now() WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUserIDs returns every wallet owner except the house account, for the
// reconciliation sweep.
func (r *WalletRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM wallets WHERE user_id <> $1 ORDER BY user_id`,
		domain.HouseUserID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := row.Scan(
		&w.UserID, &w.Balance, &w.Version, &w.Active, &w.CreatedAt, &w.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}
