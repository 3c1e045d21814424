package service

import (
	"context"
	"errors"
	"fmt"

	"stonepot/internal/domain"
	"stonepot/internal/logger"
	"stonepot/internal/metrics"
	"stonepot/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrWalletInactive         = errors.New("wallet inactive")
)

// Version conflicts are transient: another request touched the same
// wallet between our read and our write. Re-read and re-apply, bounded.
const maxVersionRetries = 3

// WalletService is the only component allowed to move money. Every
// mutation is one DB transaction pairing a version-guarded balance update
// with a ledger insert, so the cached balance and the ledger can never
// diverge by more than the pending-withdrawal window.
type WalletService struct {
	db      *pgxpool.Pool
	wallets *repository.WalletRepository
	ledger  *repository.LedgerRepository
}

func NewWalletService(db *pgxpool.Pool) *WalletService {
	return &WalletService{
		db:      db,
		wallets: repository.NewWalletRepository(db),
		ledger:  repository.NewLedgerRepository(db),
	}
}

// Register opens a zero-balance wallet for a new user. Safe to repeat.
func (s *WalletService) Register(ctx context.Context, userID int64) error {
	return s.wallets.Create(ctx, userID)
}

// GetBalance returns the cached balance projection.
func (s *WalletService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	w, err := s.wallets.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrWalletNotFound
		}
		return 0, err
	}
	return w.Balance, nil
}

// GetHistory returns the user's ledger entries, oldest first.
func (s *WalletService) GetHistory(ctx context.Context, userID int64, limit int) ([]*domain.LedgerEntry, error) {
	return s.ledger.GetByUserID(ctx, userID, limit)
}

// Debit atomically withdraws amount from the user's balance and appends a
// completed ledger entry. A replayed reference returns the prior entry as
// a no-op; a stale version is retried with a fresh read so the funds check
// always runs against current state.
func (s *WalletService) Debit(ctx context.Context, userID, amount int64, reference string, kind domain.EntryKind, gameID *int64) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if prior, err := s.priorResult(ctx, reference); prior != nil || err != nil {
		return prior, err
	}

	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		entry, err := s.applyOnce(ctx, userID, -amount, reference, kind, domain.EntryCompleted, gameID, true)
		if err == nil || !errors.Is(err, repository.ErrVersionConflict) {
			return entry, err
		}
	}
	metrics.WalletConflicts.Inc()
	return nil, ErrConcurrentModification
}

// Credit atomically adds amount to the user's balance with a completed
// ledger entry. Business rules never block a credit; only a duplicate
// reference (no-op) or a storage error can stop it.
func (s *WalletService) Credit(ctx context.Context, userID, amount int64, reference string, kind domain.EntryKind, gameID *int64) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if prior, err := s.priorResult(ctx, reference); prior != nil || err != nil {
		return prior, err
	}

	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		entry, err := s.applyOnce(ctx, userID, amount, reference, kind, domain.EntryCompleted, gameID, false)
		if err == nil || !errors.Is(err, repository.ErrVersionConflict) {
			return entry, err
		}
	}
	metrics.WalletConflicts.Inc()
	return nil, ErrConcurrentModification
}

// DebitTx runs a single debit attempt inside the caller's transaction, so
// a stake debit and a roster insert commit or roll back together. The
// caller owns retry on ErrConcurrentModification.
func (s *WalletService) DebitTx(ctx context.Context, tx pgx.Tx, userID, amount int64, reference string, kind domain.EntryKind, gameID *int64) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	w, err := s.wallets.GetTx(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	if !w.Active {
		return nil, ErrWalletInactive
	}
	if w.Balance < amount {
		return nil, ErrInsufficientFunds
	}

	if err := s.wallets.ApplyDeltaTx(ctx, tx, userID, -amount, w.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, ErrConcurrentModification
		}
		return nil, err
	}

	entry := &domain.LedgerEntry{
		UserID:    userID,
		Amount:    -amount,
		Kind:      kind,
		Status:    domain.EntryCompleted,
		Reference: reference,
		GameID:    gameID,
	}
	if err := s.ledger.InsertTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// RequestWithdrawal optimistically debits the balance and records a
// pending withdrawal entry. The provider's transfer.* webhook later
// confirms or reverses it.
func (s *WalletService) RequestWithdrawal(ctx context.Context, userID, amount int64) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	reference := "wd:" + uuid.NewString()
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		entry, err := s.applyOnce(ctx, userID, -amount, reference, domain.KindWithdrawal, domain.EntryPending, nil, true)
		if err == nil || !errors.Is(err, repository.ErrVersionConflict) {
			return entry, err
		}
	}
	metrics.WalletConflicts.Inc()
	return nil, ErrConcurrentModification
}

// InitDeposit records a pending deposit intent and hands the reference to
// the client for the provider charge. No balance change until the
// charge.success webhook lands.
func (s *WalletService) InitDeposit(ctx context.Context, userID, amount int64) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := s.wallets.Get(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	entry := &domain.LedgerEntry{
		UserID:    userID,
		Amount:    amount,
		Kind:      domain.KindDeposit,
		Status:    domain.EntryPending,
		Reference: "dep:" + uuid.NewString(),
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.ledger.InsertTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, tx.Commit(ctx)
}

// ConfirmDeposit completes a pending deposit entry and credits the
// balance in one transaction. Already-completed entries are a no-op.
func (s *WalletService) ConfirmDeposit(ctx context.Context, reference string) (*domain.LedgerEntry, error) {
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		entry, err := s.confirmDepositOnce(ctx, reference)
		if err == nil || !errors.Is(err, repository.ErrVersionConflict) {
			return entry, err
		}
	}
	metrics.WalletConflicts.Inc()
	return nil, ErrConcurrentModification
}

func (s *WalletService) confirmDepositOnce(ctx context.Context, reference string) (*domain.LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := s.ledger.GetByReferenceTx(ctx, tx, reference)
	if err != nil {
		return nil, err
	}
	if entry.Status == domain.EntryCompleted {
		return entry, nil
	}
	if entry.Status == domain.EntryFailed {
		// terminal-rejected; the retried charge is a new deposit
		return nil, repository.ErrNotFound
	}
	if entry.Status != domain.EntryPending || entry.Kind != domain.KindDeposit {
		return nil, ErrInvalidStateTransition
	}

	if err := s.ledger.MarkStatusTx(ctx, tx, entry.ID, domain.EntryCompleted); err != nil {
		return nil, translateLedgerErr(err)
	}

	w, err := s.wallets.GetTx(ctx, tx, entry.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.wallets.ApplyDeltaTx(ctx, tx, entry.UserID, entry.Amount, w.Version); err != nil {
		return nil, err
	}

	entry.Status = domain.EntryCompleted
	return entry, tx.Commit(ctx)
}

// FailPending marks a pending deposit entry failed with no balance
// change. Used for charge.failed; the terminal-rejected entry frees the
// reference for a retried charge. Non-deposit references are rejected
// with ErrInvalidStateTransition.
func (s *WalletService) FailPending(ctx context.Context, reference string) (*domain.LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := s.ledger.GetByReferenceTx(ctx, tx, reference)
	if err != nil {
		return nil, err
	}
	if entry.Status == domain.EntryFailed {
		return entry, nil
	}
	// Only deposits fail without a balance correction; a failed transfer
	// must go through ReverseWithdrawal so the debited amount comes back.
	if entry.Kind != domain.KindDeposit {
		return nil, ErrInvalidStateTransition
	}
	if err := s.ledger.MarkStatusTx(ctx, tx, entry.ID, domain.EntryFailed); err != nil {
		return nil, translateLedgerErr(err)
	}
	entry.Status = domain.EntryFailed
	return entry, tx.Commit(ctx)
}

// ConfirmWithdrawal completes a pending withdrawal entry. The balance was
// debited at request time, so there is no further movement.
func (s *WalletService) ConfirmWithdrawal(ctx context.Context, reference string) (*domain.LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := s.ledger.GetByReferenceTx(ctx, tx, reference)
	if err != nil {
		return nil, err
	}
	if entry.Status == domain.EntryCompleted {
		return entry, nil
	}
	if entry.Kind != domain.KindWithdrawal {
		return nil, ErrInvalidStateTransition
	}
	if err := s.ledger.MarkStatusTx(ctx, tx, entry.ID, domain.EntryCompleted); err != nil {
		return nil, translateLedgerErr(err)
	}
	entry.Status = domain.EntryCompleted
	return entry, tx.Commit(ctx)
}

// ReverseWithdrawal undoes a withdrawal whose transfer failed or was
// reversed by the provider: the withdrawal entry is completed and an
// offsetting refund entry credits the money back, so the ledger records
// the correction instead of rewriting history.
func (s *WalletService) ReverseWithdrawal(ctx context.Context, reference string) (*domain.LedgerEntry, error) {
	reversalRef := reference + ":reversal"
	if prior, err := s.priorResult(ctx, reversalRef); prior != nil || err != nil {
		return prior, err
	}

	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		entry, err := s.reverseWithdrawalOnce(ctx, reference, reversalRef)
		if err == nil || !errors.Is(err, repository.ErrVersionConflict) {
			return entry, err
		}
	}
	metrics.WalletConflicts.Inc()
	return nil, ErrConcurrentModification
}

func (s *WalletService) reverseWithdrawalOnce(ctx context.Context, reference, reversalRef string) (*domain.LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := s.ledger.GetByReferenceTx(ctx, tx, reference)
	if err != nil {
		return nil, err
	}
	if entry.Kind != domain.KindWithdrawal {
		return nil, ErrInvalidStateTransition
	}
	if entry.Status == domain.EntryPending {
		if err := s.ledger.MarkStatusTx(ctx, tx, entry.ID, domain.EntryCompleted); err != nil {
			return nil, translateLedgerErr(err)
		}
	}

	amount := -entry.Amount // withdrawal entries are negative
	refund := &domain.LedgerEntry{
		UserID:    entry.UserID,
		Amount:    amount,
		Kind:      domain.KindRefund,
		Status:    domain.EntryCompleted,
		Reference: reversalRef,
	}
	if err := s.ledger.InsertTx(ctx, tx, refund); err != nil {
		if errors.Is(err, repository.ErrDuplicateReference) {
			// reversal already applied by an earlier delivery
			return s.ledger.GetByReference(ctx, reversalRef)
		}
		return nil, err
	}

	w, err := s.wallets.GetTx(ctx, tx, entry.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.wallets.ApplyDeltaTx(ctx, tx, entry.UserID, amount, w.Version); err != nil {
		return nil, err
	}

	return refund, tx.Commit(ctx)
}

// Recompute audits one wallet: cached balance minus what the ledger says
// it should be. Pending withdrawals already left the balance, so they
// count toward the expectation. A non-zero drift is an integrity bug.
func (s *WalletService) Recompute(ctx context.Context, userID int64) (int64, error) {
	w, err := s.wallets.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrWalletNotFound
		}
		return 0, err
	}

	completed, err := s.ledger.SumCompletedByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	var pendingWithdrawals int64
	err = s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		 WHERE user_id = $1 AND kind = 'withdrawal' AND status = 'pending'`,
		userID,
	).Scan(&pendingWithdrawals)
	if err != nil {
		return 0, err
	}

	drift := w.Balance - (completed + pendingWithdrawals)
	if drift != 0 {
		metrics.BalanceDrift.Inc()
		logger.Error("wallet balance drift detected",
			"user_id", userID, "balance", w.Balance, "expected", completed+pendingWithdrawals)
	}
	return drift, nil
}

// Deactivate freezes a wallet: the active flag gates debits, so a frozen
// wallet can no longer stake or withdraw. Credits still land, so a frozen
// player's winnings, refunds and reversals settle normally. Ledger
// history stays readable.
func (s *WalletService) Deactivate(ctx context.Context, userID int64) error {
	err := s.wallets.Deactivate(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrWalletNotFound
	}
	return err
}

// ListUserIDs exposes the wallet population to the reconciliation worker.
func (s *WalletService) ListUserIDs(ctx context.Context) ([]int64, error) {
	return s.wallets.ListUserIDs(ctx)
}

// applyOnce is one attempt at a balance mutation paired with its ledger
// entry. checkFunds selects debit semantics.
func (s *WalletService) applyOnce(ctx context.Context, userID, delta int64, reference string, kind domain.EntryKind, status domain.EntryStatus, gameID *int64, checkFunds bool) (*domain.LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	w, err := s.wallets.GetTx(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	if checkFunds {
		if !w.Active {
			return nil, ErrWalletInactive
		}
		if w.Balance < -delta {
			return nil, ErrInsufficientFunds
		}
	}

	if err := s.wallets.ApplyDeltaTx(ctx, tx, userID, delta, w.Version); err != nil {
		return nil, err
	}

	entry := &domain.LedgerEntry{
		UserID:    userID,
		Amount:    delta,
		Kind:      kind,
		Status:    status,
		Reference: reference,
		GameID:    gameID,
	}
	if err := s.ledger.InsertTx(ctx, tx, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicateReference) {
			// lost a replay race after the pre-check; return the winner
			return s.ledger.GetByReference(ctx, reference)
		}
		return nil, err
	}

	return entry, tx.Commit(ctx)
}

// priorResult short-circuits replayed references to the entry the first
// delivery produced.
func (s *WalletService) priorResult(ctx context.Context, reference string) (*domain.LedgerEntry, error) {
	entry, err := s.ledger.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if entry.Status == domain.EntryFailed {
		// terminal-rejected: the reference is free to be retried
		return nil, nil
	}
	return entry, nil
}

func translateLedgerErr(err error) error {
	if errors.Is(err, repository.ErrInvalidStateTransition) {
		return fmt.Errorf("%w: ledger status", ErrInvalidStateTransition)
	}
	return err
}
