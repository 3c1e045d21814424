package integration

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"stonepot/internal/domain"
	"stonepot/internal/service"
)

func TestWallet_DebitIsIdempotent(t *testing.T) {
	db := connectDB(t)
	svc := newServices(db)
	ctx := context.Background()

	userID := fundedUser(t, svc, 1000)
	ref := "test-debit:" + strconv.FormatInt(userID, 10)

	first, err := svc.wallet.Debit(ctx, userID, 300, ref, domain.KindStake, nil)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}

	second, err := svc.wallet.Debit(ctx, userID, 300, ref, domain.KindStake, nil)
	if err != nil {
		t.Fatalf("replayed debit: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay produced a new entry: %d vs %d", second.ID, first.ID)
	}

	balance, err := svc.wallet.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 700 {
		t.Fatalf("expected balance 700 after one debit, got %d", balance)
	}
}

func TestWallet_DebitInsufficientFunds(t *testing.T) {
	db := connectDB(t)
	svc := newServices(db)
	ctx := context.Background()

	userID := fundedUser(t, svc, 100)
	ref := "test-overdraw:" + strconv.FormatInt(userID, 10)

	_, err := svc.wallet.Debit(ctx, userID, 500, ref, domain.KindStake, nil)
	if !errors.Is(err, service.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, err := svc.wallet.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 100 {
		t.Fatalf("failed debit must not move the balance, got %d", balance)
	}
}

func TestWallet_FailedEntryFreesReference(t *testing.T) {
	db := connectDB(t)
	svc := newServices(db)
	ctx := context.Background()

	userID := fundedUser(t, svc, 0)

	entry, err := svc.wallet.InitDeposit(ctx, userID, 400)
	if err != nil {
		t.Fatalf("init deposit: %v", err)
	}

	if _, err := svc.wallet.FailPending(ctx, entry.Reference); err != nil {
		t.Fatalf("fail pending: %v", err)
	}

	// the terminal-rejected reference may be reused by a retried charge
	retried, err := svc.wallet.Credit(ctx, userID, 400, entry.Reference, domain.KindDeposit, nil)
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if retried.ID == entry.ID {
		t.Fatal("expected a fresh entry for the retried reference")
	}

	balance, err := svc.wallet.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 400 {
		t.Fatalf("expected balance 400, got %d", balance)
	}
}

func TestWallet_WithdrawalReversalRestoresBalance(t *testing.T) {
	db := connectDB(t)
	svc := newServices(db)
	ctx := context.Background()

	userID := fundedUser(t, svc, 1000)

	wd, err := svc.wallet.RequestWithdrawal(ctx, userID, 600)
	if err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}

	balance, _ := svc.wallet.GetBalance(ctx, userID)
	if balance != 400 {
		t.Fatalf("expected balance 400 while withdrawal pending, got %d", balance)
	}

	if _, err := svc.wallet.ReverseWithdrawal(ctx, wd.Reference); err != nil {
		t.Fatalf("reverse withdrawal: %v", err)
	}

	// a replayed transfer.failed delivery must not double-refund
	if _, err := svc.wallet.ReverseWithdrawal(ctx, wd.Reference); err != nil {
		t.Fatalf("replayed reversal: %v", err)
	}

	balance, _ = svc.wallet.GetBalance(ctx, userID)
	if balance != 1000 {
		t.Fatalf("expected balance restored to 1000, got %d", balance)
	}

	drift, err := svc.wallet.Recompute(ctx, userID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if drift != 0 {
		t.Fatalf("expected zero drift after reversal, got %d", drift)
	}
}

func TestWallet_ConcurrentMutationsStayConsistent(t *testing.T) {
	db := connectDB(t)
	svc := newServices(db)
	ctx := context.Background()

	userID := fundedUser(t, svc, 1000)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var debited int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := "test-race:" + strconv.FormatInt(userID, 10) + ":" + strconv.Itoa(i)
			_, err := svc.wallet.Debit(ctx, userID, 100, ref, domain.KindStake, nil)
			switch {
			case err == nil:
				mu.Lock()
				debited += 100
				mu.Unlock()
			case errors.Is(err, service.ErrConcurrentModification):
				// the retry bound was exhausted; losing is fine, drifting is not
			default:
				t.Errorf("debit %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	balance, err := svc.wallet.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 1000-debited {
		t.Fatalf("expected balance %d after %d debited, got %d", 1000-debited, debited, balance)
	}

	drift, err := svc.wallet.Recompute(ctx, userID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if drift != 0 {
		t.Fatalf("expected zero drift under contention, got %d", drift)
	}
}

func TestWallet_RecomputeSeesNoDrift(t *testing.T) {
	db := connectDB(t)
	svc := newServices(db)
	ctx := context.Background()

	userID := fundedUser(t, svc, 2500)
	ref := "test-hist:" + strconv.FormatInt(userID, 10)
	if _, err := svc.wallet.Debit(ctx, userID, 900, ref, domain.KindStake, nil); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if _, err := svc.wallet.RequestWithdrawal(ctx, userID, 100); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	drift, err := svc.wallet.Recompute(ctx, userID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if drift != 0 {
		t.Fatalf("expected zero drift, got %d", drift)
	}

	entries, err := svc.wallet.GetHistory(ctx, userID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(entries))
	}
}
