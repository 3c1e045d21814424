package integration

import (
	"context"
	"strconv"
	"testing"

	"stonepot/internal/domain"
	"stonepot/internal/service"
)

func newWebhookService(t *testing.T) (*service.WebhookService, *testServices) {
	t.Helper()
	db := connectDB(t)
	svc := newServices(db)
	// no redis in tests; the service must work without the result cache
	return service.NewWebhookService(db, svc.wallet, nil, 3), svc
}

func TestWebhook_ChargeSuccessCreditsOnce(t *testing.T) {
	webhooks, svc := newWebhookService(t)
	ctx := context.Background()

	userID := fundedUser(t, svc, 0)
	dep, err := svc.wallet.InitDeposit(ctx, userID, 2500)
	if err != nil {
		t.Fatalf("init deposit: %v", err)
	}

	ev := &domain.WebhookEvent{
		Reference: dep.Reference,
		EventType: domain.EventChargeSuccess,
		UserID:    userID,
		Amount:    2500,
	}

	outcome, err := webhooks.HandleEvent(ctx, ev)
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != service.OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}

	// replayed delivery: acknowledged, no second credit
	outcome, err = webhooks.HandleEvent(ctx, ev)
	if err != nil {
		t.Fatalf("replayed event: %v", err)
	}
	if outcome != service.OutcomeApplied {
		t.Fatalf("expected applied on replay, got %s", outcome)
	}

	balance, _ := svc.wallet.GetBalance(ctx, userID)
	if balance != 2500 {
		t.Fatalf("expected balance 2500, got %d", balance)
	}
}

func TestWebhook_ChargeSuccessWithoutInitCreditsFromPayload(t *testing.T) {
	webhooks, svc := newWebhookService(t)
	ctx := context.Background()

	userID := nextUserID() // no wallet yet; provider-hosted charge
	ev := &domain.WebhookEvent{
		Reference: "ext-charge:" + strconv.FormatInt(userID, 10),
		EventType: domain.EventChargeSuccess,
		UserID:    userID,
		Amount:    900,
	}

	outcome, err := webhooks.HandleEvent(ctx, ev)
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != service.OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}

	balance, err := svc.wallet.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 900 {
		t.Fatalf("expected balance 900, got %d", balance)
	}
}

func TestWebhook_ChargeFailedMarksDepositFailed(t *testing.T) {
	webhooks, svc := newWebhookService(t)
	ctx := context.Background()

	userID := fundedUser(t, svc, 0)
	dep, err := svc.wallet.InitDeposit(ctx, userID, 700)
	if err != nil {
		t.Fatalf("init deposit: %v", err)
	}

	outcome, err := webhooks.HandleEvent(ctx, &domain.WebhookEvent{
		Reference: dep.Reference,
		EventType: domain.EventChargeFailed,
	})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != service.OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}

	balance, _ := svc.wallet.GetBalance(ctx, userID)
	if balance != 0 {
		t.Fatalf("failed charge must not credit, got %d", balance)
	}
}

func TestWebhook_LateFailureAfterSuccessIsIgnored(t *testing.T) {
	webhooks, svc := newWebhookService(t)
	ctx := context.Background()

	userID := fundedUser(t, svc, 0)
	dep, err := svc.wallet.InitDeposit(ctx, userID, 500)
	if err != nil {
		t.Fatalf("init deposit: %v", err)
	}

	if _, err := webhooks.HandleEvent(ctx, &domain.WebhookEvent{
		Reference: dep.Reference,
		EventType: domain.EventChargeSuccess,
		UserID:    userID,
		Amount:    500,
	}); err != nil {
		t.Fatalf("charge.success: %v", err)
	}

	outcome, err := webhooks.HandleEvent(ctx, &domain.WebhookEvent{
		Reference: dep.Reference,
		EventType: domain.EventChargeFailed,
	})
	if err != nil {
		t.Fatalf("late charge.failed: %v", err)
	}
	if outcome != service.OutcomeIgnored {
		t.Fatalf("expected ignored, got %s", outcome)
	}

	balance, _ := svc.wallet.GetBalance(ctx, userID)
	if balance != 500 {
		t.Fatalf("late failure must not claw back the credit, got %d", balance)
	}
}

func TestWebhook_ChargeFailedOnTransferReferenceIgnored(t *testing.T) {
	webhooks, svc := newWebhookService(t)
	ctx := context.Background()

	userID := fundedUser(t, svc, 3000)
	wd, err := svc.wallet.RequestWithdrawal(ctx, userID, 1200)
	if err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}

	// a provider mix-up: charge.failed carrying a transfer reference must
	// not mark the withdrawal failed, which would strand the debited funds
	outcome, err := webhooks.HandleEvent(ctx, &domain.WebhookEvent{
		Reference: wd.Reference,
		EventType: domain.EventChargeFailed,
	})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != service.OutcomeIgnored {
		t.Fatalf("expected ignored, got %s", outcome)
	}

	entries, err := svc.wallet.GetHistory(ctx, userID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, e := range entries {
		if e.Reference == wd.Reference && e.Status != domain.EntryPending {
			t.Fatalf("withdrawal status changed to %s", e.Status)
		}
	}

	balance, _ := svc.wallet.GetBalance(ctx, userID)
	if balance != 1800 {
		t.Fatalf("expected balance untouched at 1800, got %d", balance)
	}

	drift, err := svc.wallet.Recompute(ctx, userID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if drift != 0 {
		t.Fatalf("expected zero drift, got %d", drift)
	}
}

func TestWebhook_TransferLifecycle(t *testing.T) {
	webhooks, svc := newWebhookService(t)
	ctx := context.Background()

	userID := fundedUser(t, svc, 3000)
	wd, err := svc.wallet.RequestWithdrawal(ctx, userID, 1200)
	if err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}

	outcome, err := webhooks.HandleEvent(ctx, &domain.WebhookEvent{
		Reference: wd.Reference,
		EventType: domain.EventTransferSuccess,
	})
	if err != nil {
		t.Fatalf("transfer.success: %v", err)
	}
	if outcome != service.OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}

	balance, _ := svc.wallet.GetBalance(ctx, userID)
	if balance != 1800 {
		t.Fatalf("confirmed withdrawal must not move the balance again, got %d", balance)
	}
}

func TestWebhook_TransferReversedRefunds(t *testing.T) {
	webhooks, svc := newWebhookService(t)
	ctx := context.Background()

	userID := fundedUser(t, svc, 3000)
	wd, err := svc.wallet.RequestWithdrawal(ctx, userID, 1200)
	if err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}

	ev := &domain.WebhookEvent{
		Reference: wd.Reference,
		EventType: domain.EventTransferReversed,
	}
	for i := 0; i < 2; i++ { // delivery plus replay
		outcome, err := webhooks.HandleEvent(ctx, ev)
		if err != nil {
			t.Fatalf("transfer.reversed delivery %d: %v", i+1, err)
		}
		if outcome != service.OutcomeApplied {
			t.Fatalf("expected applied, got %s", outcome)
		}
	}

	balance, _ := svc.wallet.GetBalance(ctx, userID)
	if balance != 3000 {
		t.Fatalf("expected balance restored to 3000, got %d", balance)
	}
}

func TestWebhook_UnknownTransferDeadLettersAfterRetries(t *testing.T) {
	webhooks, _ := newWebhookService(t)
	ctx := context.Background()

	ev := &domain.WebhookEvent{
		Reference: "test-ghost:" + strconv.FormatInt(nextUserID(), 10),
		EventType: domain.EventTransferSuccess,
	}

	// two failing deliveries, then the third hits the attempt bound
	for i := 0; i < 2; i++ {
		if _, err := webhooks.HandleEvent(ctx, ev); err == nil {
			t.Fatalf("delivery %d: expected retryable error", i+1)
		}
	}

	outcome, err := webhooks.HandleEvent(ctx, ev)
	if err != nil {
		t.Fatalf("final delivery: %v", err)
	}
	if outcome != service.OutcomeDeadLetter {
		t.Fatalf("expected dead_letter, got %s", outcome)
	}

	letters, err := webhooks.DeadLetters(ctx, 50)
	if err != nil {
		t.Fatalf("list dead letters: %v", err)
	}
	found := false
	for _, l := range letters {
		if l.Reference == ev.Reference {
			found = true
		}
	}
	if !found {
		t.Fatal("dead-lettered event not listed")
	}

	// subsequent deliveries of a parked event are acknowledged, not retried
	outcome, err = webhooks.HandleEvent(ctx, ev)
	if err != nil {
		t.Fatalf("post-dead-letter delivery: %v", err)
	}
	if outcome != service.OutcomeDeadLetter {
		t.Fatalf("expected dead_letter, got %s", outcome)
	}
}
