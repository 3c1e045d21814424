package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stonepot/internal/domain"
	"stonepot/internal/logger"
	"stonepot/internal/metrics"
	"stonepot/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var (
	ErrUnsupportedEvent   = errors.New("unsupported webhook event type")
	ErrUnknownReference   = errors.New("unknown payment reference")
	ErrInvalidWebhookBody = errors.New("invalid webhook payload")
)

// Outcomes a processed event can land on. Replays of a finished event
// return the recorded outcome without touching money again.
const (
	OutcomeApplied    = "applied"
	OutcomeIgnored    = "ignored"
	OutcomeDeadLetter = "dead_letter"
)

const webhookCacheTTL = 24 * time.Hour

// WebhookService reconciles payment-provider events against the ledger.
// Every delivery is recorded; failed applications retry until the attempt
// bound, then dead-letter so a poisoned event cannot retry forever. A
// Redis result cache short-circuits replays of finished events without a
// DB round trip; Redis being down only costs that shortcut.
type WebhookService struct {
	db          *pgxpool.Pool
	events      *repository.WebhookRepository
	wallet      *WalletService
	rdb         *redis.Client
	maxAttempts int
}

func NewWebhookService(db *pgxpool.Pool, wallet *WalletService, rdb *redis.Client, maxAttempts int) *WebhookService {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &WebhookService{
		db:          db,
		events:      repository.NewWebhookRepository(db),
		wallet:      wallet,
		rdb:         rdb,
		maxAttempts: maxAttempts,
	}
}

// HandleEvent processes one delivery. The returned outcome is what the
// HTTP layer reports back to the provider; a non-nil error means the
// delivery should be retried (the provider gets a 5xx).
func (s *WebhookService) HandleEvent(ctx context.Context, ev *domain.WebhookEvent) (string, error) {
	if !ev.EventType.Valid() {
		metrics.Webhooks.WithLabelValues(string(ev.EventType), "rejected").Inc()
		return "", fmt.Errorf("%w: %s", ErrUnsupportedEvent, ev.EventType)
	}
	if ev.Reference == "" {
		metrics.Webhooks.WithLabelValues(string(ev.EventType), "rejected").Inc()
		return "", fmt.Errorf("%w: missing reference", ErrInvalidWebhookBody)
	}

	if outcome, ok := s.cachedOutcome(ctx, ev); ok {
		metrics.Webhooks.WithLabelValues(string(ev.EventType), "replay").Inc()
		return outcome, nil
	}

	rec, err := s.events.Record(ctx, ev)
	if err != nil {
		return "", err
	}

	switch rec.Status {
	case domain.WebhookApplied:
		s.cacheOutcome(ctx, ev, OutcomeApplied)
		metrics.Webhooks.WithLabelValues(string(ev.EventType), "replay").Inc()
		return OutcomeApplied, nil
	case domain.WebhookIgnored:
		s.cacheOutcome(ctx, ev, OutcomeIgnored)
		metrics.Webhooks.WithLabelValues(string(ev.EventType), "replay").Inc()
		return OutcomeIgnored, nil
	case domain.WebhookDeadLetter:
		// acknowledged but parked; an operator has to resolve it
		metrics.Webhooks.WithLabelValues(string(ev.EventType), "replay").Inc()
		return OutcomeDeadLetter, nil
	}

	outcome, applyErr := s.apply(ctx, rec)
	if applyErr == nil {
		status := domain.WebhookApplied
		if outcome == OutcomeIgnored {
			status = domain.WebhookIgnored
		}
		if err := s.events.SetStatus(ctx, rec.ID, status, ""); err != nil {
			return "", err
		}
		s.cacheOutcome(ctx, ev, outcome)
		metrics.Webhooks.WithLabelValues(string(ev.EventType), outcome).Inc()
		return outcome, nil
	}

	if rec.Attempts >= s.maxAttempts {
		logger.Error("webhook event dead-lettered",
			"event_type", rec.EventType, "reference", rec.Reference,
			"attempts", rec.Attempts, "error", applyErr)
		if err := s.events.SetStatus(ctx, rec.ID, domain.WebhookDeadLetter, applyErr.Error()); err != nil {
			return "", err
		}
		metrics.Webhooks.WithLabelValues(string(ev.EventType), OutcomeDeadLetter).Inc()
		return OutcomeDeadLetter, nil
	}

	if err := s.events.SetStatus(ctx, rec.ID, domain.WebhookReceived, applyErr.Error()); err != nil {
		logger.Error("failed to record webhook error", "reference", rec.Reference, "error", err)
	}
	metrics.Webhooks.WithLabelValues(string(ev.EventType), "error").Inc()
	return "", applyErr
}

// DeadLetters exposes parked events for the operator endpoint.
func (s *WebhookService) DeadLetters(ctx context.Context, limit int) ([]*domain.WebhookEvent, error) {
	return s.events.ListDeadLetters(ctx, limit)
}

func (s *WebhookService) apply(ctx context.Context, ev *domain.WebhookEvent) (string, error) {
	switch ev.EventType {
	case domain.EventChargeSuccess:
		return s.applyChargeSuccess(ctx, ev)

	case domain.EventChargeFailed:
		_, err := s.wallet.FailPending(ctx, ev.Reference)
		switch {
		case err == nil:
			return OutcomeApplied, nil
		case errors.Is(err, repository.ErrNotFound):
			// failure for a charge we never initiated; nothing to undo
			return OutcomeIgnored, nil
		case errors.Is(err, ErrInvalidStateTransition):
			// already completed, or the reference is not a deposit at all
			return OutcomeIgnored, nil
		}
		return "", err

	case domain.EventTransferSuccess:
		_, err := s.wallet.ConfirmWithdrawal(ctx, ev.Reference)
		switch {
		case err == nil:
			return OutcomeApplied, nil
		case errors.Is(err, repository.ErrNotFound):
			return "", fmt.Errorf("%w: %s", ErrUnknownReference, ev.Reference)
		case errors.Is(err, ErrInvalidStateTransition):
			return OutcomeIgnored, nil
		}
		return "", err

	case domain.EventTransferFailed, domain.EventTransferReversed:
		_, err := s.wallet.ReverseWithdrawal(ctx, ev.Reference)
		switch {
		case err == nil:
			return OutcomeApplied, nil
		case errors.Is(err, repository.ErrNotFound):
			return "", fmt.Errorf("%w: %s", ErrUnknownReference, ev.Reference)
		case errors.Is(err, ErrInvalidStateTransition):
			return OutcomeIgnored, nil
		}
		return "", err
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedEvent, ev.EventType)
}

// applyChargeSuccess credits a deposit. The usual path completes the
// pending entry created by InitDeposit; a charge made outside that flow
// (provider-hosted page) carries enough payload to credit directly.
func (s *WebhookService) applyChargeSuccess(ctx context.Context, ev *domain.WebhookEvent) (string, error) {
	_, err := s.wallet.ConfirmDeposit(ctx, ev.Reference)
	switch {
	case err == nil:
		return OutcomeApplied, nil
	case errors.Is(err, ErrInvalidStateTransition):
		// reference exists but is not a pending deposit
		return OutcomeIgnored, nil
	case !errors.Is(err, repository.ErrNotFound):
		return "", err
	}

	if ev.UserID <= 0 || ev.Amount <= 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownReference, ev.Reference)
	}
	if err := s.wallet.Register(ctx, ev.UserID); err != nil {
		return "", err
	}
	if _, err := s.wallet.Credit(ctx, ev.UserID, ev.Amount, ev.Reference, domain.KindDeposit, nil); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

func (s *WebhookService) cacheKey(ev *domain.WebhookEvent) string {
	return fmt.Sprintf("webhook:%s:%s", ev.EventType, ev.Reference)
}

func (s *WebhookService) cachedOutcome(ctx context.Context, ev *domain.WebhookEvent) (string, bool) {
	if s.rdb == nil {
		return "", false
	}
	v, err := s.rdb.Get(ctx, s.cacheKey(ev)).Result()
	if err != nil {
		return "", false
	}
	return v, v != ""
}

func (s *WebhookService) cacheOutcome(ctx context.Context, ev *domain.WebhookEvent, outcome string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Set(ctx, s.cacheKey(ev), outcome, webhookCacheTTL).Err(); err != nil {
		logger.Warn("webhook result cache write failed", "reference", ev.Reference, "error", err)
	}
}
