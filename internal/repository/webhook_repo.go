package repository

import (
	"context"
	"errors"

	"stonepot/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookRepository tracks every (event_type, reference) pair a provider
// has ever delivered: how often it arrived, whether it was applied, and
// when it got dead-lettered.
type WebhookRepository struct {
	db *pgxpool.Pool
}

func NewWebhookRepository(db *pgxpool.Pool) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const webhookColumns = `id, reference, event_type, user_id, amount, status, attempts,
	COALESCE(last_error, ''), created_at, updated_at`

// Get looks up the bookkeeping row for one event.
func (r *WebhookRepository) Get(ctx context.Context, reference string, eventType domain.WebhookEventType) (*domain.WebhookEvent, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+webhookColumns+` FROM webhook_events
		 WHERE reference = $1 AND event_type = $2`,
		reference, eventType,
	)
	return scanWebhookEvent(row)
}

// Record upserts the event row, counting one delivery attempt, and
// returns the current state. The first delivery creates the row with
// status received; replays bump attempts.
func (r *WebhookRepository) Record(ctx context.Context, ev *domain.WebhookEvent) (*domain.WebhookEvent, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO webhook_events (reference, event_type, user_id, amount, status, attempts)
		 VALUES ($1, $2, $3, $4, 'received', 1)
		 ON CONFLICT (reference, event_type) DO UPDATE
		 SET attempts = webhook_events.attempts + 1, updated_at = now()
		 RETURNING `+webhookColumns,
		ev.Reference, ev.EventType, ev.UserID, ev.Amount,
	)
	return scanWebhookEvent(row)
}

// SetStatus moves the event to applied/ignored/dead_letter, recording the
// last error if any.
func (r *WebhookRepository) SetStatus(ctx context.Context, id int64, status domain.WebhookStatus, lastError string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE webhook_events
		 SET status = $2, last_error = NULLIF($3, ''), updated_at = now()
		 WHERE id = $1`,
		id, status, lastError,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDeadLetters returns dead-lettered events for operator review.
func (r *WebhookRepository) ListDeadLetters(ctx context.Context, limit int) ([]*domain.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhook_events
		 WHERE status = 'dead_letter'
		 ORDER BY updated_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.WebhookEvent
	for rows.Next() {
		var ev domain.WebhookEvent
		if err := rows.Scan(
			&ev.ID, &ev.Reference, &ev.EventType, &ev.UserID, &ev.Amount,
			&ev.Status, &ev.Attempts, &ev.LastError, &ev.CreatedAt, &ev.UpdatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func scanWebhookEvent(row pgx.Row) (*domain.WebhookEvent, error) {
	var ev domain.WebhookEvent
	if err := row.Scan(
		&ev.ID, &ev.Reference, &ev.EventType, &ev.UserID, &ev.Amount,
		&ev.Status, &ev.Attempts, &ev.LastError, &ev.CreatedAt, &ev.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}
