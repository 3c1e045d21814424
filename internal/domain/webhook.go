package domain

import "time"

// WebhookEventType enumerates the payment-provider events the reconciler
// accepts. Anything else is rejected at the boundary.
type WebhookEventType string

const (
	EventChargeSuccess    WebhookEventType = "charge.success"
	EventChargeFailed     WebhookEventType = "charge.failed"
	EventTransferSuccess  WebhookEventType = "transfer.success"
	EventTransferFailed   WebhookEventType = "transfer.failed"
	EventTransferReversed WebhookEventType = "transfer.reversed"
)

// Valid reports whether the event type is one the engine understands.
func (t WebhookEventType) Valid() bool {
	switch t {
	case EventChargeSuccess, EventChargeFailed, EventTransferSuccess,
		EventTransferFailed, EventTransferReversed:
		return true
	}
	return false
}

// WebhookStatus tracks how far a received event got.
type WebhookStatus string

const (
	WebhookReceived   WebhookStatus = "received"
	WebhookApplied    WebhookStatus = "applied"
	WebhookIgnored    WebhookStatus = "ignored"
	WebhookDeadLetter WebhookStatus = "dead_letter"
)

// WebhookEvent is the bookkeeping row for one (event_type, reference)
// pair. Attempts counts deliveries that failed to apply; once it crosses
// the configured bound the event is dead-lettered instead of retried.
type WebhookEvent struct {
	ID        int64            `db:"id" json:"id"`
	Reference string           `db:"reference" json:"reference"`
	EventType WebhookEventType `db:"event_type" json:"event_type"`
	UserID    int64            `db:"user_id" json:"user_id"`
	Amount    int64            `db:"amount" json:"amount"`
	Status    WebhookStatus    `db:"status" json:"status"`
	Attempts  int              `db:"attempts" json:"attempts"`
	LastError string           `db:"last_error" json:"last_error,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}
