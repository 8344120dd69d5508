// internal/model/email.go
package model

import "time"

// Email lifecycle statuses. rate_limited is transient: the queue retries the
// job with backoff until a fresh hour bucket has quota again.
const (
	StatusScheduled   = "scheduled"
	StatusRateLimited = "rate_limited"
	StatusSent        = "sent"
	StatusFailed      = "failed"
)

type Email struct {
	ID             string     `db:"id" json:"id"`
	UserID         string     `db:"user_id" json:"user_id"`
	RecipientEmail string     `db:"recipient_email" json:"recipient_email"`
	Subject        string     `db:"subject" json:"subject"`
	Body           string     `db:"body" json:"body"`
	ScheduledAt    time.Time  `db:"scheduled_at" json:"scheduled_at"`
	SentAt         *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	Status         string     `db:"status" json:"status"` // scheduled, rate_limited, sent, failed
	FailureReason  string     `db:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	JobID          string     `db:"job_id,omitempty" json:"job_id,omitempty"`
	BatchID        string     `db:"batch_id,omitempty" json:"batch_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Deliverable reports whether a redelivered job may still act on this email.
// Once sent, the row is immutable (duplicate queue deliveries must be no-ops).
// A failed row stays deliverable: the queue's retry policy, not the ledger,
// decides when attempts stop.
func (e *Email) Deliverable() bool {
	return e.Status != StatusSent
}
