package queue

import (
	"context"
	"time"
)

// Job is the unit handed to the delayed queue, one per email. The email id is
// the job's identity key: enqueueing the same email twice is deduplicated.
type Job struct {
	EmailID        string `json:"email_id"`
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	UserID         string `json:"user_id"`
	BatchID        string `json:"batch_id,omitempty"`
}

// JobID returns the queue identity key for this job
func (j Job) JobID() string {
	return "email-" + j.EmailID
}

// Outcome is what a delivery attempt reports back to the queue boundary.
// The queue, not the dispatcher, owns the decision to retry.
type Outcome int

const (
	// OutcomeSent: delivery confirmed, ack the job
	OutcomeSent Outcome = iota
	// OutcomeSkipped: duplicate delivery of a settled email, ack without sending
	OutcomeSkipped
	// OutcomeRetryRateLimited: hourly quota exhausted; retry with backoff.
	// Never terminal and never counted against the attempt budget.
	OutcomeRetryRateLimited
	// OutcomeRetryTransport: the relay failed; retry with backoff until the
	// attempt budget is spent, then the job is dropped (the ledger already
	// holds the failure)
	OutcomeRetryTransport
)

// Handler processes one due job. The returned error carries detail for logs;
// the Outcome alone drives ack/retry.
type Handler func(ctx context.Context, job Job) (Outcome, error)

// DelayedQueue holds jobs until their fire time and redelivers per the retry
// policy. Delivery is at-least-once; handlers must tolerate duplicates.
type DelayedQueue interface {
	// Enqueue schedules a job to fire after delay. Returns the job reference.
	// A job whose JobID was already enqueued is not enqueued again.
	Enqueue(ctx context.Context, job Job, delay time.Duration) (string, error)
}

// RetryPolicy is the backoff schedule applied to retryable outcomes
type RetryPolicy struct {
	MaxAttempts int           // transport-error attempts before giving up
	BackoffBase time.Duration // first retry delay, doubled per attempt
}

// Delay returns the wait before retry number attempt (1-based)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// DefaultRetryPolicy mirrors the queue defaults: 3 attempts, exponential
// backoff starting at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BackoffBase: 5 * time.Second}
}

// dedupTTL bounds how long an email id blocks re-enqueueing. Long enough to
// cover any realistic retry tail, short enough that keys do not pile up.
const dedupTTL = 24 * time.Hour
