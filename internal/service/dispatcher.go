// internal/service/dispatcher.go
package service

import (
	"context"
	"errors"
	"log"
	"time"

	appErrors "github.com/mailburst/mailburst-backend/internal/errors"
	"github.com/mailburst/mailburst-backend/internal/mailer"
	"github.com/mailburst/mailburst-backend/internal/queue"
	"github.com/mailburst/mailburst-backend/internal/ratelimit"
	"github.com/mailburst/mailburst-backend/internal/repository"
)

// Dispatcher delivers due jobs: reserve quota, pace, send, settle the ledger.
// The queue may redeliver a job any number of times; the ledger's guarded
// status writes make redelivery of an already-sent email a no-op.
type Dispatcher struct {
	EmailRepo repository.EmailRepositoryInterface
	Limiter   *ratelimit.Limiter
	Sender    mailer.Sender

	// PacingDelay is a best-effort courtesy gap before each relay call,
	// independent of the hourly cap
	PacingDelay time.Duration

	// SendTimeout bounds the relay call
	SendTimeout time.Duration

	// Now stamps sent_at; overridable in tests
	Now func() time.Time
}

// HandleJob processes one due job and reports the outcome to the queue
func (d *Dispatcher) HandleJob(ctx context.Context, job queue.Job) (queue.Outcome, error) {
	log.Println("📩 Processing email job for", job.RecipientEmail)

	email, err := d.EmailRepo.GetByID(job.EmailID)
	if err != nil {
		var notFound *appErrors.ErrEmailNotFound
		if errors.As(err, &notFound) {
			log.Println("⚠️ Email not found for job, dropping:", job.EmailID)
			return queue.OutcomeSkipped, nil
		}
		return queue.OutcomeRetryTransport, err
	}

	if !email.Deliverable() {
		// duplicate delivery of a settled email; sent_at and status stay put
		log.Println("⚠️ Email", email.ID, "already", email.Status, ", skipping")
		return queue.OutcomeSkipped, nil
	}

	res, ok, err := d.Limiter.TryReserve(ctx, job.UserID)
	if err != nil {
		return queue.OutcomeRetryTransport, err
	}
	if !ok {
		log.Println("⏸️ Rate limit reached for user", job.UserID, ", rescheduling")
		if _, err := d.EmailRepo.UpdateStatus(email.ID, "rate_limited", nil, ""); err != nil {
			log.Println("⚠️ Failed to mark email rate_limited:", err)
		}
		return queue.OutcomeRetryRateLimited, appErrors.ErrRateLimitExceeded
	}

	// courtesy gap to avoid bursty provider throttling; quota is NOT held
	// in any blocking sense here, only this one reserved slot
	if d.PacingDelay > 0 {
		select {
		case <-time.After(d.PacingDelay):
		case <-ctx.Done():
			d.release(res)
			return queue.OutcomeRetryTransport, ctx.Err()
		}
	}

	sendCtx := ctx
	if d.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.SendTimeout)
		defer cancel()
	}

	result, err := d.Sender.Send(sendCtx, mailer.SendRequest{
		To:      job.RecipientEmail,
		Subject: job.Subject,
		HTML:    job.Body,
	})
	if err != nil {
		// a timeout is just another transport failure; never mark sent
		// speculatively. Latest reason wins on the ledger.
		d.release(res)
		log.Println("❌ Failed to send email", email.ID, ":", err)
		if _, uerr := d.EmailRepo.UpdateStatus(email.ID, "failed", nil, err.Error()); uerr != nil {
			log.Println("⚠️ Failed to record failure reason:", uerr)
		}
		return queue.OutcomeRetryTransport, err
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	sentAt := now()

	updated, err := d.EmailRepo.UpdateStatus(email.ID, "sent", &sentAt, "")
	if err != nil {
		// the relay accepted the message; quota stays committed and the job
		// is retried so the ledger eventually records the send (the guarded
		// write keeps a second relay call from double-writing sent_at)
		log.Println("⚠️ Email", email.ID, "sent but ledger update failed:", err)
		return queue.OutcomeRetryTransport, err
	}
	if !updated {
		log.Println("⚠️ Email", email.ID, "settled concurrently, ledger untouched")
	}

	log.Println("✅ Email sent successfully to", job.RecipientEmail, "ref:", result.MessageID)
	return queue.OutcomeSent, nil
}

func (d *Dispatcher) release(res *ratelimit.Reservation) {
	if err := res.Release(context.Background()); err != nil {
		log.Println("⚠️ Failed to release rate-limit reservation:", err)
	}
}
