// internal/service/email_service.go
package service

import (
    "context"
    "fmt"
    "log"
    "strings"
    "time"

    "github.com/google/uuid"

    appErrors "github.com/mailburst/mailburst-backend/internal/errors"
    "github.com/mailburst/mailburst-backend/internal/model"
    "github.com/mailburst/mailburst-backend/internal/queue"
    "github.com/mailburst/mailburst-backend/internal/repository"
    "github.com/mailburst/mailburst-backend/internal/util"
)

type EmailService struct {
    EmailRepo repository.EmailRepositoryInterface
    Queue     queue.DelayedQueue

    // Now is the clock used to convert absolute schedule times into queue
    // delays; overridable in tests
    Now func() time.Time
}

// ScheduleEmailsRequest is one batch: common subject/body fanned out over the
// recipients on a fixed cadence starting at StartTime.
type ScheduleEmailsRequest struct {
    Subject            string
    Body               string
    Recipients         []string
    StartTime          time.Time
    DelayBetweenEmails time.Duration
    HourlyLimit        int
}

type ScheduledEmail struct {
    ID             string    `json:"id"`
    RecipientEmail string    `json:"recipientEmail"`
    ScheduledAt    time.Time `json:"scheduledAt"`
    JobID          string    `json:"jobId"`
}

// ScheduleFailure reports one recipient that could not be fully scheduled.
// The rest of the batch is unaffected.
type ScheduleFailure struct {
    RecipientEmail string `json:"recipientEmail"`
    Reason         string `json:"reason"`
}

type ScheduleEmailsResult struct {
    BatchID     string `json:"batchId"`
    TotalEmails int    `json:"totalEmails"`

    // HourlyLimit echoes the cap the caller asked for. Enforcement uses the
    // deployment-wide limit; see Dispatcher.
    HourlyLimit     int               `json:"hourlyLimit"`
    ScheduledEmails []ScheduledEmail  `json:"scheduledEmails"`
    Failures        []ScheduleFailure `json:"failures,omitempty"`
}

// ScheduleEmails expands the batch into one message per recipient, each
// offset by i*DelayBetweenEmails from StartTime, persisted as scheduled and
// enqueued as a delayed job keyed by the email id. Recipients are processed
// in input order so jobs enqueue in fire-time order. Failures on one
// recipient never abort the batch; they are reported in the result.
func (s *EmailService) ScheduleEmails(ctx context.Context, userID string, req ScheduleEmailsRequest) (*ScheduleEmailsResult, error) {
    if userID == "" {
        return nil, appErrors.NewValidationError("user id is required")
    }
    if strings.TrimSpace(req.Subject) == "" {
        return nil, appErrors.NewValidationError("subject is required")
    }
    if strings.TrimSpace(req.Body) == "" {
        return nil, appErrors.NewValidationError("body is required")
    }
    if len(req.Recipients) == 0 {
        return nil, appErrors.NewValidationError("recipients must be a non-empty array")
    }
    if req.StartTime.IsZero() {
        return nil, appErrors.NewValidationError("startTime is required")
    }
    if req.DelayBetweenEmails < 0 {
        return nil, appErrors.NewValidationError("delayBetweenEmails must be >= 0")
    }

    now := time.Now
    if s.Now != nil {
        now = s.Now
    }

    batchID := uuid.NewString()
    result := &ScheduleEmailsResult{
        BatchID:         batchID,
        TotalEmails:     len(req.Recipients),
        HourlyLimit:     req.HourlyLimit,
        ScheduledEmails: []ScheduledEmail{},
    }

    for i, recipient := range req.Recipients {
        if !util.IsEmailAddress(recipient) {
            result.Failures = append(result.Failures, ScheduleFailure{
                RecipientEmail: recipient,
                Reason:         "invalid email address",
            })
            continue
        }

        scheduledAt := req.StartTime.Add(time.Duration(i) * req.DelayBetweenEmails)

        email := &model.Email{
            ID:             uuid.NewString(),
            UserID:         userID,
            RecipientEmail: recipient,
            Subject:        req.Subject,
            Body:           req.Body,
            ScheduledAt:    scheduledAt,
            Status:         model.StatusScheduled,
            BatchID:        batchID,
        }

        if err := s.EmailRepo.Create(email); err != nil {
            log.Println("⚠️ Failed to create email for", recipient, ":", err)
            result.Failures = append(result.Failures, ScheduleFailure{
                RecipientEmail: recipient,
                Reason:         fmt.Sprintf("persist failed: %v", err),
            })
            continue
        }

        job := queue.Job{
            EmailID:        email.ID,
            RecipientEmail: recipient,
            Subject:        req.Subject,
            Body:           req.Body,
            UserID:         userID,
            BatchID:        batchID,
        }

        delay := scheduledAt.Sub(now())
        if delay < 0 {
            delay = 0
        }

        jobID, err := s.Queue.Enqueue(ctx, job, delay)
        if err != nil {
            // the row stays scheduled with no queue reference; surfaced to
            // the caller as a partial-batch failure
            log.Println("⚠️ Failed to enqueue email", email.ID, ":", err)
            result.Failures = append(result.Failures, ScheduleFailure{
                RecipientEmail: recipient,
                Reason:         fmt.Sprintf("enqueue failed: %v", err),
            })
            continue
        }

        if err := s.EmailRepo.UpdateJobID(email.ID, jobID); err != nil {
            log.Println("⚠️ Failed to record job ref on email", email.ID, ":", err)
            result.Failures = append(result.Failures, ScheduleFailure{
                RecipientEmail: recipient,
                Reason:         fmt.Sprintf("job ref not recorded: %v", err),
            })
            continue
        }

        result.ScheduledEmails = append(result.ScheduledEmails, ScheduledEmail{
            ID:             email.ID,
            RecipientEmail: recipient,
            ScheduledAt:    scheduledAt,
            JobID:          jobID,
        })
    }

    return result, nil
}

// GetScheduledEmails lists a user's pending emails, soonest first
func (s *EmailService) GetScheduledEmails(userID string) ([]model.Email, error) {
    return s.EmailRepo.ListByUserAndStatus(
        userID,
        []string{model.StatusScheduled, model.StatusRateLimited},
        "scheduled_at ASC",
    )
}

// GetSentEmails lists a user's settled emails, most recent first
func (s *EmailService) GetSentEmails(userID string) ([]model.Email, error) {
    return s.EmailRepo.ListByUserAndStatus(
        userID,
        []string{model.StatusSent, model.StatusFailed},
        "sent_at DESC NULLS LAST, updated_at DESC",
    )
}

// GetStats returns the user's email counts grouped by status
func (s *EmailService) GetStats(userID string) (map[string]int, error) {
    return s.EmailRepo.GetBatchStats(userID)
}
