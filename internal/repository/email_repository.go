package repository

import (
    "database/sql"
    "fmt"
    "time"

    "github.com/lib/pq"

    appErrors "github.com/mailburst/mailburst-backend/internal/errors"
    "github.com/mailburst/mailburst-backend/internal/model"
)

type EmailRepositoryInterface interface {
    Create(e *model.Email) error
    GetByID(id string) (*model.Email, error)
    UpdateJobID(id, jobID string) error

    // UpdateStatus writes a delivery outcome onto the row. The write is
    // guarded: a row that reached sent is never rewritten, so a duplicate
    // queue delivery of an already-sent email is a no-op. Returns whether a
    // row was updated.
    UpdateStatus(id, status string, sentAt *time.Time, failureReason string) (bool, error)

    ListByUserAndStatus(userID string, statuses []string, orderBy string) ([]model.Email, error)
    GetBatchStats(userID string) (map[string]int, error)
}

type EmailRepository struct {
    DB *sql.DB
}

func (r *EmailRepository) Create(e *model.Email) error {
    now := time.Now()
    e.CreatedAt = now
    e.UpdatedAt = now
    if e.Status == "" {
        e.Status = model.StatusScheduled
    }

    query := `
        INSERT INTO emails
        (id, user_id, recipient_email, subject, body, scheduled_at, status, batch_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
    _, err := r.DB.Exec(
        query,
        e.ID,
        e.UserID,
        e.RecipientEmail,
        e.Subject,
        e.Body,
        e.ScheduledAt,
        e.Status,
        e.BatchID,
        e.CreatedAt,
        e.UpdatedAt,
    )
    return err
}

func (r *EmailRepository) GetByID(id string) (*model.Email, error) {
    query := `
        SELECT id, user_id, recipient_email, subject, body, scheduled_at, sent_at,
               status, COALESCE(failure_reason, ''), COALESCE(job_id, ''), COALESCE(batch_id::text, ''),
               created_at, updated_at
        FROM emails
        WHERE id=$1
    `
    var e model.Email
    err := r.DB.QueryRow(query, id).Scan(
        &e.ID, &e.UserID, &e.RecipientEmail, &e.Subject, &e.Body,
        &e.ScheduledAt, &e.SentAt, &e.Status, &e.FailureReason,
        &e.JobID, &e.BatchID, &e.CreatedAt, &e.UpdatedAt,
    )
    if err != nil {
        if err == sql.ErrNoRows {
            return nil, appErrors.NewEmailNotFound(id)
        }
        return nil, err
    }
    return &e, nil
}

func (r *EmailRepository) UpdateJobID(id, jobID string) error {
    query := `UPDATE emails SET job_id=$1, updated_at=NOW() WHERE id=$2`
    _, err := r.DB.Exec(query, jobID, id)
    return err
}

func (r *EmailRepository) UpdateStatus(id, status string, sentAt *time.Time, failureReason string) (bool, error) {
    // sent carries sent_at and no reason; failed carries a reason and no
    // sent_at; rate_limited carries neither. Terminal rows are never rewritten.
    var query string
    var args []interface{}

    switch status {
    case model.StatusSent:
        query = `
            UPDATE emails
            SET status=$1, sent_at=$2, failure_reason=NULL, updated_at=NOW()
            WHERE id=$3 AND status <> 'sent'
        `
        args = []interface{}{status, sentAt, id}
    case model.StatusFailed:
        query = `
            UPDATE emails
            SET status=$1, failure_reason=$2, sent_at=NULL, updated_at=NOW()
            WHERE id=$3 AND status <> 'sent'
        `
        args = []interface{}{status, failureReason, id}
    case model.StatusRateLimited:
        query = `
            UPDATE emails
            SET status=$1, updated_at=NOW()
            WHERE id=$2 AND status <> 'sent'
        `
        args = []interface{}{status, id}
    default:
        return false, fmt.Errorf("unsupported status transition to %q", status)
    }

    res, err := r.DB.Exec(query, args...)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

func (r *EmailRepository) ListByUserAndStatus(userID string, statuses []string, orderBy string) ([]model.Email, error) {
    if orderBy == "" {
        orderBy = "scheduled_at ASC"
    }

    query := fmt.Sprintf(`
        SELECT id, user_id, recipient_email, subject, body, scheduled_at, sent_at,
               status, COALESCE(failure_reason, ''), COALESCE(job_id, ''), COALESCE(batch_id::text, ''),
               created_at, updated_at
        FROM emails
        WHERE user_id=$1 AND status = ANY($2)
        ORDER BY %s
    `, orderBy)

    rows, err := r.DB.Query(query, userID, pq.Array(statuses))
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    emails := []model.Email{}
    for rows.Next() {
        var e model.Email
        if err := rows.Scan(
            &e.ID, &e.UserID, &e.RecipientEmail, &e.Subject, &e.Body,
            &e.ScheduledAt, &e.SentAt, &e.Status, &e.FailureReason,
            &e.JobID, &e.BatchID, &e.CreatedAt, &e.UpdatedAt,
        ); err != nil {
            return nil, err
        }
        emails = append(emails, e)
    }
    return emails, rows.Err()
}

func (r *EmailRepository) GetBatchStats(userID string) (map[string]int, error) {
    query := `SELECT status, COUNT(*) FROM emails WHERE user_id=$1 GROUP BY status`
    rows, err := r.DB.Query(query, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    stats := map[string]int{"scheduled": 0, "rate_limited": 0, "sent": 0, "failed": 0}
    for rows.Next() {
        var status string
        var count int
        if err := rows.Scan(&status, &count); err != nil {
            return nil, err
        }
        stats[status] = count
    }
    return stats, rows.Err()
}

var _ EmailRepositoryInterface = (*EmailRepository)(nil)
