package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	appErrors "github.com/mailburst/mailburst-backend/internal/errors"
	"github.com/mailburst/mailburst-backend/internal/model"
	"github.com/mailburst/mailburst-backend/internal/queue"
	"github.com/mailburst/mailburst-backend/internal/service"
)

// --- Mock repository ---

// MockEmailRepo stores emails in memory
type MockEmailRepo struct {
	mu         sync.Mutex
	emails     map[string]*model.Email
	order      []string
	failCreate map[string]bool // recipient -> force Create error
}

func NewMockEmailRepo() *MockEmailRepo {
	return &MockEmailRepo{
		emails:     map[string]*model.Email{},
		failCreate: map[string]bool{},
	}
}

func (m *MockEmailRepo) Create(e *model.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate[e.RecipientEmail] {
		return errors.New("insert failed")
	}
	cp := *e
	m.emails[e.ID] = &cp
	m.order = append(m.order, e.ID)
	return nil
}

func (m *MockEmailRepo) GetByID(id string) (*model.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	if !ok {
		return nil, appErrors.NewEmailNotFound(id)
	}
	cp := *e
	return &cp, nil
}

func (m *MockEmailRepo) UpdateJobID(id, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	if !ok {
		return appErrors.NewEmailNotFound(id)
	}
	e.JobID = jobID
	return nil
}

func (m *MockEmailRepo) UpdateStatus(id, status string, sentAt *time.Time, failureReason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	if !ok {
		return false, appErrors.NewEmailNotFound(id)
	}
	if e.Status == model.StatusSent {
		return false, nil // settled rows are never rewritten
	}
	e.Status = status
	switch status {
	case model.StatusSent:
		e.SentAt = sentAt
		e.FailureReason = ""
	case model.StatusFailed:
		e.SentAt = nil
		e.FailureReason = failureReason
	}
	return true, nil
}

func (m *MockEmailRepo) ListByUserAndStatus(userID string, statuses []string, orderBy string) ([]model.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	out := []model.Email{}
	for _, id := range m.order {
		e := m.emails[id]
		if e.UserID == userID && want[e.Status] {
			out = append(out, *e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if strings.HasPrefix(orderBy, "sent_at") {
			ti, tj := out[i].SentAt, out[j].SentAt
			if ti == nil || tj == nil {
				return tj == nil && ti != nil
			}
			return ti.After(*tj)
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}

func (m *MockEmailRepo) GetBatchStats(userID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := map[string]int{"scheduled": 0, "rate_limited": 0, "sent": 0, "failed": 0}
	for _, e := range m.emails {
		if e.UserID == userID {
			stats[e.Status]++
		}
	}
	return stats, nil
}

// --- Mock queue ---

type enqueued struct {
	job   queue.Job
	delay time.Duration
}

// MockQueue records enqueues and can fail per recipient
type MockQueue struct {
	mu      sync.Mutex
	jobs    []enqueued
	failFor map[string]bool
}

func NewMockQueue() *MockQueue {
	return &MockQueue{failFor: map[string]bool{}}
}

func (q *MockQueue) Enqueue(ctx context.Context, job queue.Job, delay time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failFor[job.RecipientEmail] {
		return "", errors.New("broker unavailable")
	}
	q.jobs = append(q.jobs, enqueued{job: job, delay: delay})
	return job.JobID(), nil
}

// --- Tests ---

func TestScheduleEmailsComputesOffsets(t *testing.T) {
	repo := NewMockEmailRepo()
	q := NewMockQueue()
	start := time.Date(2026, time.September, 1, 9, 0, 0, 0, time.UTC)

	svc := &service.EmailService{
		EmailRepo: repo,
		Queue:     q,
		Now:       func() time.Time { return start },
	}

	result, err := svc.ScheduleEmails(context.Background(), "u1", service.ScheduleEmailsRequest{
		Subject:            "Launch",
		Body:               "<p>Hello</p>",
		Recipients:         []string{"a@example.com", "b@example.com", "c@example.com"},
		StartTime:          start,
		DelayBetweenEmails: 2000 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.TotalEmails != 3 {
		t.Errorf("expected totalEmails 3, got %d", result.TotalEmails)
	}
	if len(result.ScheduledEmails) != 3 {
		t.Fatalf("expected 3 scheduled emails, got %d", len(result.ScheduledEmails))
	}
	if len(result.Failures) != 0 {
		t.Errorf("expected no failures, got %v", result.Failures)
	}

	for i, se := range result.ScheduledEmails {
		want := start.Add(time.Duration(i) * 2 * time.Second)
		if !se.ScheduledAt.Equal(want) {
			t.Errorf("recipient %d: expected scheduledAt %v, got %v", i, want, se.ScheduledAt)
		}
		if se.JobID == "" {
			t.Errorf("recipient %d: missing job ref", i)
		}

		stored, err := repo.GetByID(se.ID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.Status != model.StatusScheduled {
			t.Errorf("recipient %d: expected status scheduled, got %s", i, stored.Status)
		}
		if stored.JobID != se.JobID {
			t.Errorf("recipient %d: job ref not recorded on row", i)
		}
		if stored.BatchID != result.BatchID {
			t.Errorf("recipient %d: batch id not tagged", i)
		}
	}

	// jobs enqueue in input order with the matching absolute delays
	if len(q.jobs) != 3 {
		t.Fatalf("expected 3 enqueued jobs, got %d", len(q.jobs))
	}
	for i, e := range q.jobs {
		if want := time.Duration(i) * 2 * time.Second; e.delay != want {
			t.Errorf("job %d: expected delay %v, got %v", i, want, e.delay)
		}
	}
}

func TestScheduleEmailsRejectsEmptyRecipients(t *testing.T) {
	repo := NewMockEmailRepo()
	svc := &service.EmailService{EmailRepo: repo, Queue: NewMockQueue()}

	_, err := svc.ScheduleEmails(context.Background(), "u1", service.ScheduleEmailsRequest{
		Subject:    "Launch",
		Body:       "x",
		Recipients: []string{},
		StartTime:  time.Now(),
	})

	var verr *appErrors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(repo.emails) != 0 {
		t.Error("nothing should be persisted for a rejected request")
	}
}

func TestScheduleEmailsSkipsMalformedRecipient(t *testing.T) {
	repo := NewMockEmailRepo()
	q := NewMockQueue()
	svc := &service.EmailService{EmailRepo: repo, Queue: q}

	result, err := svc.ScheduleEmails(context.Background(), "u1", service.ScheduleEmailsRequest{
		Subject:    "Launch",
		Body:       "x",
		Recipients: []string{"good@example.com", "not-an-address"},
		StartTime:  time.Now().Add(time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.ScheduledEmails) != 1 {
		t.Errorf("expected 1 scheduled, got %d", len(result.ScheduledEmails))
	}
	if len(result.Failures) != 1 || result.Failures[0].RecipientEmail != "not-an-address" {
		t.Errorf("expected a failure for the malformed address, got %v", result.Failures)
	}
	if len(repo.emails) != 1 {
		t.Errorf("malformed recipient must not be persisted, repo has %d rows", len(repo.emails))
	}
}

func TestScheduleEmailsPartialPersistFailure(t *testing.T) {
	repo := NewMockEmailRepo()
	q := NewMockQueue()
	svc := &service.EmailService{EmailRepo: repo, Queue: q}

	recipients := make([]string, 5)
	for i := range recipients {
		recipients[i] = fmt.Sprintf("r%d@example.com", i+1)
	}
	repo.failCreate["r3@example.com"] = true

	result, err := svc.ScheduleEmails(context.Background(), "u1", service.ScheduleEmailsRequest{
		Subject:            "Launch",
		Body:               "x",
		Recipients:         recipients,
		StartTime:          time.Now().Add(time.Minute),
		DelayBetweenEmails: time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.ScheduledEmails) != 4 {
		t.Errorf("expected 4 scheduled, got %d", len(result.ScheduledEmails))
	}
	if len(result.Failures) != 1 || result.Failures[0].RecipientEmail != "r3@example.com" {
		t.Errorf("expected a single failure for r3, got %v", result.Failures)
	}
	if result.TotalEmails != 5 {
		t.Errorf("totalEmails should report the requested count, got %d", result.TotalEmails)
	}

	// the other four remain independently retrievable
	scheduled, err := svc.GetScheduledEmails("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(scheduled) != 4 {
		t.Errorf("expected 4 rows via the scheduled list, got %d", len(scheduled))
	}
	for i := 1; i < len(scheduled); i++ {
		if scheduled[i].ScheduledAt.Before(scheduled[i-1].ScheduledAt) {
			t.Error("scheduled list should be ordered by scheduled time ascending")
		}
	}
}

func TestScheduleEmailsEnqueueFailureLeavesRowScheduled(t *testing.T) {
	repo := NewMockEmailRepo()
	q := NewMockQueue()
	q.failFor["b@example.com"] = true
	svc := &service.EmailService{EmailRepo: repo, Queue: q}

	result, err := svc.ScheduleEmails(context.Background(), "u1", service.ScheduleEmailsRequest{
		Subject:    "Launch",
		Body:       "x",
		Recipients: []string{"a@example.com", "b@example.com"},
		StartTime:  time.Now().Add(time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.ScheduledEmails) != 1 || len(result.Failures) != 1 {
		t.Fatalf("expected 1 scheduled + 1 failure, got %d + %d",
			len(result.ScheduledEmails), len(result.Failures))
	}

	// the failed recipient's row exists but carries no queue reference
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, e := range repo.emails {
		if e.RecipientEmail == "b@example.com" {
			if e.Status != model.StatusScheduled {
				t.Errorf("expected orphaned row to stay scheduled, got %s", e.Status)
			}
			if e.JobID != "" {
				t.Errorf("expected no job ref, got %s", e.JobID)
			}
			return
		}
	}
	t.Error("row for b@example.com was not persisted")
}
