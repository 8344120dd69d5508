package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mailburst/mailburst-backend/internal/cache"
)

// InMemoryQueue is a process-local delayed queue with the same dedup and
// retry/backoff semantics as the AMQP queue. Used for local development and
// tests; jobs do not survive a restart.
type InMemoryQueue struct {
	mu      sync.Mutex
	handler Handler
	dedup   cache.Store
	policy  RetryPolicy
	wg      sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(dedup cache.Store, policy RetryPolicy) *InMemoryQueue {
	return &InMemoryQueue{
		dedup:  dedup,
		policy: policy,
	}
}

// Subscribe registers the handler that receives due jobs
func (q *InMemoryQueue) Subscribe(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
}

// Enqueue schedules a job to fire after delay, deduplicating by job id
func (q *InMemoryQueue) Enqueue(ctx context.Context, job Job, delay time.Duration) (string, error) {
	jobID := job.JobID()

	fresh, err := q.dedup.SetNX(ctx, "job:"+jobID, "1", dedupTTL)
	if err != nil {
		return "", err
	}
	if !fresh {
		// already enqueued for this email; hand back the same reference
		return jobID, nil
	}

	if delay < 0 {
		delay = 0
	}

	q.wg.Add(1)
	time.AfterFunc(delay, func() {
		defer q.wg.Done()
		q.deliver(job)
	})

	return jobID, nil
}

// deliver runs the handler and applies the retry policy until the job settles
func (q *InMemoryQueue) deliver(job Job) {
	attempts := 0
	for {
		q.mu.Lock()
		handler := q.handler
		q.mu.Unlock()

		if handler == nil {
			log.Println("⚠️ No handler subscribed, dropping job", job.JobID())
			return
		}

		outcome, err := handler(context.Background(), job)
		switch outcome {
		case OutcomeSent, OutcomeSkipped:
			return // ACK
		case OutcomeRetryRateLimited:
			// quota retries do not burn the attempt budget
			log.Printf("⏸️ Job %s rate limited, retrying in %v\n", job.JobID(), q.policy.Delay(1))
			time.Sleep(q.policy.Delay(1))
		case OutcomeRetryTransport:
			attempts++
			if attempts >= q.policy.MaxAttempts {
				log.Printf("❌ Job %s permanently failed after %d attempts: %v\n", job.JobID(), attempts, err)
				return // no requeue
			}
			log.Printf("⚠️ Job %s failed (attempt %d/%d): %v\n", job.JobID(), attempts, q.policy.MaxAttempts, err)
			time.Sleep(q.policy.Delay(attempts))
		default:
			log.Printf("⚠️ Job %s returned unknown outcome %d, dropping\n", job.JobID(), outcome)
			return
		}
	}
}

// Drain blocks until every scheduled job has settled
func (q *InMemoryQueue) Drain() {
	q.wg.Wait()
}

var _ DelayedQueue = (*InMemoryQueue)(nil)
