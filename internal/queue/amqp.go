package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/mailburst/mailburst-backend/internal/cache"
)

// Queue topology. Jobs wait out their delay in a TTL'd holding queue whose
// dead-letter target is the ready queue workers consume from. Scheduling
// delays and retry backoffs use separate holding queues: expiry is only
// checked at the queue head, and a 5s retry must not sit behind a job
// scheduled an hour out. Within each holding queue delays are effectively
// non-decreasing (batches enqueue in fire order, retry backoffs are short),
// which keeps head-of-line delay bounded.
const (
	readyQueue = "email_sends"
	waitQueue  = "email_sends_wait"
	retryQueue = "email_sends_retry"
)

// rate-limit retries back off exponentially but never wait longer than this;
// the next hour bucket is at most an hour away
const maxRateLimitDelay = 5 * time.Minute

// AMQPQueue is the durable delayed queue used in production. Dedup of job ids
// is delegated to the shared atomic store since AMQP has no native dedup.
type AMQPQueue struct {
	conn   *amqp.Connection
	pubMu  sync.Mutex
	pubCh  *amqp.Channel
	dedup  cache.Store
	policy RetryPolicy
}

// NewAMQPQueue connects, declares the topology and returns a ready queue
func NewAMQPQueue(url string, dedup cache.Store, policy RetryPolicy) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPQueue{
		conn:   conn,
		pubCh:  ch,
		dedup:  dedup,
		policy: policy,
	}, nil
}

func declareTopology(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(readyQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", readyQueue, err)
	}

	holdingArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": readyQueue,
	}
	for _, name := range []string{waitQueue, retryQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, holdingArgs); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}
	}
	return nil
}

// Close shuts down the connection
func (q *AMQPQueue) Close() error {
	q.pubCh.Close()
	return q.conn.Close()
}

// Enqueue schedules a job to fire after delay, deduplicating by job id
func (q *AMQPQueue) Enqueue(ctx context.Context, job Job, delay time.Duration) (string, error) {
	jobID := job.JobID()

	fresh, err := q.dedup.SetNX(ctx, "job:"+jobID, "1", dedupTTL)
	if err != nil {
		return "", err
	}
	if !fresh {
		return jobID, nil
	}

	body, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	if err := q.publish(waitQueue, body, delay, nil); err != nil {
		return "", err
	}
	return jobID, nil
}

// publish routes a payload either straight to the ready queue or into a
// holding queue with a per-message TTL
func (q *AMQPQueue) publish(holding string, body []byte, delay time.Duration, headers amqp.Table) error {
	target := holding
	pub := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
	}
	if delay > 0 {
		pub.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	} else {
		target = readyQueue
	}

	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	return q.pubCh.Publish("", target, false, false, pub)
}

// Consume delivers due jobs to handler on `concurrency` goroutines with
// manual acks. Blocks until ctx is cancelled and all in-flight deliveries
// have settled; jobs already being handled are allowed to finish.
func (q *AMQPQueue) Consume(ctx context.Context, concurrency int, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := ch.Qos(concurrency, 0, false); err != nil {
		ch.Close()
		return err
	}

	msgs, err := ch.Consume(
		readyQueue,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	// cancelling ctx closes the channel, which ends the ranges below
	go func() {
		<-ctx.Done()
		ch.Close()
	}()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range msgs {
				q.handleDelivery(d, handler)
			}
		}()
	}
	wg.Wait()
	return nil
}

func (q *AMQPQueue) handleDelivery(d amqp.Delivery, handler Handler) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Println("⚠️ Invalid job payload, dropping:", err)
		d.Ack(false)
		return
	}

	// shutdown must not cancel a delivery mid-flight; the dispatcher bounds
	// the relay call with its own timeout
	outcome, err := handler(context.Background(), job)

	switch outcome {
	case OutcomeSent, OutcomeSkipped:
		d.Ack(false)

	case OutcomeRetryRateLimited:
		n := headerInt(d.Headers, "x-rl-retry-count")
		delay := q.policy.Delay(n + 1)
		if delay > maxRateLimitDelay {
			delay = maxRateLimitDelay
		}
		log.Printf("⏸️ Job %s rate limited, retrying in %v\n", job.JobID(), delay)
		q.requeue(d, retryQueue, delay, amqp.Table{
			"x-rl-retry-count": int32(n + 1),
			"x-retry-count":    int32(headerInt(d.Headers, "x-retry-count")),
		})

	case OutcomeRetryTransport:
		attempts := headerInt(d.Headers, "x-retry-count") + 1
		if attempts >= q.policy.MaxAttempts {
			log.Printf("❌ Job %s permanently failed after %d attempts: %v\n", job.JobID(), attempts, err)
			d.Ack(false) // ledger already holds the failure
			return
		}
		delay := q.policy.Delay(attempts)
		log.Printf("⚠️ Job %s failed (attempt %d/%d), retrying in %v: %v\n",
			job.JobID(), attempts, q.policy.MaxAttempts, delay, err)
		q.requeue(d, retryQueue, delay, amqp.Table{
			"x-retry-count": int32(attempts),
		})

	default:
		log.Printf("⚠️ Job %s returned unknown outcome %d, dropping\n", job.JobID(), outcome)
		d.Ack(false)
	}
}

// requeue republishes the delivery into a holding queue and acks the original
func (q *AMQPQueue) requeue(d amqp.Delivery, holding string, delay time.Duration, headers amqp.Table) {
	if err := q.publish(holding, d.Body, delay, headers); err != nil {
		log.Println("⚠️ Failed to requeue job, returning to broker:", err)
		d.Nack(false, true) // broker redelivers immediately, better than losing it
		return
	}
	d.Ack(false)
}

func headerInt(h amqp.Table, key string) int {
	if h == nil {
		return 0
	}
	switch v := h[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

var _ DelayedQueue = (*AMQPQueue)(nil)
