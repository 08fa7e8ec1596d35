package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Job is the unit of at-least-once delivery. Job identity is not entity
// identity: retries reuse the job ID while the payload carries the
// entity references.
type Job struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// Queue is a redis-backed set of named work queues. Each named queue is
// a pending list plus two sorted sets: delayed (retry backoff, scored
// by ready time) and leases (scored by lease deadline). A worker moves
// a job from pending to the processing list and records a lease; jobs
// whose lease expires without an ack are reclaimed back onto pending.
type Queue struct {
	client *redis.Client
	prefix string
}

// New creates a Queue on top of an existing redis client.
func New(client *redis.Client, prefix string) *Queue {
	if prefix == "" {
		prefix = "jobs"
	}
	return &Queue{client: client, prefix: prefix}
}

func (q *Queue) pendingKey(name string) string {
	return fmt.Sprintf("%s:%s:pending", q.prefix, name)
}

func (q *Queue) processingKey(name string) string {
	return fmt.Sprintf("%s:%s:processing", q.prefix, name)
}

func (q *Queue) delayedKey(name string) string {
	return fmt.Sprintf("%s:%s:delayed", q.prefix, name)
}

func (q *Queue) leaseKey(name string) string {
	return fmt.Sprintf("%s:%s:leases", q.prefix, name)
}

// Enqueue marshals payload and pushes a new job onto the named queue.
// It returns the generated job ID.
func (q *Queue) Enqueue(ctx context.Context, name string, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	job := Job{
		ID:         uuid.NewString(),
		Queue:      name,
		Payload:    body,
		EnqueuedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(&job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	if err := q.client.LPush(ctx, q.pendingKey(name), raw).Err(); err != nil {
		return "", fmt.Errorf("enqueue to %s: %w", name, err)
	}
	return job.ID, nil
}

// dequeue blocks up to timeout for the next job, atomically moving it
// to the processing list and recording a lease deadline.
func (q *Queue) dequeue(ctx context.Context, name string, lease, timeout time.Duration) (*Job, string, error) {
	raw, err := q.client.BRPopLPush(ctx, q.pendingKey(name), q.processingKey(name), timeout).Result()
	if err == redis.Nil {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	deadline := float64(time.Now().Add(lease).Unix())
	if err := q.client.ZAdd(ctx, q.leaseKey(name), &redis.Z{Score: deadline, Member: raw}).Err(); err != nil {
		// Without a lease the job would sit in the processing list
		// invisible to reclaim; undo the pop so it stays deliverable.
		q.client.LRem(ctx, q.processingKey(name), 1, raw)
		q.client.LPush(ctx, q.pendingKey(name), raw)
		return nil, "", err
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// Poison entry: drop it so it cannot wedge the queue.
		q.remove(ctx, name, raw)
		return nil, "", fmt.Errorf("unmarshal job from %s: %w", name, err)
	}
	return &job, raw, nil
}

// remove acks a job: it disappears from the processing list and the
// lease set.
func (q *Queue) remove(ctx context.Context, name, raw string) {
	q.client.LRem(ctx, q.processingKey(name), 1, raw)
	q.client.ZRem(ctx, q.leaseKey(name), raw)
}

// retryLater re-schedules a failed job with an incremented attempt
// counter onto the delayed set.
func (q *Queue) retryLater(ctx context.Context, job *Job, raw string, delay time.Duration) error {
	q.remove(ctx, job.Queue, raw)

	job.Attempts++
	next, err := json.Marshal(job)
	if err != nil {
		return err
	}
	readyAt := float64(time.Now().Add(delay).Unix())
	return q.client.ZAdd(ctx, q.delayedKey(job.Queue), &redis.Z{Score: readyAt, Member: next}).Err()
}

// promoteDelayed moves due delayed jobs back onto the pending list.
func (q *Queue) promoteDelayed(ctx context.Context, name string) error {
	now := fmt.Sprintf("%d", time.Now().Unix())
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(name), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return err
	}
	for _, raw := range due {
		if err := q.client.LPush(ctx, q.pendingKey(name), raw).Err(); err != nil {
			return err
		}
		q.client.ZRem(ctx, q.delayedKey(name), raw)
	}
	return nil
}

// reclaimStalled re-enqueues jobs whose lease expired without an ack
// (worker crash or a handler stuck past its deadline).
func (q *Queue) reclaimStalled(ctx context.Context, name string) (int, error) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	stalled, err := q.client.ZRangeByScore(ctx, q.leaseKey(name), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return 0, err
	}
	for _, raw := range stalled {
		if err := q.requeue(ctx, name, raw); err != nil {
			return 0, err
		}
	}
	return len(stalled), nil
}

// orphanedProcessing returns processing-list entries that have no lease
// member. The pop and the lease write are two redis commands, so a
// worker dying between them strands the job where lease-based reclaim
// cannot see it.
func (q *Queue) orphanedProcessing(ctx context.Context, name string) ([]string, error) {
	entries, err := q.client.LRange(ctx, q.processingKey(name), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var orphans []string
	for _, raw := range entries {
		err := q.client.ZScore(ctx, q.leaseKey(name), raw).Err()
		if err == redis.Nil {
			orphans = append(orphans, raw)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return orphans, nil
}

// requeue moves one processing entry back onto the pending list.
func (q *Queue) requeue(ctx context.Context, name, raw string) error {
	q.remove(ctx, name, raw)
	return q.client.LPush(ctx, q.pendingKey(name), raw).Err()
}

// backoffDelay doubles the base delay per prior attempt, capped at five
// minutes.
func backoffDelay(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= 5*time.Minute {
			return 5 * time.Minute
		}
	}
	return d
}
