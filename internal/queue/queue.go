package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueAdJobs = "queue:ad_jobs"
)

type Queue struct {
	client *redis.Client
}

// Message is the queue payload. The job row itself lives in Postgres.
type Message struct {
	JobID      uuid.UUID `json:"job_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

// NewWithClient wraps an existing client (tests, shared pools).
func NewWithClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// EnqueueJob pushes an ad job for the worker.
func (q *Queue) EnqueueJob(ctx context.Context, jobID uuid.UUID, attempt int) error {
	data, err := encodeMessage(Message{JobID: jobID, Attempt: attempt, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, QueueAdJobs, data).Err()
}

// Dequeue blocks up to timeout. A nil message with nil error means the queue was empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueAdJobs).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	return decodeMessage(result[1])
}

func encodeMessage(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

func decodeMessage(raw string) (*Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if m.JobID == uuid.Nil {
		return nil, fmt.Errorf("queue message has no job_id")
	}
	return &m, nil
}
