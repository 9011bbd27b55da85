package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list holding pending analysis jobs.
const DefaultQueueKey = "analysis:jobs"

// Job asks the analyzer to process one registered document.
type Job struct {
	DocumentID int64     `json:"documentId"`
	FileURL    string    `json:"fileUrl"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Queue is a FIFO of analysis jobs on a Redis list: LPUSH to enqueue, BRPOP
// to dequeue.
type Queue struct {
	client *redis.Client
	key    string
}

func NewQueue(client *redis.Client, key string) *Queue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &Queue{client: client, key: key}
}

func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, b).Err(); err != nil {
		return fmt.Errorf("enqueue job for document %d: %w", job.DocumentID, err)
	}
	return nil
}

// Dequeue blocks for up to wait and returns (nil, nil) when no job arrived.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	res, err := q.client.BRPop(ctx, wait, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	// res[0] is the list key, res[1] the payload
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// Len reports the number of pending jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// DepthFunc adapts Len for callers without a request context, such as a
// metrics scrape. Each call is bounded by timeout.
func (q *Queue) DepthFunc(timeout time.Duration) func() (int64, error) {
	return func() (int64, error) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return q.Len(ctx)
	}
}
