// Package queue carries render jobs between the API and the worker over a Redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueRenderAudio = "queue:render_audio"

	JobTypeRenderAudio = "render_audio"

	pingTimeout = 5 * time.Second
)

// Job is one queued render. Text lives only in the queue entry; it is never
// written to the database.
type Job struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	RenderID  uuid.UUID `json:"render_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Queue struct {
	rdb *redis.Client
}

// New connects to redisURL and verifies the connection.
func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{rdb: rdb}, nil
}

func (q *Queue) Close() error {
	return q.rdb.Close()
}

// EnqueueRender queues text for rendering into the given render record.
func (q *Queue) EnqueueRender(ctx context.Context, renderID uuid.UUID, text string) error {
	job := Job{
		ID:        uuid.New(),
		Type:      JobTypeRenderAudio,
		RenderID:  renderID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.rdb.RPush(ctx, QueueRenderAudio, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue render %s: %w", renderID, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job on queueName. It returns a nil
// job when the wait times out.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	res, err := q.rdb.BLPop(ctx, timeout, queueName).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	// BLPOP replies with [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply of %d elements", len(res))
	}
	return decodeJob(res[1])
}

// Len returns the number of jobs waiting on queueName.
func (q *Queue) Len(ctx context.Context, queueName string) (int64, error) {
	return q.rdb.LLen(ctx, queueName).Result()
}

func decodeJob(raw string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.RenderID == uuid.Nil {
		return nil, fmt.Errorf("job %s has no render ID", job.ID)
	}
	return &job, nil
}
