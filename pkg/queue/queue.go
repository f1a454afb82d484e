package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueProcessing is the Redis list key for media processing jobs.
	QueueProcessing = "worker:processing"
	// QueueDLQ holds jobs whose handler failed in a way the worker could not record.
	QueueDLQ = "worker:dlq"
	// PollTimeout bounds each blocking pop so shutdown is noticed.
	PollTimeout = 5 * time.Second
	// ErrorBackoff is the delay after a transport error.
	ErrorBackoff = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeProcessVideo JobType = "process_video"
)

// ProcessVideoPayload is the payload for media processing jobs.
// The job row already exists; the worker only needs its id.
type ProcessVideoPayload struct {
	JobID       uuid.UUID `json:"job_id"`
	MediaFileID uuid.UUID `json:"media_file_id"`
	JobType     string    `json:"job_type"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Handler processes one job. A returned error means the job could not be
// brought to a recorded terminal state.
type Handler func(ctx context.Context, job *Job) error

// Publisher enqueues jobs.
type Publisher interface {
	Publish(ctx context.Context, job *Job) error
}

// Consumer delivers jobs to a handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, handle Handler) error
}

// NewJob wraps payload in an envelope with a fresh id.
func NewJob(typ JobType, payload interface{}) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// DecodeProcessVideo extracts the processing payload from job.
func DecodeProcessVideo(job *Job) (ProcessVideoPayload, error) {
	var p ProcessVideoPayload
	if job.Type != JobTypeProcessVideo {
		return p, fmt.Errorf("unknown job type: %s", job.Type)
	}
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return p, fmt.Errorf("unmarshal payload: %w", err)
	}
	if p.JobID == uuid.Nil {
		return p, errors.New("payload missing job_id")
	}
	return p, nil
}

// Queue enqueues and dequeues jobs via a Redis list.
type Queue struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue on QueueProcessing.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, key: QueueProcessing, logger: logger}
}

// Publish appends job to the processing list.
func (q *Queue) Publish(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	return nil
}

// Dequeue blocks up to PollTimeout for a job. Returns nil, nil on timeout or a malformed entry.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, PollTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		_ = q.client.RPush(ctx, QueueDLQ, result[1]).Err()
		return nil, nil
	}
	return &job, nil
}

// DeadLetterEntry encodes job with the failure reason for a dead-letter store.
func DeadLetterEntry(job *Job, reason string) ([]byte, error) {
	entry := struct {
		*Job
		Reason string    `json:"reason"`
		At     time.Time `json:"dead_at"`
	}{Job: job, Reason: reason, At: time.Now().UTC()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal dead letter: %w", err)
	}
	return raw, nil
}

// DeadLetter pushes job to the DLQ with the failure reason.
func (q *Queue) DeadLetter(ctx context.Context, job *Job, reason string) error {
	raw, err := DeadLetterEntry(job, reason)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
		q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
		return err
	}
	q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.String("reason", reason))
	return nil
}

// Consume runs the dequeue loop. Jobs are never retried: a handler error
// sends the job to the DLQ.
func (q *Queue) Consume(ctx context.Context, handle Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, err := q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Warn("dequeue error", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(ErrorBackoff):
			}
			continue
		}
		if job == nil {
			continue
		}
		if err := handle(ctx, job); err != nil {
			q.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			// The DLQ write must survive shutdown.
			if dlqErr := q.DeadLetter(context.Background(), job, err.Error()); dlqErr != nil {
				q.logger.Error("dead-letter failed", zap.Error(dlqErr))
			}
		}
	}
}
