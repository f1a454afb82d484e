package processing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
)

const (
	eventChannelPrefix = "jobs:"
	eventTimeout       = 5 * time.Second
)

// EventChannel returns the pub/sub channel carrying a job's terminal event.
func EventChannel(jobID uuid.UUID) string {
	return eventChannelPrefix + jobID.String()
}

// JobEvent announces that a job reached a terminal state.
type JobEvent struct {
	JobID  uuid.UUID        `json:"job_id"`
	Status models.JobStatus `json:"status"`
	At     int64            `json:"at"`
}

// Events carries job completion between the worker and waiting handles.
type Events interface {
	Publish(ctx context.Context, ev JobEvent) error
	Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan JobEvent, func(), error)
}

// RedisEvents implements Events with Redis pub/sub.
type RedisEvents struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisEvents creates a Redis job event bus.
func NewRedisEvents(client *redis.Client, logger *zap.Logger) *RedisEvents {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisEvents{client: client, logger: logger}
}

// Publish sends ev on the job's channel.
func (e *RedisEvents) Publish(ctx context.Context, ev JobEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()
	return e.client.Publish(ctx, EventChannel(ev.JobID), body).Err()
}

// Subscribe listens on the job's channel until ctx is done or cancel is called.
func (e *RedisEvents) Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan JobEvent, func(), error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := e.client.Subscribe(ctx, EventChannel(jobID))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}
	out := make(chan JobEvent, 1)
	ch := pubsub.Channel()
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev JobEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					e.logger.Warn("invalid job event", zap.String("payload", msg.Payload))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return out, cancelCtx, nil
}

// MemoryEvents is an in-process Events used by single-binary deployments and tests.
type MemoryEvents struct {
	mu   sync.Mutex
	subs map[uuid.UUID][]chan JobEvent
}

// NewMemoryEvents creates an in-process event bus.
func NewMemoryEvents() *MemoryEvents {
	return &MemoryEvents{subs: make(map[uuid.UUID][]chan JobEvent)}
}

// Publish delivers ev to current subscribers of the job.
func (m *MemoryEvents) Publish(_ context.Context, ev JobEvent) error {
	m.mu.Lock()
	subs := m.subs[ev.JobID]
	delete(m.subs, ev.JobID)
	m.mu.Unlock()
	for _, ch := range subs {
		ch <- ev
		close(ch)
	}
	return nil
}

// Subscribe registers for the job's next event.
func (m *MemoryEvents) Subscribe(_ context.Context, jobID uuid.UUID) (<-chan JobEvent, func(), error) {
	ch := make(chan JobEvent, 1)
	m.mu.Lock()
	m.subs[jobID] = append(m.subs[jobID], ch)
	m.mu.Unlock()
	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.subs[jobID]
		for i, c := range list {
			if c == ch {
				m.subs[jobID] = append(list[:i], list[i+1:]...)
				close(ch)
				break
			}
		}
		if len(m.subs[jobID]) == 0 {
			delete(m.subs, jobID)
		}
	}
	return ch, cancel, nil
}
