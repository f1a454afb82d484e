package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "notifications:"
	publishTimeout = 5 * time.Second
)

// Channel returns the pub/sub channel for a user's notifications.
func Channel(userID uuid.UUID) string {
	return channelPrefix + userID.String()
}

// RedisNotifier publishes notifications on the user's Redis channel so any
// server instance holding that user's websocket can forward them.
type RedisNotifier struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisNotifier creates a Redis pub/sub notifier.
func NewRedisNotifier(client *redis.Client, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{client: client, logger: logger}
}

func (n *RedisNotifier) Info(ctx context.Context, userID uuid.UUID, title, message string) {
	n.publish(ctx, newNotification(userID, LevelInfo, title, message))
}

func (n *RedisNotifier) Error(ctx context.Context, userID uuid.UUID, title, message string) {
	n.publish(ctx, newNotification(userID, LevelError, title, message))
}

func (n *RedisNotifier) publish(ctx context.Context, note Notification) {
	if note.UserID == uuid.Nil {
		return
	}
	body, err := json.Marshal(note)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := n.client.Publish(ctx, Channel(note.UserID), body).Err(); err != nil {
		n.logger.Warn("publish notification failed", zap.String("user_id", note.UserID.String()), zap.Error(err))
	}
}

// Subscribe streams the user's notifications until ctx is done or cancel is called.
func (n *RedisNotifier) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan Notification, func(), error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := n.client.Subscribe(ctx, Channel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}
	out := make(chan Notification, 16)
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
				var note Notification
				if err := json.Unmarshal([]byte(msg.Payload), &note); err != nil {
					continue
				}
				select {
				case out <- note:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, cancelCtx, nil
}
