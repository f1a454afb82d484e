// Package notify delivers user-facing notices (toasts) from capture, upload
// and processing to logs, Redis pub/sub and websocket clients.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is one user-facing notice.
type Notification struct {
	UserID  uuid.UUID `json:"user_id"`
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier reports outcomes to the user. Implementations must not block for long.
type Notifier interface {
	Info(ctx context.Context, userID uuid.UUID, title, message string)
	Error(ctx context.Context, userID uuid.UUID, title, message string)
}

func newNotification(userID uuid.UUID, level Level, title, message string) Notification {
	return Notification{UserID: userID, Level: level, Title: title, Message: message, At: time.Now().UTC()}
}

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier backed by logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Info(_ context.Context, userID uuid.UUID, title, message string) {
	n.logger.Info(title, zap.String("user_id", userID.String()), zap.String("message", message))
}

func (n *LogNotifier) Error(_ context.Context, userID uuid.UUID, title, message string) {
	n.logger.Warn(title, zap.String("user_id", userID.String()), zap.String("message", message))
}

// Multi fans a notification out to every notifier.
type Multi []Notifier

func (m Multi) Info(ctx context.Context, userID uuid.UUID, title, message string) {
	for _, n := range m {
		n.Info(ctx, userID, title, message)
	}
}

func (m Multi) Error(ctx context.Context, userID uuid.UUID, title, message string) {
	for _, n := range m {
		n.Error(ctx, userID, title, message)
	}
}

// Recorder keeps notifications in memory. Used by the capture CLI summary and tests.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Info(_ context.Context, userID uuid.UUID, title, message string) {
	r.add(newNotification(userID, LevelInfo, title, message))
}

func (r *Recorder) Error(_ context.Context, userID uuid.UUID, title, message string) {
	r.add(newNotification(userID, LevelError, title, message))
}

func (r *Recorder) add(n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Errors returns only error-level notifications.
func (r *Recorder) Errors() []Notification {
	var out []Notification
	for _, n := range r.All() {
		if n.Level == LevelError {
			out = append(out, n)
		}
	}
	return out
}
