package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNoSession is returned when no signed-in user is available.
var ErrNoSession = errors.New("not signed in")

// SessionProvider resolves the signed-in user for an operation.
type SessionProvider interface {
	UserID(ctx context.Context) (uuid.UUID, error)
}

type ctxKey struct{}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFromContext returns the user id stored by WithUserID.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// ContextSession reads the user from the request context.
type ContextSession struct{}

// UserID implements SessionProvider.
func (ContextSession) UserID(ctx context.Context) (uuid.UUID, error) {
	if id, ok := UserIDFromContext(ctx); ok {
		return id, nil
	}
	return uuid.Nil, ErrNoSession
}

// StaticSession always returns the same user. Used by long-lived capture
// sessions and the CLI, which outlive any single request.
type StaticSession uuid.UUID

// UserID implements SessionProvider.
func (s StaticSession) UserID(context.Context) (uuid.UUID, error) {
	id := uuid.UUID(s)
	if id == uuid.Nil {
		return uuid.Nil, ErrNoSession
	}
	return id, nil
}
