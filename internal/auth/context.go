// Package auth carries the filter session a request is scoped to.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SessionHeader names the request header that scopes a request to a filter
// session.
const SessionHeader = "X-Session-ID"

// ErrScopeMismatch is returned when a request names a session other than the
// one it is scoped to.
var ErrScopeMismatch = errors.New("session does not match request scope")

type contextKey string

const sessionIDKey contextKey = "sessionID"

// ContextWithSessionID returns a new context that carries the session scope.
func ContextWithSessionID(ctx context.Context, id uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext retrieves the session scope from the context, if any.
func SessionIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(sessionIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// ResolveSession picks the session a request acts on. An explicit id must
// agree with the scope when both are present; otherwise the scope is used.
// The result is nil when neither is set.
func ResolveSession(ctx context.Context, explicit *uuid.UUID) (*uuid.UUID, error) {
	scoped, ok := SessionIDFromContext(ctx)
	if explicit == nil {
		if !ok {
			return nil, nil
		}
		return &scoped, nil
	}
	if ok && scoped != *explicit {
		return nil, fmt.Errorf("%w: %s", ErrScopeMismatch, *explicit)
	}
	return explicit, nil
}
