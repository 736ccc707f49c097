package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestSessionIDFromContext(t *testing.T) {
	if _, ok := SessionIDFromContext(context.Background()); ok {
		t.Fatalf("plain context has no session")
	}
	if _, ok := SessionIDFromContext(ContextWithSessionID(context.Background(), uuid.Nil)); ok {
		t.Fatalf("nil uuid is not a session")
	}
	id := uuid.New()
	got, ok := SessionIDFromContext(ContextWithSessionID(context.Background(), id))
	if !ok || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, ok)
	}
}

func TestResolveSession(t *testing.T) {
	scoped, other := uuid.New(), uuid.New()
	ctx := ContextWithSessionID(context.Background(), scoped)

	if got, err := ResolveSession(context.Background(), nil); err != nil || got != nil {
		t.Fatalf("expected no session, got %v (%v)", got, err)
	}
	if got, err := ResolveSession(ctx, nil); err != nil || *got != scoped {
		t.Fatalf("expected scoped session, got %v (%v)", got, err)
	}
	if got, err := ResolveSession(context.Background(), &other); err != nil || *got != other {
		t.Fatalf("expected explicit session, got %v (%v)", got, err)
	}
	if got, err := ResolveSession(ctx, &scoped); err != nil || *got != scoped {
		t.Fatalf("matching ids resolve, got %v (%v)", got, err)
	}
	if _, err := ResolveSession(ctx, &other); !errors.Is(err, ErrScopeMismatch) {
		t.Fatalf("expected scope mismatch, got %v", err)
	}
}
