package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/resourcekit/internal/familyloader"
	"github.com/rpattn/resourcekit/internal/repository"
)

type ctxKey string

const familyLoaderKey ctxKey = "familyLoader"

// DataLoaderMiddleware attaches a fresh family loader to each request context
func DataLoaderMiddleware(repo repository.ResourceRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithFamilyLoader(r.Context(), familyloader.NewFamilyLoader(repo))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithFamilyLoader stores loader in ctx.
func WithFamilyLoader(ctx context.Context, loader *familyloader.FamilyLoader) context.Context {
	return context.WithValue(ctx, familyLoaderKey, loader)
}

// FamilyLoaderFromContext retrieves the family loader from context
func FamilyLoaderFromContext(ctx context.Context) *familyloader.FamilyLoader {
	if l, ok := ctx.Value(familyLoaderKey).(*familyloader.FamilyLoader); ok {
		return l
	}
	return nil
}
