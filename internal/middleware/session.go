package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/resourcekit/internal/auth"
)

// SessionMiddleware scopes requests that carry the session header to that
// filter session. A malformed header is rejected.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(auth.SessionHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid " + auth.SessionHeader + " header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithSessionID(r.Context(), id)))
	})
}
