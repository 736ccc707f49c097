package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rpattn/resourcekit/internal/auth"
	"github.com/rpattn/resourcekit/internal/registry"
	"github.com/rpattn/resourcekit/internal/repository"
)

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := LoggingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) || fields["path"] != "/healthz" || fields["bytes"] != int64(15) {
		t.Fatalf("unexpected log fields %v", fields)
	}
}

func TestLoggingMiddlewareErrorsAtErrorLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := LoggingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Fatalf("expected server errors to be logged at error level")
	}
}

func TestDataLoaderMiddlewareAttachesLoader(t *testing.T) {
	reg, err := registry.Default("http://api.test")
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	var found bool
	handler := DataLoaderMiddleware(repository.NewMemoryRepository(reg))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		found = FamilyLoaderFromContext(r.Context()) != nil
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !found {
		t.Fatalf("expected a family loader in the request context")
	}
	if FamilyLoaderFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()) != nil {
		t.Fatalf("plain contexts carry no loader")
	}
}

func TestSessionMiddleware(t *testing.T) {
	id := uuid.New()
	var got uuid.UUID
	var scoped bool
	handler := SessionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, scoped = auth.SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(auth.SessionHeader, id.String())
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !scoped || got != id {
		t.Fatalf("expected session %s in context, got %s (%v)", id, got, scoped)
	}

	scoped = false
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if scoped {
		t.Fatalf("requests without the header are unscoped")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(auth.SessionHeader, "nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed header, got %d", rec.Code)
	}
}
