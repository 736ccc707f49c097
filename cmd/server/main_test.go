package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rpattn/resourcekit/internal/config"
	"github.com/rpattn/resourcekit/internal/drafts"
	"github.com/rpattn/resourcekit/internal/sessions"
)

func TestNewLogger(t *testing.T) {
	l, err := newLogger(config.LogConfig{Level: "warn"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) || !l.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("expected warn level logger")
	}
	if _, err := newLogger(config.LogConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected an error for an unknown level")
	}
}

func TestBuildAppServesMemoryBackend(t *testing.T) {
	a, err := buildApp(context.Background(), config.DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.close()

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodOptions, "/resources/CELL", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("expected CORS preflight to allow the configured origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestLookupKeysCommand(t *testing.T) {
	cfg = config.DefaultConfig()
	var out bytes.Buffer
	lookupKeysCmd.SetOut(&out)
	if err := lookupKeysCmd.RunE(lookupKeysCmd, nil); err != nil {
		t.Fatalf("lookup-keys: %v", err)
	}
	if !strings.Contains(out.String(), "CELL_FAMILY") || !strings.Contains(out.String(), "cell_model") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

// openSessionDraft creates a cell, a session and a draft owned by it.
func openSessionDraft(t *testing.T, a *app) (uuid.UUID, uuid.UUID) {
	t.Helper()
	call := func(method, path, body string, want int) map[string]any {
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		if rec.Code != want {
			t.Fatalf("%s %s: %d %s", method, path, rec.Code, rec.Body.String())
		}
		var out map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		return out
	}

	cell := call(http.MethodPost, "/resources/CELL", `{"identifier": "c1"}`, http.StatusCreated)
	session := call(http.MethodPost, "/sessions", "", http.StatusCreated)
	draft := call(http.MethodPost, "/drafts", fmt.Sprintf(`{"resource_id": %q, "session_id": %q}`, cell["id"], session["id"]), http.StatusCreated)

	return uuid.MustParse(session["id"].(string)), uuid.MustParse(draft["id"].(string))
}

func TestExpireSessionsDiscardsDrafts(t *testing.T) {
	a, err := buildApp(context.Background(), config.DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.close()
	sessionID, draftID := openSessionDraft(t, a)

	core, logs := observer.New(zapcore.InfoLevel)
	if n := expireSessions(a.sessions, a.drafts, time.Now().Add(time.Minute), zap.New(core)); n != 1 {
		t.Fatalf("expected one expired session, got %d", n)
	}
	if _, err := a.sessions.Get(sessionID); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("session should be gone, got %v", err)
	}
	if _, err := a.drafts.Get(draftID); !errors.Is(err, drafts.ErrDraftNotFound) {
		t.Fatalf("draft of an expired session should be discarded, got %v", err)
	}
	entries := logs.FilterMessage("expired idle sessions").All()
	if len(entries) != 1 || entries[0].ContextMap()["drafts_discarded"] != int64(1) {
		t.Fatalf("unexpected sweep log %v", entries)
	}
}

func TestSweepSessionsRunsUntilCancelled(t *testing.T) {
	a, err := buildApp(context.Background(), config.DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.close()
	_, draftID := openSessionDraft(t, a)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweepSessions(ctx, a.sessions, a.drafts, config.SessionsConfig{TTL: time.Millisecond, SweepInterval: 5 * time.Millisecond}, zap.NewNop())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := a.drafts.Get(draftID); errors.Is(err, drafts.ErrDraftNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("draft of an expired session was never discarded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop after cancel")
	}
}
