package ops

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibikilab/kikitori/internal/config"
	"github.com/hibikilab/kikitori/internal/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{DiscordGuildID: "guild-1"}
	coordinator := session.NewCoordinator(cfg, nil, nil, nil, nil, nil)
	return NewServer("127.0.0.1:0", coordinator)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", body["status"])
	}
}

func TestHandleHealth_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleSessions_EmptyList(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Sessions []json.RawMessage `json:"sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Sessions) != 0 {
		t.Fatalf("expected empty session list, got %d", len(body.Sessions))
	}
}
