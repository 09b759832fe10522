package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibikilab/kikitori/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the operational surface: liveness, prometheus metrics and
// the currently active sessions.
type Server struct {
	server      *http.Server
	coordinator *session.Coordinator
	startedAt   time.Time
}

func NewServer(addr string, coordinator *session.Coordinator) *Server {
	s := &Server{
		coordinator: coordinator,
		startedAt:   time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) Start() {
	slog.Info("starting ops http server", "addr", s.server.Addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops http server failed", "error", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	summaries := s.coordinator.ListActiveSessions()
	type sessionView struct {
		SessionID        string    `json:"session_id"`
		GuildID          string    `json:"guild_id"`
		ChannelID        string    `json:"channel_id"`
		StartedAt        time.Time `json:"started_at"`
		ParticipantCount int       `json:"participant_count"`
	}
	views := make([]sessionView, 0, len(summaries))
	for _, sum := range summaries {
		views = append(views, sessionView{
			SessionID:        sum.SessionID,
			GuildID:          sum.GuildID,
			ChannelID:        sum.ChannelID,
			StartedAt:        sum.StartedAt,
			ParticipantCount: sum.ParticipantCount,
		})
	}
	writeJSON(w, map[string]any{"sessions": views})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode ops response", "error", err)
	}
}
