package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hibikilab/kikitori/internal/discord"
	"github.com/hibikilab/kikitori/internal/metrics"
)

type ConnState string

const (
	ConnStateIdle         ConnState = "idle"
	ConnStateConnecting   ConnState = "connecting"
	ConnStateReady        ConnState = "ready"
	ConnStateDisconnected ConnState = "disconnected"
	ConnStateDestroyed    ConnState = "destroyed"
)

// Supervisor owns the voice transport connection of each joined channel.
// A transport drop opens two recovery windows (a short renegotiation wait
// inside a longer reconnect wait); recovery within either keeps the
// connection and leaves session state untouched, exhaustion destroys the
// connection and asks the coordinator to end the session.
type Supervisor struct {
	dc                discord.Client
	connectTimeout    time.Duration
	renegotiateWindow time.Duration
	reconnectWindow   time.Duration
	met               *metrics.Metrics

	mu    sync.Mutex
	conns map[string]*managedConnection

	onAudio          func(channelID, userID string, chunk []byte)
	onConnectionLost func(channelID string)
}

type managedConnection struct {
	guildID        string
	channelID      string
	voice          discord.VoiceConnection
	state          ConnState
	recoveryCancel chan struct{}
}

func NewSupervisor(dc discord.Client, connectTimeout, renegotiateWindow, reconnectWindow time.Duration, met *metrics.Metrics) *Supervisor {
	return &Supervisor{
		dc:                dc,
		connectTimeout:    connectTimeout,
		renegotiateWindow: renegotiateWindow,
		reconnectWindow:   reconnectWindow,
		met:               met,
		conns:             make(map[string]*managedConnection),
	}
}

// SetHandlers wires the audio and connection-lost callbacks. Must be called
// before Join.
func (s *Supervisor) SetHandlers(onAudio func(channelID, userID string, chunk []byte), onConnectionLost func(channelID string)) {
	s.onAudio = onAudio
	s.onConnectionLost = onConnectionLost
}

func (s *Supervisor) Join(ctx context.Context, guildID, channelID string) error {
	s.mu.Lock()
	if _, exists := s.conns[channelID]; exists {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	mc := &managedConnection{guildID: guildID, channelID: channelID, state: ConnStateConnecting}
	s.conns[channelID] = mc
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	type joinResult struct {
		voice discord.VoiceConnection
		err   error
	}
	resultCh := make(chan joinResult, 1)
	go func() {
		voice, err := s.dc.JoinVoiceChannel(guildID, channelID)
		resultCh <- joinResult{voice: voice, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			s.removeConn(channelID)
			return res.err
		}
		s.attachVoice(mc, res.voice)
		slog.Info("voice connection ready", "guild_id", guildID, "channel_id", channelID)
		return nil
	case <-ctx.Done():
		s.removeConn(channelID)
		go func() {
			// The gateway join may still complete after we gave up.
			if res := <-resultCh; res.err == nil && res.voice != nil {
				_ = res.voice.Disconnect()
			}
		}()
		slog.Error("voice connection timed out", "guild_id", guildID, "channel_id", channelID)
		return ErrConnectTimeout
	}
}

func (s *Supervisor) attachVoice(mc *managedConnection, voice discord.VoiceConnection) {
	s.mu.Lock()
	mc.voice = voice
	mc.state = ConnStateReady
	s.mu.Unlock()

	channelID := mc.channelID
	voice.RegisterStateHandler(func(ready bool) {
		if ready {
			s.handleRecovered(channelID)
		} else {
			s.handleDrop(channelID)
		}
	})
	go voice.ReceiveAudio(func(userID string, chunk []byte) {
		if s.onAudio != nil {
			s.onAudio(channelID, userID, chunk)
		}
	})
}

func (s *Supervisor) Leave(channelID string) error {
	s.mu.Lock()
	mc, ok := s.conns[channelID]
	if ok {
		delete(s.conns, channelID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	if mc.recoveryCancel != nil {
		close(mc.recoveryCancel)
	}
	if mc.voice != nil {
		if err := mc.voice.Disconnect(); err != nil {
			slog.Warn("voice disconnect failed", "error", err, "channel_id", channelID)
		}
	}
	slog.Info("left voice channel", "channel_id", channelID)
	return nil
}

func (s *Supervisor) State(channelID string) ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	mc, ok := s.conns[channelID]
	if !ok {
		return ConnStateIdle
	}
	return mc.state
}

func (s *Supervisor) handleDrop(channelID string) {
	s.mu.Lock()
	mc, ok := s.conns[channelID]
	if !ok || mc.state != ConnStateReady {
		s.mu.Unlock()
		return
	}
	mc.state = ConnStateDisconnected
	cancel := make(chan struct{})
	mc.recoveryCancel = cancel
	s.mu.Unlock()

	slog.Warn("voice transport dropped; entering recovery windows", "channel_id", channelID, "renegotiate_window", s.renegotiateWindow, "reconnect_window", s.reconnectWindow)
	go s.runRecoveryWindows(channelID, cancel)
}

func (s *Supervisor) runRecoveryWindows(channelID string, cancel chan struct{}) {
	renegotiate := time.NewTimer(s.renegotiateWindow)
	defer renegotiate.Stop()
	select {
	case <-cancel:
		return
	case <-renegotiate.C:
	}
	slog.Warn("renegotiation window expired; waiting for reconnect", "channel_id", channelID)

	reconnect := time.NewTimer(s.reconnectWindow - s.renegotiateWindow)
	defer reconnect.Stop()
	select {
	case <-cancel:
		return
	case <-reconnect.C:
	}
	s.destroy(channelID)
}

func (s *Supervisor) handleRecovered(channelID string) {
	s.mu.Lock()
	mc, ok := s.conns[channelID]
	if !ok || mc.state != ConnStateDisconnected {
		s.mu.Unlock()
		return
	}
	mc.state = ConnStateReady
	if mc.recoveryCancel != nil {
		close(mc.recoveryCancel)
		mc.recoveryCancel = nil
	}
	s.mu.Unlock()
	if s.met != nil {
		s.met.VoiceReconnects.Inc()
	}
	slog.Info("voice transport recovered within window; session retained", "channel_id", channelID)
}

// ReportFatal moves a connection straight to Destroyed, bypassing recovery.
func (s *Supervisor) ReportFatal(channelID string) {
	s.destroy(channelID)
}

func (s *Supervisor) destroy(channelID string) {
	s.mu.Lock()
	mc, ok := s.conns[channelID]
	if !ok {
		s.mu.Unlock()
		return
	}
	mc.state = ConnStateDestroyed
	if mc.recoveryCancel != nil {
		close(mc.recoveryCancel)
		mc.recoveryCancel = nil
	}
	delete(s.conns, channelID)
	s.mu.Unlock()

	if mc.voice != nil {
		_ = mc.voice.Disconnect()
	}
	if s.met != nil {
		s.met.VoiceDestroys.Inc()
	}
	slog.Error("voice connection destroyed after recovery exhausted", "channel_id", channelID)
	if s.onConnectionLost != nil {
		s.onConnectionLost(channelID)
	}
}

func (s *Supervisor) removeConn(channelID string) {
	s.mu.Lock()
	delete(s.conns, channelID)
	s.mu.Unlock()
}
