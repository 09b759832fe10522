package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestSupervisor(dc *mockDiscordClient, renegotiate, reconnect time.Duration) *Supervisor {
	return NewSupervisor(dc, 200*time.Millisecond, renegotiate, reconnect, newTestMetrics())
}

func TestJoin_EstablishesConnection(t *testing.T) {
	dc := &mockDiscordClient{voice: &mockVoiceConnection{audioStarted: make(chan struct{}), closed: make(chan struct{})}}
	s := newTestSupervisor(dc, time.Second, 2*time.Second)
	s.SetHandlers(func(string, string, []byte) {}, func(string) {})

	if err := s.Join(context.Background(), "guild-1", "vc-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if got := s.State("vc-1"); got != ConnStateReady {
		t.Fatalf("expected ready state, got %s", got)
	}
}

func TestJoin_AlreadyConnectedFails(t *testing.T) {
	dc := &mockDiscordClient{voice: &mockVoiceConnection{closed: make(chan struct{})}}
	s := newTestSupervisor(dc, time.Second, 2*time.Second)
	s.SetHandlers(func(string, string, []byte) {}, func(string) {})

	if err := s.Join(context.Background(), "guild-1", "vc-1"); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	if err := s.Join(context.Background(), "guild-1", "vc-1"); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestJoin_TimeoutReleasesSlot(t *testing.T) {
	dc := &mockDiscordClient{joinDelay: time.Second, voice: &mockVoiceConnection{closed: make(chan struct{})}}
	s := newTestSupervisor(dc, time.Second, 2*time.Second)
	s.SetHandlers(func(string, string, []byte) {}, func(string) {})

	if err := s.Join(context.Background(), "guild-1", "vc-1"); !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("expected ErrConnectTimeout, got %v", err)
	}
	if got := s.State("vc-1"); got != ConnStateIdle {
		t.Fatalf("expected idle after timeout, got %s", got)
	}
}

func TestLeave_NotConnectedFails(t *testing.T) {
	s := newTestSupervisor(&mockDiscordClient{}, time.Second, 2*time.Second)
	if err := s.Leave("vc-unknown"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestDrop_RecoveryWithinWindowRetainsConnection(t *testing.T) {
	voice := &mockVoiceConnection{closed: make(chan struct{})}
	dc := &mockDiscordClient{voice: voice}
	s := newTestSupervisor(dc, time.Second, 2*time.Second)

	var mu sync.Mutex
	lost := 0
	s.SetHandlers(func(string, string, []byte) {}, func(string) {
		mu.Lock()
		lost++
		mu.Unlock()
	})

	if err := s.Join(context.Background(), "guild-1", "vc-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	voice.fireState(false)
	if got := s.State("vc-1"); got != ConnStateDisconnected {
		t.Fatalf("expected disconnected during recovery, got %s", got)
	}
	voice.fireState(true)
	if got := s.State("vc-1"); got != ConnStateReady {
		t.Fatalf("expected ready after recovery, got %s", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if lost != 0 {
		t.Fatalf("expected no connection-lost callback, got %d", lost)
	}
}

func TestDrop_WindowsExhaustedDestroysConnection(t *testing.T) {
	voice := &mockVoiceConnection{closed: make(chan struct{})}
	dc := &mockDiscordClient{voice: voice}
	s := newTestSupervisor(dc, 20*time.Millisecond, 60*time.Millisecond)

	lostCh := make(chan string, 1)
	s.SetHandlers(func(string, string, []byte) {}, func(channelID string) { lostCh <- channelID })

	if err := s.Join(context.Background(), "guild-1", "vc-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	voice.fireState(false)

	select {
	case channelID := <-lostCh:
		if channelID != "vc-1" {
			t.Fatalf("unexpected channel in connection-lost callback: %s", channelID)
		}
	case <-time.After(time.Second):
		t.Fatal("connection-lost callback not invoked after windows expired")
	}
	if got := s.State("vc-1"); got != ConnStateIdle {
		t.Fatalf("expected connection removed after destroy, got %s", got)
	}
	if voice.disconnectCount() == 0 {
		t.Fatal("expected the voice transport disconnected on destroy")
	}
}

func TestReceiveAudio_RoutedToHandler(t *testing.T) {
	voice := &mockVoiceConnection{audioStarted: make(chan struct{}), closed: make(chan struct{})}
	dc := &mockDiscordClient{voice: voice}
	s := newTestSupervisor(dc, time.Second, 2*time.Second)

	type chunk struct {
		channelID string
		userID    string
		data      []byte
	}
	received := make(chan chunk, 1)
	s.SetHandlers(func(channelID, userID string, data []byte) {
		received <- chunk{channelID: channelID, userID: userID, data: data}
	}, func(string) {})

	if err := s.Join(context.Background(), "guild-1", "vc-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	<-voice.audioStarted
	voice.mu.Lock()
	callback := voice.audioCallback
	voice.mu.Unlock()
	callback("u1", []byte{0x01, 0x02})

	select {
	case got := <-received:
		if got.channelID != "vc-1" || got.userID != "u1" || len(got.data) != 2 {
			t.Fatalf("unexpected chunk routing: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("audio chunk not routed to handler")
	}
}

func TestReportFatal_DestroysImmediately(t *testing.T) {
	voice := &mockVoiceConnection{closed: make(chan struct{})}
	dc := &mockDiscordClient{voice: voice}
	s := newTestSupervisor(dc, time.Minute, 2*time.Minute)

	lostCh := make(chan string, 1)
	s.SetHandlers(func(string, string, []byte) {}, func(channelID string) { lostCh <- channelID })

	if err := s.Join(context.Background(), "guild-1", "vc-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	s.ReportFatal("vc-1")

	select {
	case <-lostCh:
	case <-time.After(time.Second):
		t.Fatal("connection-lost callback not invoked")
	}
}
