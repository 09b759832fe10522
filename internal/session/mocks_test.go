package session

import (
	"context"
	"sync"
	"time"

	"github.com/hibikilab/kikitori/internal/capture"
	"github.com/hibikilab/kikitori/internal/config"
	"github.com/hibikilab/kikitori/internal/discord"
	"github.com/hibikilab/kikitori/internal/metrics"
	"github.com/hibikilab/kikitori/internal/repository"
	"github.com/hibikilab/kikitori/internal/transcriber"
	"github.com/hibikilab/kikitori/internal/webhook"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestMetrics() *metrics.Metrics {
	return metrics.NewWithRegisterer(prometheus.NewRegistry())
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                       "development",
		DiscordToken:              "token",
		DiscordGuildID:            "guild-1",
		CaptureDir:                "/tmp",
		DefaultTranscribeLanguage: "ja-JP",
		DatabaseURL:               "postgres://localhost/test",
		GoogleCloudProjectID:      "proj",
		MaxSessionDurationMin:     180,
		EmptyChannelGraceSec:      1,
		VoiceConnectTimeoutSec:    1,
		RenegotiateWindowSec:      1,
		ReconnectWindowSec:        2,
		FinalizeCeilingSec:        2,
		TranscribeTimeoutSec:      5,
		MinCaptureDurationMs:      100,
		MaxTranscribePayloadMB:    10,
	}
}

type mockRepository struct {
	mu             sync.Mutex
	createCalls    []repository.CreateSessionInput
	completeCalls  []repository.CompleteSessionInput
	savedRecords   []repository.SaveSessionRecordInput
	runningSession *repository.Session
	createErr      error
}

func (m *mockRepository) CreateSession(_ context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.createCalls = append(m.createCalls, input)
	return &repository.Session{
		ID:        input.SessionID,
		GuildID:   input.GuildID,
		ChannelID: input.ChannelID,
		StartedAt: input.StartedAt,
		Status:    repository.SessionStatusRunning,
	}, nil
}

func (m *mockRepository) CompleteSession(_ context.Context, input repository.CompleteSessionInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCalls = append(m.completeCalls, input)
	return nil
}

func (m *mockRepository) GetRunningSessionByChannel(_ context.Context, _, _ string) (*repository.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runningSession, nil
}

func (m *mockRepository) SaveSessionRecord(_ context.Context, input repository.SaveSessionRecordInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.savedRecords = append(m.savedRecords, input)
	return nil
}

func (m *mockRepository) completedStopReasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	reasons := make([]string, 0, len(m.completeCalls))
	for _, c := range m.completeCalls {
		reasons = append(reasons, c.StopReason)
	}
	return reasons
}

type mockDiscordClient struct {
	mu           sync.Mutex
	sendCalls    []string
	participants []discord.VoiceParticipant
	profiles     []discord.ParticipantProfile
	profilesErr  error
	joinErr      error
	joinDelay    time.Duration
	voice        *mockVoiceConnection
}

func (m *mockDiscordClient) Connect(_ context.Context) error { return nil }
func (m *mockDiscordClient) Close() error                    { return nil }

func (m *mockDiscordClient) JoinVoiceChannel(_, _ string) (discord.VoiceConnection, error) {
	if m.joinDelay > 0 {
		time.Sleep(m.joinDelay)
	}
	if m.joinErr != nil {
		return nil, m.joinErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.voice == nil {
		m.voice = &mockVoiceConnection{}
	}
	return m.voice, nil
}

func (m *mockDiscordClient) SendChannelMessage(_ string, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls = append(m.sendCalls, content)
	return nil
}

func (m *mockDiscordClient) RegisterVoiceStateUpdateHandler(_ func(discord.VoiceStateEvent)) {}

func (m *mockDiscordClient) ListVoiceChannelParticipants(_, _ string) ([]discord.VoiceParticipant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participants, nil
}

func (m *mockDiscordClient) GetBotUserID() (string, error) { return "bot-user", nil }

func (m *mockDiscordClient) ResolveParticipantProfiles(_ context.Context, _ string, _ []string) ([]discord.ParticipantProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profilesErr != nil {
		return nil, m.profilesErr
	}
	return m.profiles, nil
}

func (m *mockDiscordClient) Run() error { return nil }

func (m *mockDiscordClient) sentMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sendCalls...)
}

type mockVoiceConnection struct {
	mu            sync.Mutex
	disconnects   int
	stateHandler  func(ready bool)
	audioCallback func(userID string, opusPacket []byte)
	audioStarted  chan struct{}
	closed        chan struct{}
	closeOnce     sync.Once
}

func (m *mockVoiceConnection) Disconnect() error {
	m.mu.Lock()
	m.disconnects++
	m.mu.Unlock()
	m.closeOnce.Do(func() {
		if m.closed != nil {
			close(m.closed)
		}
	})
	return nil
}

func (m *mockVoiceConnection) ReceiveAudio(callback func(userID string, opusPacket []byte)) {
	m.mu.Lock()
	m.audioCallback = callback
	started := m.audioStarted
	closed := m.closed
	m.mu.Unlock()
	if started != nil {
		close(started)
	}
	if closed != nil {
		<-closed
	}
}

func (m *mockVoiceConnection) RegisterStateHandler(handler func(ready bool)) {
	m.mu.Lock()
	m.stateHandler = handler
	m.mu.Unlock()
}

func (m *mockVoiceConnection) fireState(ready bool) {
	m.mu.Lock()
	handler := m.stateHandler
	m.mu.Unlock()
	if handler != nil {
		handler(ready)
	}
}

func (m *mockVoiceConnection) disconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

type mockTranscriber struct {
	mu      sync.Mutex
	calls   []string
	result  transcriber.Result
	err     error
	blockOn context.Context
}

func (m *mockTranscriber) Transcribe(ctx context.Context, assetPath, _ string) (transcriber.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, assetPath)
	m.mu.Unlock()
	if m.blockOn != nil {
		select {
		case <-ctx.Done():
			return transcriber.Result{}, ctx.Err()
		case <-m.blockOn.Done():
		}
	}
	if m.err != nil {
		return transcriber.Result{}, m.err
	}
	return m.result, nil
}

func (m *mockTranscriber) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockWebhookSender struct {
	mu       sync.Mutex
	payloads []webhook.CompletedSessionPayload
}

func (m *mockWebhookSender) SendCompletedSession(_ context.Context, payload webhook.CompletedSessionPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payload)
	return nil
}

func (m *mockWebhookSender) sentPayloads() []webhook.CompletedSessionPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]webhook.CompletedSessionPayload(nil), m.payloads...)
}

type testSink struct {
	mu    sync.Mutex
	data  []byte
	asset capture.Asset
	err   error
}

func (s *testSink) Write(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, chunk...)
	return nil
}

func (s *testSink) Finalize() (capture.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return capture.Asset{}, s.err
	}
	return s.asset, nil
}

func testSinkFactory(asset capture.Asset) capture.SinkFactory {
	return func(_, _ string) (capture.Sink, error) {
		return &testSink{asset: asset}, nil
	}
}
