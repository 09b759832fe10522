package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibikilab/kikitori/internal/capture"
	"github.com/hibikilab/kikitori/internal/config"
	"github.com/hibikilab/kikitori/internal/discord"
	"github.com/hibikilab/kikitori/internal/metrics"
	"github.com/hibikilab/kikitori/internal/repository"
)

const (
	// ReasonBotRemoved covers the bot being moved or kicked out of the
	// voice channel by a moderator.
	ReasonBotRemoved = "bot_removed"

	eventQueueDepth = 64
)

// Transport is the coordinator's view of the connection supervisor.
type Transport interface {
	Join(ctx context.Context, guildID, channelID string) error
	Leave(channelID string) error
}

// Coordinator owns session and participant lifetimes, one session at most
// per channel. Gateway events are serialized per channel through a small
// queue so presence ordering for a single user holds while channels never
// wait on each other.
type Coordinator struct {
	cfg       *config.Config
	repo      repository.Repository
	dc        discord.Client
	newSink   capture.SinkFactory
	finalizer *Finalizer
	met       *metrics.Metrics
	transport Transport

	mu       sync.Mutex
	sessions map[string]*activeSession

	qmu    sync.Mutex
	queues map[string]chan func()

	botUserID  string
	finalizeWG sync.WaitGroup
}

type activeSession struct {
	session      *Session
	mux          *capture.Multiplexer
	participants map[string]*Participant
	departed     []Participant
	pendingDone  []<-chan capture.Result
	graceTimer   *time.Timer
	maxTimer     *time.Timer
}

func NewCoordinator(cfg *config.Config, repo repository.Repository, dc discord.Client, newSink capture.SinkFactory, finalizer *Finalizer, met *metrics.Metrics) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		repo:      repo,
		dc:        dc,
		newSink:   newSink,
		finalizer: finalizer,
		met:       met,
		sessions:  make(map[string]*activeSession),
		queues:    make(map[string]chan func()),
	}
}

func (c *Coordinator) SetTransport(t Transport) {
	c.transport = t
}

func (c *Coordinator) SetBotUserID(id string) {
	c.botUserID = id
}

// HandleVoiceStateUpdate routes one gateway presence event. A channel
// switch touches two channels and is split into a leave and a join, each
// serialized on its own channel's queue.
func (c *Coordinator) HandleVoiceStateUpdate(event discord.VoiceStateEvent) {
	if event.GuildID != c.cfg.DiscordGuildID {
		slog.Debug("ignoring voice event for different guild", "event_guild_id", event.GuildID, "configured_guild_id", c.cfg.DiscordGuildID)
		return
	}
	if event.BeforeChannelID == event.AfterChannelID {
		return
	}
	if event.UserID == c.botUserID {
		// A move to another channel removes the bot from the old one just
		// like a kick does; the old channel's session must not linger.
		if before := event.BeforeChannelID; before != "" {
			c.enqueue(before, func() { c.handleBotRemoved(before) })
		}
		return
	}
	if event.UserIsBot && !c.cfg.DiscordCountOtherBots {
		return
	}

	slog.Info("voice state update", "guild_id", event.GuildID, "user_id", event.UserID, "before_channel_id", event.BeforeChannelID, "after_channel_id", event.AfterChannelID)
	if before := event.BeforeChannelID; before != "" {
		userID := event.UserID
		c.enqueue(before, func() {
			if err := c.NotifyParticipantAbsent(before, userID); err != nil {
				slog.Error("failed to record participant absence", "error", err, "channel_id", before, "user_id", userID)
			}
		})
	}
	if after := event.AfterChannelID; after != "" {
		c.enqueue(after, func() { c.handleJoin(event.GuildID, after, event) })
	}
}

func (c *Coordinator) enqueue(channelID string, fn func()) {
	c.qmu.Lock()
	q, ok := c.queues[channelID]
	if !ok {
		q = make(chan func(), eventQueueDepth)
		c.queues[channelID] = q
		go func() {
			for f := range q {
				f()
			}
		}()
	}
	c.qmu.Unlock()

	select {
	case q <- fn:
	default:
		slog.Error("channel event queue full; dropping event", "channel_id", channelID)
	}
}

func (c *Coordinator) handleJoin(guildID, channelID string, event discord.VoiceStateEvent) {
	if !c.IsChannelActive(channelID) {
		ctx := context.Background()
		if err := c.transport.Join(ctx, guildID, channelID); err != nil && !errors.Is(err, ErrAlreadyConnected) {
			slog.Error("failed to join voice channel", "error", err, "guild_id", guildID, "channel_id", channelID)
			return
		}
		if _, err := c.StartSession(ctx, guildID, channelID); err != nil && !errors.Is(err, ErrSessionAlreadyActive) {
			slog.Error("failed to start session", "error", err, "guild_id", guildID, "channel_id", channelID)
			if err := c.transport.Leave(channelID); err != nil && !errors.Is(err, ErrNotConnected) {
				slog.Warn("failed to leave voice channel after start failure", "error", err, "channel_id", channelID)
			}
			return
		}
	}
	if err := c.NotifyParticipantPresent(channelID, discord.VoiceParticipant{UserID: event.UserID, IsBot: event.UserIsBot}); err != nil {
		slog.Error("failed to record participant presence", "error", err, "channel_id", channelID, "user_id", event.UserID)
	}
}

func (c *Coordinator) handleBotRemoved(channelID string) {
	if _, err := c.EndSession(channelID, ReasonBotRemoved); err != nil && !errors.Is(err, ErrNoActiveSession) {
		slog.Error("failed to end session after bot removal", "error", err, "channel_id", channelID)
	}
}

// HandleConnectionLost is invoked by the supervisor once recovery windows
// are exhausted and the connection is destroyed.
func (c *Coordinator) HandleConnectionLost(channelID string) {
	c.enqueue(channelID, func() {
		if _, err := c.EndSession(channelID, ReasonConnectionLost); err != nil && !errors.Is(err, ErrNoActiveSession) {
			slog.Error("failed to end session after connection loss", "error", err, "channel_id", channelID)
		}
	})
}

func (c *Coordinator) StartSession(ctx context.Context, guildID, channelID string) (string, error) {
	c.mu.Lock()
	if _, exists := c.sessions[channelID]; exists {
		c.mu.Unlock()
		return "", ErrSessionAlreadyActive
	}
	as := &activeSession{participants: make(map[string]*Participant)}
	c.sessions[channelID] = as
	c.mu.Unlock()

	if err := c.closeOrphanSession(ctx, guildID, channelID); err != nil {
		c.removeSession(channelID)
		return "", err
	}

	sessionID := uuid.NewString()
	created, err := c.repo.CreateSession(ctx, repository.CreateSessionInput{
		SessionID: sessionID,
		GuildID:   guildID,
		ChannelID: channelID,
		StartedAt: time.Now(),
	})
	if err != nil {
		c.removeSession(channelID)
		return "", fmt.Errorf("create session: %w", err)
	}

	c.mu.Lock()
	as.session = &Session{
		ID:        created.ID,
		GuildID:   guildID,
		ChannelID: channelID,
		StartedAt: created.StartedAt,
		Status:    StatusActive,
	}
	as.mux = capture.NewMultiplexer(created.ID, c.newSink, c.met)
	as.maxTimer = time.AfterFunc(c.cfg.MaxSessionDuration(), func() {
		if _, err := c.EndSession(channelID, ReasonMaxDuration); err != nil && !errors.Is(err, ErrNoActiveSession) {
			slog.Error("failed to end session at max duration", "error", err, "channel_id", channelID)
		}
	})
	c.mu.Unlock()

	if c.met != nil {
		c.met.SessionsStarted.Inc()
		c.met.ActiveSessions.Inc()
	}
	slog.Info("session started", "session_id", created.ID, "guild_id", guildID, "channel_id", channelID)

	if err := c.dc.SendChannelMessage(channelID, messageStartChannelTitle+"\n"+messageStartChannelHint); err != nil {
		slog.Warn("failed to send session start notice", "error", err, "channel_id", channelID)
	}
	c.seedParticipants(guildID, channelID)
	return created.ID, nil
}

// closeOrphanSession completes a session left running in the repository by
// an earlier crash so the new session does not violate the one-per-channel
// invariant in persisted state.
func (c *Coordinator) closeOrphanSession(ctx context.Context, guildID, channelID string) error {
	orphan, err := c.repo.GetRunningSessionByChannel(ctx, guildID, channelID)
	if err != nil {
		return fmt.Errorf("query running session: %w", err)
	}
	if orphan == nil {
		return nil
	}
	slog.Warn("found orphan running session; closing before start", "session_id", orphan.ID, "guild_id", guildID, "channel_id", channelID)
	if err := c.repo.CompleteSession(ctx, repository.CompleteSessionInput{
		SessionID:  orphan.ID,
		EndedAt:    time.Now(),
		StopReason: ReasonShutdown,
	}); err != nil {
		return fmt.Errorf("complete orphan session: %w", err)
	}
	return nil
}

func (c *Coordinator) seedParticipants(guildID, channelID string) {
	present, err := c.dc.ListVoiceChannelParticipants(guildID, channelID)
	if err != nil {
		slog.Warn("failed to list current channel participants", "error", err, "channel_id", channelID)
		return
	}
	for _, p := range present {
		if p.UserID == c.botUserID {
			continue
		}
		if p.IsBot && !c.cfg.DiscordCountOtherBots {
			continue
		}
		if err := c.NotifyParticipantPresent(channelID, p); err != nil {
			slog.Error("failed to seed participant", "error", err, "channel_id", channelID, "user_id", p.UserID)
		}
	}
}

// NotifyParticipantPresent adds a participant and opens their capture.
// Idempotent: a user already present produces no duplicate record.
func (c *Coordinator) NotifyParticipantPresent(channelID string, user discord.VoiceParticipant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	as, ok := c.sessions[channelID]
	if !ok || as.session == nil {
		return ErrNoActiveSession
	}
	if as.graceTimer != nil {
		as.graceTimer.Stop()
		as.graceTimer = nil
		slog.Info("pending session end cancelled by rejoin", "session_id", as.session.ID, "channel_id", channelID)
	}
	if _, present := as.participants[user.UserID]; present {
		return nil
	}
	as.participants[user.UserID] = &Participant{
		UserID:   user.UserID,
		IsBot:    user.IsBot,
		JoinedAt: time.Now(),
	}
	if err := as.mux.Open(user.UserID); err != nil && !errors.Is(err, capture.ErrCaptureAlreadyOpen) {
		slog.Error("failed to open capture", "error", err, "session_id", as.session.ID, "user_id", user.UserID)
	}
	slog.Info("participant present", "session_id", as.session.ID, "channel_id", channelID, "user_id", user.UserID, "participants", len(as.participants))
	return nil
}

// NotifyParticipantAbsent closes the participant's presence and capture.
// A stale event for a channel without a session is discarded.
func (c *Coordinator) NotifyParticipantAbsent(channelID, userID string) error {
	c.mu.Lock()
	as, ok := c.sessions[channelID]
	if !ok || as.session == nil {
		c.mu.Unlock()
		return nil
	}
	p, present := as.participants[userID]
	if !present {
		c.mu.Unlock()
		return nil
	}
	delete(as.participants, userID)
	p.LeftAt = time.Now()
	as.departed = append(as.departed, *p)
	if done, err := as.mux.Close(userID); err == nil {
		as.pendingDone = append(as.pendingDone, done)
	} else if !errors.Is(err, capture.ErrCaptureNotOpen) {
		slog.Error("failed to close capture", "error", err, "session_id", as.session.ID, "user_id", userID)
	}
	sessionID := as.session.ID
	remaining := c.countHumanParticipantsLocked(as)
	if remaining == 0 && as.graceTimer == nil {
		grace := c.cfg.EmptyChannelGrace()
		as.graceTimer = time.AfterFunc(grace, func() { c.endIfStillEmpty(channelID) })
		slog.Info("channel empty; scheduling session end", "session_id", sessionID, "channel_id", channelID, "grace", grace)
	}
	c.mu.Unlock()

	slog.Info("participant absent", "session_id", sessionID, "channel_id", channelID, "user_id", userID, "presence", p.Duration())
	return nil
}

func (c *Coordinator) countHumanParticipantsLocked(as *activeSession) int {
	n := 0
	for _, p := range as.participants {
		if !p.IsBot {
			n++
		}
	}
	return n
}

func (c *Coordinator) endIfStillEmpty(channelID string) {
	c.mu.Lock()
	as, ok := c.sessions[channelID]
	empty := ok && as.session != nil && c.countHumanParticipantsLocked(as) == 0
	c.mu.Unlock()
	if !empty {
		return
	}
	if _, err := c.EndSession(channelID, ReasonParticipantsLeft); err != nil && !errors.Is(err, ErrNoActiveSession) {
		slog.Error("failed to auto-end empty session", "error", err, "channel_id", channelID)
	}
}

// EndSession moves the session to Ending, closes every open participant and
// capture, and hands the barrier to the finalizer. The returned session ID
// refers to a session that will reach Closed asynchronously.
func (c *Coordinator) EndSession(channelID, reason string) (string, error) {
	c.mu.Lock()
	as, ok := c.sessions[channelID]
	if !ok || as.session == nil {
		c.mu.Unlock()
		return "", ErrNoActiveSession
	}
	delete(c.sessions, channelID)
	if as.graceTimer != nil {
		as.graceTimer.Stop()
	}
	if as.maxTimer != nil {
		as.maxTimer.Stop()
	}

	now := time.Now()
	as.session.Status = StatusEnding
	as.session.EndedAt = now
	as.session.StopReason = reason
	for userID, p := range as.participants {
		p.LeftAt = now
		as.departed = append(as.departed, *p)
		delete(as.participants, userID)
	}
	results := append(as.pendingDone, as.mux.CloseAll()...)
	sess := *as.session
	participants := as.departed
	c.mu.Unlock()

	if c.met != nil {
		c.met.ActiveSessions.Dec()
	}
	slog.Info("session ending", "session_id", sess.ID, "channel_id", channelID, "reason", reason, "pending_captures", len(results))

	if err := c.transport.Leave(channelID); err != nil && !errors.Is(err, ErrNotConnected) {
		slog.Warn("failed to leave voice channel", "error", err, "channel_id", channelID)
	}

	c.finalizeWG.Add(1)
	go func() {
		defer c.finalizeWG.Done()
		c.finalizer.Finalize(sess, participants, results)
	}()
	return sess.ID, nil
}

// FeedAudio routes one raw audio chunk to the speaking user's capture.
// Chunks for users without an open capture are dropped.
func (c *Coordinator) FeedAudio(channelID, userID string, chunk []byte) {
	c.mu.Lock()
	as, ok := c.sessions[channelID]
	var mux *capture.Multiplexer
	if ok && as.mux != nil {
		mux = as.mux
	}
	c.mu.Unlock()
	if mux == nil {
		return
	}
	if err := mux.Feed(userID, chunk); err != nil && !errors.Is(err, capture.ErrCaptureNotOpen) {
		slog.Warn("failed to feed audio chunk", "error", err, "channel_id", channelID, "user_id", userID)
	}
}

func (c *Coordinator) IsChannelActive(channelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	as, ok := c.sessions[channelID]
	return ok && as.session != nil
}

func (c *Coordinator) ListActiveSessions() []Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	summaries := make([]Summary, 0, len(c.sessions))
	for _, as := range c.sessions {
		if as.session == nil {
			continue
		}
		summaries = append(summaries, Summary{
			SessionID:        as.session.ID,
			GuildID:          as.session.GuildID,
			ChannelID:        as.session.ChannelID,
			StartedAt:        as.session.StartedAt,
			ParticipantCount: len(as.participants),
		})
	}
	return summaries
}

// Shutdown ends every active session and waits for finalization to finish.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	channels := make([]string, 0, len(c.sessions))
	for channelID := range c.sessions {
		channels = append(channels, channelID)
	}
	c.mu.Unlock()

	for _, channelID := range channels {
		if _, err := c.EndSession(channelID, ReasonShutdown); err != nil && !errors.Is(err, ErrNoActiveSession) {
			slog.Error("failed to end session on shutdown", "error", err, "channel_id", channelID)
		}
	}
	c.finalizeWG.Wait()
}

func (c *Coordinator) removeSession(channelID string) {
	c.mu.Lock()
	delete(c.sessions, channelID)
	c.mu.Unlock()
}
