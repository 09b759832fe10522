package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hibikilab/kikitori/internal/capture"
	"github.com/hibikilab/kikitori/internal/discord"
	"github.com/hibikilab/kikitori/internal/metrics"
	"github.com/hibikilab/kikitori/internal/repository"
	"github.com/hibikilab/kikitori/internal/webhook"
)

// Finalizer drives an ending session to Closed: it waits for every capture
// to reach a terminal state, dispatches the finalized ones, and emits the
// completed-session record exactly once to the repository and webhook
// collaborators.
type Finalizer struct {
	repo       repository.Repository
	wh         webhook.Sender
	dc         discord.Client
	dispatcher *Dispatcher
	ceiling    time.Duration
	met        *metrics.Metrics
}

func NewFinalizer(repo repository.Repository, wh webhook.Sender, dc discord.Client, dispatcher *Dispatcher, ceiling time.Duration, met *metrics.Metrics) *Finalizer {
	return &Finalizer{
		repo:       repo,
		wh:         wh,
		dc:         dc,
		dispatcher: dispatcher,
		ceiling:    ceiling,
		met:        met,
	}
}

func (f *Finalizer) Finalize(sess Session, participants []Participant, results []<-chan capture.Result) CompletedSession {
	slog.Info("finalizing session", "session_id", sess.ID, "channel_id", sess.ChannelID, "reason", sess.StopReason, "pending_captures", len(results))

	terminal := f.awaitCaptures(sess.ID, results)
	transcripts := f.dispatchAll(terminal)

	sess.Status = StatusClosed
	completed := CompletedSession{
		Session:      sess,
		Participants: f.resolveDisplayNames(sess.GuildID, participants),
		Transcripts:  transcripts,
	}
	f.emit(completed)
	if f.met != nil {
		f.met.SessionsCompleted.Inc()
		f.met.SessionDuration.Observe(sess.EndedAt.Sub(sess.StartedAt).Seconds())
	}
	slog.Info("session closed", "session_id", sess.ID, "participants", len(completed.Participants), "transcripts", len(completed.Transcripts))
	return completed
}

// awaitCaptures is the barrier over every capture open at end time. It
// returns once all are terminal or the ceiling elapses; stragglers past the
// ceiling are abandoned so a stuck conversion cannot hang the session.
func (f *Finalizer) awaitCaptures(sessionID string, results []<-chan capture.Result) []capture.Result {
	deadline := time.NewTimer(f.ceiling)
	defer deadline.Stop()

	terminal := make([]capture.Result, 0, len(results))
	expired := false
	for _, ch := range results {
		if expired {
			select {
			case res := <-ch:
				terminal = append(terminal, res)
			default:
			}
			continue
		}
		select {
		case res := <-ch:
			terminal = append(terminal, res)
		case <-deadline.C:
			expired = true
			select {
			case res := <-ch:
				terminal = append(terminal, res)
			default:
			}
		}
	}
	if abandoned := len(results) - len(terminal); abandoned > 0 {
		slog.Error("finalize ceiling reached; abandoning stuck captures", "session_id", sessionID, "abandoned", abandoned, "ceiling", f.ceiling)
	}
	return terminal
}

func (f *Finalizer) dispatchAll(terminal []capture.Result) []Transcript {
	type slot struct {
		transcript Transcript
		ok         bool
	}
	slots := make([]slot, len(terminal))
	var wg sync.WaitGroup
	for i, res := range terminal {
		if res.Status != capture.StatusFinalized {
			if f.met != nil {
				f.met.CapturesFailed.Inc()
			}
			slog.Warn("capture excluded from transcription", "session_id", res.SessionID, "user_id", res.UserID, "status", res.Status, "error", res.Err)
			continue
		}
		if f.met != nil {
			f.met.CaptureDuration.Observe(res.EndedAt.Sub(res.StartedAt).Seconds())
		}
		wg.Add(1)
		go func(i int, res capture.Result) {
			defer wg.Done()
			slots[i] = slot{transcript: f.dispatcher.Dispatch(context.Background(), res), ok: true}
		}(i, res)
	}
	wg.Wait()

	transcripts := make([]Transcript, 0, len(terminal))
	for _, s := range slots {
		if s.ok {
			transcripts = append(transcripts, s.transcript)
		}
	}
	return transcripts
}

func (f *Finalizer) resolveDisplayNames(guildID string, participants []Participant) []Participant {
	userIDs := make([]string, 0, len(participants))
	for _, p := range participants {
		userIDs = append(userIDs, p.UserID)
	}
	profiles, err := f.dc.ResolveParticipantProfiles(context.Background(), guildID, userIDs)
	if err != nil {
		slog.Warn("failed to resolve participant profiles; using user ids", "error", err, "guild_id", guildID)
		for i := range participants {
			if participants[i].DisplayName == "" {
				participants[i].DisplayName = participants[i].UserID
			}
		}
		return participants
	}
	byID := make(map[string]discord.ParticipantProfile, len(profiles))
	for _, prof := range profiles {
		byID[prof.UserID] = prof
	}
	for i := range participants {
		if prof, ok := byID[participants[i].UserID]; ok && prof.DisplayName != "" {
			participants[i].DisplayName = prof.DisplayName
		} else if participants[i].DisplayName == "" {
			participants[i].DisplayName = participants[i].UserID
		}
	}
	return participants
}

func (f *Finalizer) emit(completed CompletedSession) {
	ctx := context.Background()
	sess := completed.Session

	if err := f.repo.CompleteSession(ctx, repository.CompleteSessionInput{
		SessionID:  sess.ID,
		EndedAt:    sess.EndedAt,
		StopReason: sess.StopReason,
	}); err != nil {
		slog.Error("failed to complete session in repository", "error", err, "session_id", sess.ID)
	}

	record := repository.SaveSessionRecordInput{SessionID: sess.ID}
	for _, p := range completed.Participants {
		record.Participants = append(record.Participants, repository.ParticipantInput{
			UserID:          p.UserID,
			DisplayName:     p.DisplayName,
			IsBot:           p.IsBot,
			JoinedAt:        p.JoinedAt,
			LeftAt:          p.LeftAt,
			DurationSeconds: int64(p.Duration().Seconds()),
		})
	}
	for _, t := range completed.Transcripts {
		record.Transcripts = append(record.Transcripts, repository.TranscriptInput{
			UserID:       t.UserID,
			Text:         t.Text,
			WordCount:    t.WordCount,
			Confidence:   t.Confidence,
			Language:     t.Language,
			ProcessingMs: t.ProcessingDuration.Milliseconds(),
			ErrorMarker:  t.Error,
		})
	}
	if err := f.repo.SaveSessionRecord(ctx, record); err != nil {
		slog.Error("failed to save session record", "error", err, "session_id", sess.ID)
	}

	if err := f.wh.SendCompletedSession(ctx, toWebhookPayload(completed)); err != nil {
		slog.Error("failed to send completed-session webhook", "error", err, "session_id", sess.ID)
	}

	if err := f.dc.SendChannelMessage(sess.ChannelID, stopChannelTitle(sess.StopReason)); err != nil {
		slog.Warn("failed to send session end notice", "error", err, "channel_id", sess.ChannelID)
	}
}

func toWebhookPayload(completed CompletedSession) webhook.CompletedSessionPayload {
	sess := completed.Session
	payload := webhook.CompletedSessionPayload{
		SessionID:  sess.ID,
		GuildID:    sess.GuildID,
		ChannelID:  sess.ChannelID,
		StartedAt:  sess.StartedAt,
		EndedAt:    sess.EndedAt,
		StopReason: sess.StopReason,
	}
	for _, p := range completed.Participants {
		payload.Participants = append(payload.Participants, webhook.ParticipantPayload{
			UserID:          p.UserID,
			DisplayName:     p.DisplayName,
			JoinedAt:        p.JoinedAt,
			LeftAt:          p.LeftAt,
			DurationSeconds: int64(p.Duration().Seconds()),
		})
	}
	for _, t := range completed.Transcripts {
		payload.Transcripts = append(payload.Transcripts, webhook.TranscriptPayload{
			UserID:     t.UserID,
			Text:       t.Text,
			WordCount:  t.WordCount,
			Confidence: t.Confidence,
			Language:   t.Language,
			Error:      t.Error,
		})
	}
	return payload
}
