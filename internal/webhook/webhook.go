package webhook

import (
	"context"
	"time"
)

type ParticipantPayload struct {
	UserID          string    `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	JoinedAt        time.Time `json:"joined_at"`
	LeftAt          time.Time `json:"left_at"`
	DurationSeconds int64     `json:"duration_seconds"`
}

type TranscriptPayload struct {
	UserID     string  `json:"user_id"`
	Text       string  `json:"text"`
	WordCount  int     `json:"word_count"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
	Error      string  `json:"error,omitempty"`
}

type CompletedSessionPayload struct {
	SessionID    string               `json:"session_id"`
	GuildID      string               `json:"guild_id"`
	ChannelID    string               `json:"channel_id"`
	StartedAt    time.Time            `json:"started_at"`
	EndedAt      time.Time            `json:"ended_at"`
	StopReason   string               `json:"stop_reason"`
	Participants []ParticipantPayload `json:"participants"`
	Transcripts  []TranscriptPayload  `json:"transcripts"`
}

type Sender interface {
	SendCompletedSession(ctx context.Context, payload CompletedSessionPayload) error
}
