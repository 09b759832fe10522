package repository

import (
	"context"
	"time"
)

type CreateSessionInput struct {
	SessionID string
	GuildID   string
	ChannelID string
	StartedAt time.Time
}

type CompleteSessionInput struct {
	SessionID  string
	EndedAt    time.Time
	StopReason string
}

type ParticipantInput struct {
	UserID          string
	DisplayName     string
	IsBot           bool
	JoinedAt        time.Time
	LeftAt          time.Time
	DurationSeconds int64
}

type TranscriptInput struct {
	UserID       string
	Text         string
	WordCount    int
	Confidence   float64
	Language     string
	ProcessingMs int64
	ErrorMarker  string
}

type SaveSessionRecordInput struct {
	SessionID    string
	Participants []ParticipantInput
	Transcripts  []TranscriptInput
}

type Repository interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error)
	CompleteSession(ctx context.Context, input CompleteSessionInput) error
	GetRunningSessionByChannel(ctx context.Context, guildID, channelID string) (*Session, error)
	SaveSessionRecord(ctx context.Context, input SaveSessionRecordInput) error
}
