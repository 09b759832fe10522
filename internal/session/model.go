package session

import (
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnding Status = "ending"
	StatusClosed Status = "closed"
)

const (
	ReasonParticipantsLeft = "participants_left"
	ReasonConnectionLost   = "connection_lost"
	ReasonMaxDuration      = "max_duration"
	ReasonShutdown         = "shutdown"
)

type Session struct {
	ID         string
	GuildID    string
	ChannelID  string
	StartedAt  time.Time
	EndedAt    time.Time
	Status     Status
	StopReason string
}

// Participant is one user's presence interval within a session. A user who
// leaves and rejoins gets a fresh record with a new join time.
type Participant struct {
	UserID      string
	DisplayName string
	IsBot       bool
	JoinedAt    time.Time
	LeftAt      time.Time
}

func (p Participant) Duration() time.Duration {
	if p.LeftAt.IsZero() {
		return 0
	}
	return p.LeftAt.Sub(p.JoinedAt)
}

// Transcript is the immutable text result (or error marker) for one
// finalized capture. ConfidenceEstimated is true when Confidence was derived
// from output length rather than reported by the backend.
type Transcript struct {
	UserID              string
	Text                string
	WordCount           int
	Confidence          float64
	ConfidenceEstimated bool
	Language            string
	ProcessingDuration  time.Duration
	Error               string
}

type CompletedSession struct {
	Session      Session
	Participants []Participant
	Transcripts  []Transcript
}

type Summary struct {
	SessionID        string
	GuildID          string
	ChannelID        string
	StartedAt        time.Time
	ParticipantCount int
}
