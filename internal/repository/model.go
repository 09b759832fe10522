package repository

import "time"

type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
)

type Session struct {
	ID         string
	GuildID    string
	ChannelID  string
	StartedAt  time.Time
	EndedAt    *time.Time
	Status     SessionStatus
	StopReason string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Participant struct {
	SessionID       string
	UserID          string
	DisplayName     string
	IsBot           bool
	JoinedAt        time.Time
	LeftAt          time.Time
	DurationSeconds int64
}

type Transcript struct {
	ID           string
	SessionID    string
	UserID       string
	Text         string
	WordCount    int
	Confidence   float64
	Language     string
	ProcessingMs int64
	ErrorMarker  string
	CreatedAt    time.Time
}
