package capture

import (
	"errors"
	"time"
)

type Status string

const (
	StatusRecording  Status = "recording"
	StatusStopping   Status = "stopping"
	StatusConverting Status = "converting"
	StatusFinalized  Status = "finalized"
	StatusFailed     Status = "failed"
)

var (
	ErrCaptureAlreadyOpen = errors.New("capture is already open for this user")
	ErrCaptureNotOpen     = errors.New("no open capture for this user")
	ErrConversionFailed   = errors.New("capture conversion failed")
	ErrMultiplexerClosed  = errors.New("capture multiplexer is closed")
)

// Asset is the converted, transcription-ready artifact of one capture.
type Asset struct {
	Path     string
	Bytes    int64
	Duration time.Duration
}

// Result is the terminal outcome of one capture. Err is non-nil exactly
// when Status is StatusFailed.
type Result struct {
	SessionID string
	UserID    string
	StartedAt time.Time
	EndedAt   time.Time
	Status    Status
	Asset     Asset
	Err       error
}

// Sink receives one participant's raw audio chunks in arrival order and
// converts them into an Asset on finalize. Implementations are used from a
// single goroutine at a time.
type Sink interface {
	Write(chunk []byte) error
	Finalize() (Asset, error)
}

type SinkFactory func(sessionID, userID string) (Sink, error)
