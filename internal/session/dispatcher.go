package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/hibikilab/kikitori/internal/capture"
	"github.com/hibikilab/kikitori/internal/metrics"
	"github.com/hibikilab/kikitori/internal/transcriber"
)

const (
	transcriptErrorTooLarge = "payload too large"
	transcriptErrorTimeout  = "transcription timed out"
	transcriptErrorBackend  = "transcription failed"
)

// Dispatcher hands one finalized capture to the transcription backend and
// normalizes the outcome into a Transcript. Backend failures never surface
// as errors; they become error-marked Transcripts. The dispatcher owns the
// converted asset and removes it once dispatch resolves.
type Dispatcher struct {
	stt             transcriber.Transcriber
	language        string
	timeout         time.Duration
	minDuration     time.Duration
	maxPayloadBytes int64
	met             *metrics.Metrics
}

func NewDispatcher(stt transcriber.Transcriber, language string, timeout, minDuration time.Duration, maxPayloadBytes int64, met *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		stt:             stt,
		language:        language,
		timeout:         timeout,
		minDuration:     minDuration,
		maxPayloadBytes: maxPayloadBytes,
		met:             met,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, res capture.Result) Transcript {
	asset := res.Asset
	defer d.cleanupAsset(asset)

	if asset.Path == "" || asset.Bytes == 0 || asset.Duration < d.minDuration {
		slog.Info("capture below minimum duration; skipping backend", "session_id", res.SessionID, "user_id", res.UserID, "duration", asset.Duration)
		return Transcript{UserID: res.UserID, Language: d.language}
	}
	if asset.Bytes > d.maxPayloadBytes {
		slog.Warn("capture asset exceeds backend payload ceiling", "session_id", res.SessionID, "user_id", res.UserID, "asset_bytes", asset.Bytes, "ceiling_bytes", d.maxPayloadBytes)
		return Transcript{UserID: res.UserID, Language: d.language, Error: transcriptErrorTooLarge}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if d.met != nil {
		d.met.TranscriptionRequests.Inc()
	}
	started := time.Now()
	result, err := d.stt.Transcribe(ctx, asset.Path, d.language)
	took := time.Since(started)
	if d.met != nil {
		d.met.TranscriptionDuration.Observe(took.Seconds())
	}
	if err != nil {
		if d.met != nil {
			d.met.TranscriptionFailures.Inc()
		}
		marker := transcriptErrorBackend
		if errors.Is(err, context.DeadlineExceeded) {
			marker = transcriptErrorTimeout
		}
		slog.Error("transcription backend failed", "error", err, "session_id", res.SessionID, "user_id", res.UserID)
		return Transcript{UserID: res.UserID, Language: d.language, ProcessingDuration: took, Error: marker}
	}

	t := Transcript{
		UserID:             res.UserID,
		Text:               result.Text,
		WordCount:          result.WordCount,
		Confidence:         result.Confidence,
		Language:           result.Language,
		ProcessingDuration: took,
	}
	if t.Confidence == 0 {
		t.Confidence = estimateConfidence(t.WordCount)
		t.ConfidenceEstimated = true
	}
	return t
}

func (d *Dispatcher) cleanupAsset(asset capture.Asset) {
	if asset.Path == "" {
		return
	}
	if err := os.Remove(asset.Path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove dispatched asset", "error", err, "asset_path", asset.Path)
	}
}

// estimateConfidence maps output length to fixed confidence bands. This is a
// heuristic used only when the backend reports no confidence of its own;
// Transcript.ConfidenceEstimated marks the substitution.
func estimateConfidence(wordCount int) float64 {
	switch {
	case wordCount == 0:
		return 0
	case wordCount < 5:
		return 0.3
	case wordCount < 20:
		return 0.5
	case wordCount < 50:
		return 0.7
	default:
		return 0.85
	}
}
