package transcriber

import (
	"context"
	"time"
)

// Result is one backend recognition outcome. Confidence is 0 when the
// backend did not report one; callers may substitute an estimate.
type Result struct {
	Text       string
	WordCount  int
	Confidence float64
	Language   string
	Duration   time.Duration
}

type Transcriber interface {
	Transcribe(ctx context.Context, assetPath, language string) (Result, error)
}
