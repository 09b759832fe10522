package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the recording pipeline.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	ActiveSessions    prometheus.Gauge
	SessionDuration   prometheus.Histogram

	CapturesOpened  prometheus.Counter
	CapturesClosed  prometheus.Counter
	CapturesFailed  prometheus.Counter
	ChunksFed       prometheus.Counter
	ChunksDropped   prometheus.Counter
	CaptureDuration prometheus.Histogram

	TranscriptionRequests prometheus.Counter
	TranscriptionFailures prometheus.Counter
	TranscriptionDuration prometheus.Histogram

	VoiceReconnects prometheus.Counter
	VoiceDestroys   prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer lets tests use an isolated registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "kikitori_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "kikitori_sessions_completed_total",
			Help: "Total number of recording sessions completed",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kikitori_active_sessions",
			Help: "Number of currently active recording sessions",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kikitori_session_duration_seconds",
			Help:    "Duration of completed recording sessions",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}),
		CapturesOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "kikitori_captures_opened_total",
			Help: "Total number of per-participant captures opened",
		}),
		CapturesClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "kikitori_captures_closed_total",
			Help: "Total number of per-participant captures closed",
		}),
		CapturesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "kikitori_captures_failed_total",
			Help: "Total number of captures whose conversion failed",
		}),
		ChunksFed: factory.NewCounter(prometheus.CounterOpts{
			Name: "kikitori_audio_chunks_fed_total",
			Help: "Total number of audio chunks accepted into capture sinks",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "kikitori_audio_chunks_dropped_total",
			Help: "Total number of audio chunks dropped due to backpressure",
		}),
		CaptureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kikitori_capture_duration_seconds",
			Help:    "Duration of finished captures",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "kikitori_transcription_requests_total",
			Help: "Total number of transcription backend requests",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "kikitori_transcription_failures_total",
			Help: "Total number of transcription requests that failed",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kikitori_transcription_duration_seconds",
			Help:    "Wall time of transcription backend requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		VoiceReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "kikitori_voice_reconnects_total",
			Help: "Total number of voice connections recovered after a drop",
		}),
		VoiceDestroys: factory.NewCounter(prometheus.CounterOpts{
			Name: "kikitori_voice_destroys_total",
			Help: "Total number of voice connections destroyed after recovery failed",
		}),
	}
}
