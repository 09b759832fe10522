package session

import (
	"github.com/hibikilab/kikitori/internal/capture"
	"github.com/hibikilab/kikitori/internal/config"
	"github.com/hibikilab/kikitori/internal/discord"
	"github.com/hibikilab/kikitori/internal/metrics"
	"github.com/hibikilab/kikitori/internal/repository"
	"github.com/hibikilab/kikitori/internal/transcriber"
	"github.com/hibikilab/kikitori/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Dispatcher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		stt := do.MustInvoke[transcriber.Transcriber](i)
		met := do.MustInvoke[*metrics.Metrics](i)
		return NewDispatcher(stt, cfg.DefaultTranscribeLanguage, cfg.TranscribeTimeout(), cfg.MinCaptureDuration(), cfg.MaxTranscribePayloadBytes(), met), nil
	})
	do.Provide(injector, func(i do.Injector) (*Finalizer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		wh := do.MustInvoke[webhook.Sender](i)
		dc := do.MustInvoke[discord.Client](i)
		dispatcher := do.MustInvoke[*Dispatcher](i)
		met := do.MustInvoke[*metrics.Metrics](i)
		return NewFinalizer(repo, wh, dc, dispatcher, cfg.FinalizeCeiling(), met), nil
	})
	do.Provide(injector, func(i do.Injector) (*Supervisor, error) {
		cfg := do.MustInvoke[*config.Config](i)
		dc := do.MustInvoke[discord.Client](i)
		met := do.MustInvoke[*metrics.Metrics](i)
		return NewSupervisor(dc, cfg.VoiceConnectTimeout(), cfg.RenegotiateWindow(), cfg.ReconnectWindow(), met), nil
	})
	do.Provide(injector, func(i do.Injector) (*Coordinator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		dc := do.MustInvoke[discord.Client](i)
		newSink := do.MustInvoke[capture.SinkFactory](i)
		finalizer := do.MustInvoke[*Finalizer](i)
		met := do.MustInvoke[*metrics.Metrics](i)
		supervisor := do.MustInvoke[*Supervisor](i)

		coordinator := NewCoordinator(cfg, repo, dc, newSink, finalizer, met)
		coordinator.SetTransport(supervisor)
		supervisor.SetHandlers(coordinator.FeedAudio, coordinator.HandleConnectionLost)
		return coordinator, nil
	})
}
