package capture

import (
	"github.com/hibikilab/kikitori/internal/capture"
	"github.com/hibikilab/kikitori/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (capture.SinkFactory, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return func(sessionID, userID string) (capture.Sink, error) {
			return NewFileSink(cfg.CaptureDir, sessionID, userID)
		}, nil
	})
}
