package ops

import (
	"github.com/hibikilab/kikitori/internal/config"
	"github.com/hibikilab/kikitori/internal/session"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		coordinator := do.MustInvoke[*session.Coordinator](i)
		return NewServer(cfg.OpsListenAddr, coordinator), nil
	})
}
