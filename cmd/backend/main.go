package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	captureimpl "github.com/hibikilab/kikitori/external/capture"
	configloader "github.com/hibikilab/kikitori/external/config"
	"github.com/hibikilab/kikitori/external/discord"
	"github.com/hibikilab/kikitori/external/ops"
	repositoryimpl "github.com/hibikilab/kikitori/external/repository"
	transcriberimpl "github.com/hibikilab/kikitori/external/transcriber"
	webhookimpl "github.com/hibikilab/kikitori/external/webhook"
	"github.com/hibikilab/kikitori/internal/config"
	discordpkg "github.com/hibikilab/kikitori/internal/discord"
	"github.com/hibikilab/kikitori/internal/metrics"
	"github.com/hibikilab/kikitori/internal/session"
	"github.com/samber/do/v2"
)

const (
	discordConnectTimeout = 20 * time.Second
	opsShutdownTimeout    = 5 * time.Second
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching discord bot")
	runBot(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	metrics.RegisterDI(injector)
	repositoryimpl.RegisterDI(injector)
	captureimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	session.RegisterDI(injector)
	ops.RegisterDI(injector)

	return injector
}

func runBot(cfg *config.Config, injector do.Injector) {
	dc, err := do.Invoke[discordpkg.Client](injector)
	if err != nil {
		slog.Error("failed to resolve discord client", "error", err)
		os.Exit(1)
	}
	coordinator, err := do.Invoke[*session.Coordinator](injector)
	if err != nil {
		slog.Error("failed to resolve session coordinator", "error", err)
		os.Exit(1)
	}
	opsServer, err := do.Invoke[*ops.Server](injector)
	if err != nil {
		slog.Error("failed to resolve ops server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), discordConnectTimeout)
	defer cancel()

	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(ctx); err != nil {
		slog.Error("discord connect failed", "error", err)
		os.Exit(1)
	}
	slog.Info("startup: discord connected")

	botUserID, err := dc.GetBotUserID()
	if err != nil {
		slog.Error("failed to resolve bot user id", "error", err)
		os.Exit(1)
	}
	coordinator.SetBotUserID(botUserID)

	dc.RegisterVoiceStateUpdateHandler(coordinator.HandleVoiceStateUpdate)
	slog.Info("discord handlers registered", "guild_id", cfg.DiscordGuildID)

	opsServer.Start()

	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		slog.Info("startup: entering discord run loop")
		if err := dc.Run(); err != nil {
			slog.Error("discord run failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
	}

	coordinator.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), opsShutdownTimeout)
	defer shutdownCancel()
	if err := opsServer.Stop(shutdownCtx); err != nil {
		slog.Error("ops server shutdown failed", "error", err)
	}
}
