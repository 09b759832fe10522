package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/hibikilab/kikitori/internal/config"
)

type envConfig struct {
	Env                        string `env:"ENV" envDefault:"production"`
	DiscordToken               string `env:"DISCORD_TOKEN,required"`
	DiscordGuildID             string `env:"DISCORD_GUILD_ID,required"`
	DiscordCountOtherBots      bool   `env:"DISCORD_COUNT_OTHER_BOTS_AS_PARTICIPANTS" envDefault:"false"`
	CaptureDir                 string `env:"CAPTURE_DIR" envDefault:"/var/lib/kikitori/captures"`
	DefaultTranscribeLanguage  string `env:"DEFAULT_TRANSCRIBE_LANGUAGE,required"`
	DatabaseURL                string `env:"DATABASE_URL,required"`
	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID,required"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON,required"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"asia-northeast1"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"chirp_3"`
	CompletedSessionWebhookURL string `env:"COMPLETED_SESSION_WEBHOOK_URL"`
	OpsListenAddr              string `env:"OPS_LISTEN_ADDR" envDefault:":8080"`
	MaxSessionDurationMin      int    `env:"MAX_SESSION_DURATION_MIN" envDefault:"120"`
	EmptyChannelGraceSec       int    `env:"EMPTY_CHANNEL_GRACE_SEC" envDefault:"5"`
	VoiceConnectTimeoutSec     int    `env:"VOICE_CONNECT_TIMEOUT_SEC" envDefault:"20"`
	RenegotiateWindowSec       int    `env:"RENEGOTIATE_WINDOW_SEC" envDefault:"5"`
	ReconnectWindowSec         int    `env:"RECONNECT_WINDOW_SEC" envDefault:"20"`
	FinalizeCeilingSec         int    `env:"FINALIZE_CEILING_SEC" envDefault:"60"`
	TranscribeTimeoutSec       int    `env:"TRANSCRIBE_TIMEOUT_SEC" envDefault:"120"`
	MinCaptureDurationMs       int    `env:"MIN_CAPTURE_DURATION_MS" envDefault:"500"`
	MaxTranscribePayloadMB     int    `env:"MAX_TRANSCRIBE_PAYLOAD_MB" envDefault:"10"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		DiscordToken:               raw.DiscordToken,
		DiscordGuildID:             raw.DiscordGuildID,
		DiscordCountOtherBots:      raw.DiscordCountOtherBots,
		CaptureDir:                 raw.CaptureDir,
		DefaultTranscribeLanguage:  raw.DefaultTranscribeLanguage,
		DatabaseURL:                raw.DatabaseURL,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		CompletedSessionWebhookURL: raw.CompletedSessionWebhookURL,
		OpsListenAddr:              raw.OpsListenAddr,
		MaxSessionDurationMin:      raw.MaxSessionDurationMin,
		EmptyChannelGraceSec:       raw.EmptyChannelGraceSec,
		VoiceConnectTimeoutSec:     raw.VoiceConnectTimeoutSec,
		RenegotiateWindowSec:       raw.RenegotiateWindowSec,
		ReconnectWindowSec:         raw.ReconnectWindowSec,
		FinalizeCeilingSec:         raw.FinalizeCeilingSec,
		TranscribeTimeoutSec:       raw.TranscribeTimeoutSec,
		MinCaptureDurationMs:       raw.MinCaptureDurationMs,
		MaxTranscribePayloadMB:     raw.MaxTranscribePayloadMB,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
