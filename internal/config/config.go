package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env                        string
	DiscordToken               string
	DiscordGuildID             string
	DiscordCountOtherBots      bool
	CaptureDir                 string
	DefaultTranscribeLanguage  string
	DatabaseURL                string
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	CompletedSessionWebhookURL string
	OpsListenAddr              string

	MaxSessionDurationMin  int
	EmptyChannelGraceSec   int
	VoiceConnectTimeoutSec int
	RenegotiateWindowSec   int
	ReconnectWindowSec     int
	FinalizeCeilingSec     int
	TranscribeTimeoutSec   int
	MinCaptureDurationMs   int
	MaxTranscribePayloadMB int
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.MaxSessionDurationMin <= 0 {
		return fmt.Errorf("MAX_SESSION_DURATION_MIN must be positive, got %d", c.MaxSessionDurationMin)
	}
	if c.EmptyChannelGraceSec < 0 {
		return fmt.Errorf("EMPTY_CHANNEL_GRACE_SEC must not be negative, got %d", c.EmptyChannelGraceSec)
	}
	if c.VoiceConnectTimeoutSec <= 0 {
		return fmt.Errorf("VOICE_CONNECT_TIMEOUT_SEC must be positive, got %d", c.VoiceConnectTimeoutSec)
	}
	if c.RenegotiateWindowSec <= 0 || c.ReconnectWindowSec <= 0 {
		return fmt.Errorf("recovery windows must be positive, got renegotiate=%d reconnect=%d", c.RenegotiateWindowSec, c.ReconnectWindowSec)
	}
	if c.RenegotiateWindowSec > c.ReconnectWindowSec {
		return fmt.Errorf("RENEGOTIATE_WINDOW_SEC (%d) must not exceed RECONNECT_WINDOW_SEC (%d)", c.RenegotiateWindowSec, c.ReconnectWindowSec)
	}
	if c.FinalizeCeilingSec <= 0 {
		return fmt.Errorf("FINALIZE_CEILING_SEC must be positive, got %d", c.FinalizeCeilingSec)
	}
	if c.TranscribeTimeoutSec <= 0 {
		return fmt.Errorf("TRANSCRIBE_TIMEOUT_SEC must be positive, got %d", c.TranscribeTimeoutSec)
	}
	if c.MinCaptureDurationMs < 0 {
		return fmt.Errorf("MIN_CAPTURE_DURATION_MS must not be negative, got %d", c.MinCaptureDurationMs)
	}
	if c.MaxTranscribePayloadMB <= 0 {
		return fmt.Errorf("MAX_TRANSCRIBE_PAYLOAD_MB must be positive, got %d", c.MaxTranscribePayloadMB)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "CAPTURE_DIR", value: c.CaptureDir},
		{name: "DEFAULT_TRANSCRIBE_LANGUAGE", value: c.DefaultTranscribeLanguage},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "GOOGLE_CLOUD_PROJECT_ID", value: c.GoogleCloudProjectID},
		{name: "GOOGLE_CLOUD_CREDENTIALS_JSON", value: c.GoogleCloudCredentialsJSON},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) MaxSessionDuration() time.Duration {
	return time.Duration(c.MaxSessionDurationMin) * time.Minute
}

func (c *Config) EmptyChannelGrace() time.Duration {
	return time.Duration(c.EmptyChannelGraceSec) * time.Second
}

func (c *Config) VoiceConnectTimeout() time.Duration {
	return time.Duration(c.VoiceConnectTimeoutSec) * time.Second
}

func (c *Config) RenegotiateWindow() time.Duration {
	return time.Duration(c.RenegotiateWindowSec) * time.Second
}

func (c *Config) ReconnectWindow() time.Duration {
	return time.Duration(c.ReconnectWindowSec) * time.Second
}

func (c *Config) FinalizeCeiling() time.Duration {
	return time.Duration(c.FinalizeCeilingSec) * time.Second
}

func (c *Config) TranscribeTimeout() time.Duration {
	return time.Duration(c.TranscribeTimeoutSec) * time.Second
}

func (c *Config) MinCaptureDuration() time.Duration {
	return time.Duration(c.MinCaptureDurationMs) * time.Millisecond
}

func (c *Config) MaxTranscribePayloadBytes() int64 {
	return int64(c.MaxTranscribePayloadMB) * 1024 * 1024
}
