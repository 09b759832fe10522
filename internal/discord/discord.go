package discord

import "context"

type VoiceStateEvent struct {
	GuildID         string
	UserID          string
	UserIsBot       bool
	BeforeChannelID string
	AfterChannelID  string
}

type VoiceParticipant struct {
	UserID string
	IsBot  bool
}

type ParticipantProfile struct {
	UserID      string
	DisplayName string
	IsBot       bool
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	JoinVoiceChannel(guildID, channelID string) (VoiceConnection, error)
	SendChannelMessage(channelID, content string) error
	RegisterVoiceStateUpdateHandler(handler func(VoiceStateEvent))
	ListVoiceChannelParticipants(guildID, channelID string) ([]VoiceParticipant, error)
	GetBotUserID() (string, error)
	ResolveParticipantProfiles(ctx context.Context, guildID string, userIDs []string) ([]ParticipantProfile, error)
	Run() error
}

// VoiceConnection is one live voice transport. ReceiveAudio delivers opus
// packets per speaking user until the connection closes; RegisterStateHandler
// reports transitions of the underlying transport's readiness.
type VoiceConnection interface {
	Disconnect() error
	ReceiveAudio(callback func(userID string, opusPacket []byte))
	RegisterStateHandler(handler func(ready bool))
}
