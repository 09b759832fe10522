package discord

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestSession(t *testing.T, rt roundTripFunc) *discordgo.Session {
	t.Helper()
	s, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if rt != nil {
		s.Client = &http.Client{Transport: rt}
	}
	return s
}

func TestListVoiceChannelParticipants_FromStateCache(t *testing.T) {
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected REST call: %s %s", req.Method, req.URL.String())
		return nil, nil
	})
	if err := s.State.GuildAdd(&discordgo.Guild{
		ID: "guild-1",
		VoiceStates: []*discordgo.VoiceState{
			{GuildID: "guild-1", ChannelID: "vc-1", UserID: "user-1", Member: &discordgo.Member{User: &discordgo.User{ID: "user-1", Bot: false}}},
			{GuildID: "guild-1", ChannelID: "vc-1", UserID: "bot-1", Member: &discordgo.Member{User: &discordgo.User{ID: "bot-1", Bot: true}}},
			{GuildID: "guild-1", ChannelID: "vc-other", UserID: "user-2", Member: &discordgo.Member{User: &discordgo.User{ID: "user-2"}}},
		},
	}); err != nil {
		t.Fatalf("failed to add guild to state: %v", err)
	}

	c := &Client{session: s}
	participants, err := c.ListVoiceChannelParticipants("guild-1", "vc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("expected 2 participants in vc-1, got %d", len(participants))
	}
	byID := make(map[string]bool, len(participants))
	for _, p := range participants {
		byID[p.UserID] = p.IsBot
	}
	if isBot, ok := byID["user-1"]; !ok || isBot {
		t.Fatalf("expected user-1 present as non-bot, got %v", byID)
	}
	if isBot, ok := byID["bot-1"]; !ok || !isBot {
		t.Fatalf("expected bot-1 present as bot, got %v", byID)
	}
}

func TestResolveParticipantProfiles_PrefersGuildNick(t *testing.T) {
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected REST call: %s %s", req.Method, req.URL.String())
		return nil, nil
	})
	if err := s.State.GuildAdd(&discordgo.Guild{ID: "guild-1"}); err != nil {
		t.Fatalf("failed to add guild to state: %v", err)
	}
	if err := s.State.MemberAdd(&discordgo.Member{
		GuildID: "guild-1",
		Nick:    "ひびき",
		User:    &discordgo.User{ID: "user-1", Username: "hibiki_raw", GlobalName: "Hibiki"},
	}); err != nil {
		t.Fatalf("failed to add member to state: %v", err)
	}

	c := &Client{session: s}
	profiles, err := c.ResolveParticipantProfiles(context.Background(), "guild-1", []string{"user-1", "user-1", " "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected duplicates and blanks collapsed, got %d profiles", len(profiles))
	}
	if profiles[0].DisplayName != "ひびき" {
		t.Fatalf("expected guild nick preferred, got %q", profiles[0].DisplayName)
	}
}

func TestResolveParticipantProfiles_FallsBackToRESTUser(t *testing.T) {
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Path, "/users/user-1") {
			return &http.Response{
				StatusCode: http.StatusOK,
				Status:     "200 OK",
				Body:       io.NopCloser(strings.NewReader(`{"id":"user-1","username":"hibiki_raw","global_name":"Hibiki","bot":false}`)),
				Header:     make(http.Header),
			}, nil
		}
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Status:     "404 Not Found",
			Body:       io.NopCloser(strings.NewReader(`{"message":"Unknown Member","code":10007}`)),
			Header:     make(http.Header),
		}, nil
	})

	c := &Client{session: s}
	profiles, err := c.ResolveParticipantProfiles(context.Background(), "guild-1", []string{"user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profiles[0].DisplayName != "Hibiki" {
		t.Fatalf("expected global name from REST fallback, got %q", profiles[0].DisplayName)
	}
}

func TestPreferredDiscordName(t *testing.T) {
	if got := preferredDiscordName("Global", "username", "id"); got != "Global" {
		t.Fatalf("expected global name preferred, got %q", got)
	}
	if got := preferredDiscordName("", "username", "id"); got != "username" {
		t.Fatalf("expected username fallback, got %q", got)
	}
	if got := preferredDiscordName("", "", "id"); got != "id" {
		t.Fatalf("expected id fallback, got %q", got)
	}
}
