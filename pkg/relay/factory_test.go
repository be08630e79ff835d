package relay

import (
	"testing"

	"github.com/sipeed/relayd/pkg/config"
)

func TestNewSelectsRelay(t *testing.T) {
	tests := []struct {
		cfg  config.Config
		want string
	}{
		{config.Config{Relay: config.RelayTelegram}, telegramName},
		{config.Config{Relay: config.RelayDiscord, Discord: config.DiscordConfig{ChannelID: "555"}}, discordName},
	}
	for _, tt := range tests {
		r, err := New(&tt.cfg, testToken)
		if err != nil {
			t.Fatalf("New(%s): %v", tt.cfg.Relay, err)
		}
		if r.Name() != tt.want {
			t.Errorf("Name() = %q, want %q", r.Name(), tt.want)
		}
	}

	if _, err := New(&config.Config{Relay: "smoke-signal"}, testToken); err == nil {
		t.Fatal("expected an error for an unknown relay")
	}
}
