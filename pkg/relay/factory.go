package relay

import (
	"fmt"

	"github.com/sipeed/relayd/pkg/config"
)

// New builds the relay selected by cfg.Relay. token is passed separately so
// a session can carry its own credential.
func New(cfg *config.Config, token string) (Relay, error) {
	switch cfg.Relay {
	case config.RelayTelegram:
		return NewTelegramRelay(TelegramOptions{
			Token:          token,
			APIServer:      cfg.Telegram.APIServer,
			LongPoll:       cfg.LongPoll,
			RequestTimeout: cfg.RequestTimeout(),
		})
	case config.RelayDiscord:
		return NewDiscordRelay(DiscordOptions{
			Token:     token,
			ChannelID: cfg.Discord.ChannelID,
			PageSize:  cfg.Discord.PageSize,
		})
	case config.RelayConsole:
		return NewConsoleRelay(ConsoleOptions{
			OperatorID:  cfg.OperatorID,
			Prompt:      cfg.Console.Prompt,
			HistoryFile: cfg.Console.HistoryFile,
		})
	default:
		return nil, fmt.Errorf("unknown relay %q", cfg.Relay)
	}
}
