package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"

	"github.com/sipeed/relayd/pkg/logger"
)

// EnvPrefix is prepended to every variable name below.
const EnvPrefix = "RELAYD_"

const (
	RelayTelegram = "telegram"
	RelayDiscord  = "discord"
	RelayConsole  = "console"
)

type Config struct {
	Relay      string `env:"RELAY" envDefault:"telegram"`
	Token      string `env:"TOKEN"`
	OperatorID string `env:"OPERATOR_ID,required"`

	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	// LongPoll is passed to relays that can hold a fetch open server side.
	LongPoll    time.Duration `env:"LONG_POLL" envDefault:"0s"`
	SendTimeout time.Duration `env:"SEND_TIMEOUT" envDefault:"10s"`
	ReplyQueue  int           `env:"REPLY_QUEUE" envDefault:"64"`

	Telegram TelegramConfig `envPrefix:"TELEGRAM_"`
	Discord  DiscordConfig  `envPrefix:"DISCORD_"`
	Console  ConsoleConfig  `envPrefix:"CONSOLE_"`

	// Heartbeat is a cron expression; empty disables status reports.
	Heartbeat string `env:"HEARTBEAT"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	Device DeviceConfig `envPrefix:"DEVICE_"`
}

type TelegramConfig struct {
	APIServer string `env:"API_SERVER"`
}

type DiscordConfig struct {
	ChannelID string `env:"CHANNEL_ID"`
	PageSize  int    `env:"PAGE_SIZE" envDefault:"50"`
}

type ConsoleConfig struct {
	Prompt      string `env:"PROMPT" envDefault:"relayd> "`
	HistoryFile string `env:"HISTORY_FILE"`
}

type DeviceConfig struct {
	AppsDirs    []string `env:"APPS_DIRS" envSeparator:":" envDefault:"/usr/share/applications:/usr/local/share/applications"`
	StoragePath string   `env:"STORAGE_PATH"`
	PowerSupply string   `env:"POWER_SUPPLY_DIR" envDefault:"/sys/class/power_supply"`
	// ActionTimeout bounds one forwarded capability.
	ActionTimeout time.Duration `env:"ACTION_TIMEOUT" envDefault:"30s"`
}

// Load reads the process environment.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom reads environ instead of the process environment when it is
// non-nil. Keys include EnvPrefix.
func LoadFrom(environ map[string]string) (*Config, error) {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}

	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.Relay = strings.ToLower(strings.TrimSpace(cfg.Relay))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.OperatorID == "" {
		return fmt.Errorf("%sOPERATOR_ID must not be empty", EnvPrefix)
	}

	switch c.Relay {
	case RelayTelegram:
		if c.Token == "" {
			return fmt.Errorf("%sTOKEN is required for the telegram relay", EnvPrefix)
		}
	case RelayDiscord:
		if c.Token == "" {
			return fmt.Errorf("%sTOKEN is required for the discord relay", EnvPrefix)
		}
		if c.Discord.ChannelID == "" {
			return fmt.Errorf("%sDISCORD_CHANNEL_ID is required for the discord relay", EnvPrefix)
		}
		if c.Discord.PageSize <= 0 || c.Discord.PageSize > 100 {
			return fmt.Errorf("%sDISCORD_PAGE_SIZE must be between 1 and 100, got %d", EnvPrefix, c.Discord.PageSize)
		}
	case RelayConsole:
	default:
		return fmt.Errorf("%sRELAY: unknown relay %q", EnvPrefix, c.Relay)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("%sPOLL_INTERVAL must be positive, got %s", EnvPrefix, c.PollInterval)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%sFETCH_TIMEOUT must be positive, got %s", EnvPrefix, c.FetchTimeout)
	}
	if c.LongPoll < 0 {
		return fmt.Errorf("%sLONG_POLL must not be negative, got %s", EnvPrefix, c.LongPoll)
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("%sSEND_TIMEOUT must be positive, got %s", EnvPrefix, c.SendTimeout)
	}
	if c.ReplyQueue <= 0 {
		return fmt.Errorf("%sREPLY_QUEUE must be positive, got %d", EnvPrefix, c.ReplyQueue)
	}
	if c.Device.ActionTimeout <= 0 {
		return fmt.Errorf("%sDEVICE_ACTION_TIMEOUT must be positive, got %s", EnvPrefix, c.Device.ActionTimeout)
	}
	if c.Heartbeat != "" && !gronx.New().IsValid(c.Heartbeat) {
		return fmt.Errorf("%sHEARTBEAT: invalid cron expression %q", EnvPrefix, c.Heartbeat)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%sLOG_LEVEL: %w", EnvPrefix, err)
	}
	return nil
}

// RequestTimeout bounds a single fetch, including the server-side long
// poll window.
func (c *Config) RequestTimeout() time.Duration {
	return c.FetchTimeout + c.LongPoll
}
