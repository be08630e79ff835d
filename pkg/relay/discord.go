package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/relayd/pkg/bus"
	"github.com/sipeed/relayd/pkg/logger"
)

const (
	discordName = "discord"

	// discordEpoch is the first millisecond of 2015, the origin of Discord
	// snowflake timestamps.
	discordEpoch = 1420070400000

	defaultDiscordPageSize = 50
)

type DiscordOptions struct {
	Token     string
	ChannelID string
	// PageSize caps the messages fetched per poll (1-100).
	PageSize   int
	HTTPClient *http.Client
	// Since is the earliest message time delivered when the cursor is
	// zero. Defaults to the construction time so channel history is not
	// replayed as commands.
	Since time.Time
}

// DiscordRelay polls a single text channel's message history. Snowflake
// message ids are time ordered, so the cursor maps onto the "after" query.
type DiscordRelay struct {
	session   *discordgo.Session
	channelID string
	pageSize  int
	since     time.Time
}

func NewDiscordRelay(opts DiscordOptions) (*DiscordRelay, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("channel ID is empty")
	}

	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	if opts.HTTPClient != nil {
		session.Client = opts.HTTPClient
	}
	session.MaxRestRetries = 0
	session.ShouldRetryOnRateLimit = false

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultDiscordPageSize
	}
	since := opts.Since
	if since.IsZero() {
		since = time.Now()
	}

	return &DiscordRelay{
		session:   session,
		channelID: opts.ChannelID,
		pageSize:  pageSize,
		since:     since,
	}, nil
}

func (d *DiscordRelay) Name() string {
	return discordName
}

func (d *DiscordRelay) FetchBatch(ctx context.Context, cursor int64) ([]bus.InboundMessage, error) {
	messages, err := d.session.ChannelMessages(d.channelID, d.pageSize, "", d.afterID(cursor), "",
		discordgo.WithContext(ctx),
		discordgo.WithRestRetries(0),
		discordgo.WithRetryOnRatelimit(false),
	)
	if err != nil {
		return nil, d.wrap("channelMessages", err)
	}

	batch := make([]bus.InboundMessage, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		msg, err := discordInbound(m)
		if err != nil {
			return nil, &Error{Relay: discordName, Op: "channelMessages", Kind: ErrMalformedResponse, Err: err}
		}
		batch = append(batch, msg)
	}
	SortBatch(batch)

	logger.DebugCF(discordName, "Fetched channel messages", map[string]any{
		"channel_id": d.channelID,
		"cursor":     cursor,
		"count":      len(batch),
	})
	return batch, nil
}

func (d *DiscordRelay) Send(ctx context.Context, chatID, text string) error {
	channelID := chatID
	if channelID == "" {
		channelID = d.channelID
	}

	if _, err := d.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx), discordgo.WithRestRetries(0)); err != nil {
		return d.wrap("channelMessageSend", err)
	}
	return nil
}

// OperatorChat is the polled channel. Operator ids are user ids, which are
// not valid channel ids.
func (d *DiscordRelay) OperatorChat(string) string {
	return d.channelID
}

// afterID returns the snowflake just below cursor. A zero cursor starts at
// the relay's Since time.
func (d *DiscordRelay) afterID(cursor int64) string {
	if cursor > 0 {
		return strconv.FormatInt(cursor-1, 10)
	}
	return strconv.FormatInt(snowflakeAt(d.since), 10)
}

func (d *DiscordRelay) wrap(op string, err error) error {
	kind := transportKind(err)
	if kind == nil {
		var restErr *discordgo.RESTError
		var rateErr *discordgo.RateLimitError
		switch {
		case errors.As(err, &restErr), errors.As(err, &rateErr), errors.Is(err, discordgo.ErrUnauthorized):
			kind = ErrRelayRejected
		default:
			kind = ErrMalformedResponse
		}
	}
	return &Error{Relay: discordName, Op: op, Kind: kind, Err: err}
}

func discordInbound(m *discordgo.Message) (bus.InboundMessage, error) {
	id, err := strconv.ParseInt(m.ID, 10, 64)
	if err != nil {
		return bus.InboundMessage{}, fmt.Errorf("message id %q: %w", m.ID, err)
	}

	msg := bus.InboundMessage{
		Channel:    discordName,
		SequenceID: id,
		ChatID:     m.ChannelID,
		Content:    m.Content,
		Metadata: map[string]string{
			"message_id": m.ID,
			"guild_id":   m.GuildID,
		},
	}
	if m.Author != nil {
		msg.SenderID = m.Author.ID
		msg.Metadata["username"] = m.Author.Username
	}
	return msg, nil
}

// snowflakeAt returns the smallest snowflake that could be minted at t.
func snowflakeAt(t time.Time) int64 {
	ms := t.UnixMilli() - discordEpoch
	if ms < 0 {
		return 0
	}
	return ms << 22
}
