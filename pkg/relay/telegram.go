package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/sipeed/relayd/pkg/bus"
	"github.com/sipeed/relayd/pkg/logger"
)

const telegramName = "telegram"

type TelegramOptions struct {
	Token string
	// APIServer overrides https://api.telegram.org, e.g. for a local Bot
	// API server.
	APIServer string
	// LongPoll asks the server to hold getUpdates open when there is
	// nothing to return. Zero means a plain short poll.
	LongPoll time.Duration
	// RequestTimeout bounds one HTTP round trip. Ignored when HTTPClient
	// is set.
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

type TelegramRelay struct {
	bot      *telego.Bot
	longPoll time.Duration
}

func NewTelegramRelay(opts TelegramOptions) (*TelegramRelay, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.RequestTimeout}
	}

	botOpts := []telego.BotOption{
		telego.WithHTTPClient(client),
		telego.WithDiscardLogger(),
	}
	if opts.APIServer != "" {
		botOpts = append(botOpts, telego.WithAPIServer(opts.APIServer))
	}

	bot, err := telego.NewBot(opts.Token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramRelay{
		bot:      bot,
		longPoll: opts.LongPoll,
	}, nil
}

func (t *TelegramRelay) Name() string {
	return telegramName
}

func (t *TelegramRelay) FetchBatch(ctx context.Context, cursor int64) ([]bus.InboundMessage, error) {
	updates, err := t.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
		Offset:  int(cursor),
		Timeout: int(t.longPoll / time.Second),
	})
	if err != nil {
		return nil, t.wrap("getUpdates", err)
	}

	batch := make([]bus.InboundMessage, 0, len(updates))
	for _, update := range updates {
		batch = append(batch, telegramInbound(update))
	}
	SortBatch(batch)

	logger.DebugCF(telegramName, "Fetched updates", map[string]any{
		"offset": cursor,
		"count":  len(batch),
	})
	return batch, nil
}

func (t *TelegramRelay) Send(ctx context.Context, chatID, text string) error {
	if chatID == "" {
		return &Error{Relay: telegramName, Op: "sendMessage", Kind: ErrRelayRejected, Err: errors.New("chat ID is empty")}
	}

	_, err := t.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telegramChatID(chatID),
		Text:   text,
	})
	if err != nil {
		return t.wrap("sendMessage", err)
	}
	return nil
}

func (t *TelegramRelay) wrap(op string, err error) error {
	kind := transportKind(err)
	if kind == nil {
		var apiErr *ta.Error
		if errors.As(err, &apiErr) {
			kind = ErrRelayRejected
		} else {
			kind = ErrMalformedResponse
		}
	}
	return &Error{Relay: telegramName, Op: op, Kind: kind, Err: err}
}

// telegramInbound maps an update to an inbound message. The sender identity
// is the chat id, which is what the operator configures.
func telegramInbound(update telego.Update) bus.InboundMessage {
	msg := bus.InboundMessage{
		Channel:    telegramName,
		SequenceID: int64(update.UpdateID),
	}
	if update.Message == nil {
		return msg
	}

	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	msg.SenderID = chatID
	msg.ChatID = chatID
	msg.Content = update.Message.Text
	msg.Metadata = map[string]string{
		"message_id": strconv.Itoa(update.Message.MessageID),
	}
	if from := update.Message.From; from != nil {
		msg.Metadata["user_id"] = strconv.FormatInt(from.ID, 10)
		if from.Username != "" {
			msg.Metadata["username"] = from.Username
		}
	}
	return msg
}

func telegramChatID(chatID string) telego.ChatID {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return tu.ID(id)
	}
	return tu.Username(chatID)
}
