package relay

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sipeed/relayd/pkg/bus"
	"github.com/sipeed/relayd/pkg/logger"
)

const defaultSendTimeout = 10 * time.Second

// ReplySender delivers router replies off the poll loop. Deliver only
// enqueues; Run drains the queue on its own goroutine. Failed sends are
// logged and dropped.
type ReplySender struct {
	sender      Sender
	channel     string
	bus         *bus.MessageBus
	sendTimeout time.Duration
}

func NewReplySender(sender Sender, channel string, mb *bus.MessageBus, sendTimeout time.Duration) *ReplySender {
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	return &ReplySender{
		sender:      sender,
		channel:     channel,
		bus:         mb,
		sendTimeout: sendTimeout,
	}
}

// Deliver queues text for chatID and reports whether it was accepted.
func (r *ReplySender) Deliver(chatID, text string) bool {
	msg := bus.OutboundMessage{
		Channel:   r.channel,
		ChatID:    chatID,
		Content:   text,
		RequestID: uuid.NewString(),
	}
	if !r.bus.PublishOutbound(msg) {
		logger.WarnCF("reply", "Reply queue full or closed, dropping reply", map[string]any{
			"request_id": msg.RequestID,
			"pending":    r.bus.Pending(),
		})
		return false
	}
	return true
}

// Run sends queued replies until ctx is done or the bus is closed.
func (r *ReplySender) Run(ctx context.Context) {
	for {
		msg, ok := r.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		r.send(ctx, msg)
	}
}

func (r *ReplySender) send(ctx context.Context, msg bus.OutboundMessage) {
	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()

	if err := r.sender.Send(sendCtx, msg.ChatID, msg.Content); err != nil {
		logger.ErrorCF("reply", "Failed to deliver reply", map[string]any{
			"channel":    msg.Channel,
			"request_id": msg.RequestID,
			"error":      err.Error(),
		})
		return
	}
	logger.DebugCF("reply", "Reply delivered", map[string]any{
		"channel":    msg.Channel,
		"request_id": msg.RequestID,
	})
}
