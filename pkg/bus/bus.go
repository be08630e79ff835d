package bus

import (
	"context"
	"sync"
)

const defaultOutboundSize = 64

// MessageBus carries replies from the poll loop to the reply worker. The
// two sides share nothing else.
type MessageBus struct {
	outbound  chan OutboundMessage
	done      chan struct{}
	closeOnce sync.Once
}

func NewMessageBus(size int) *MessageBus {
	if size <= 0 {
		size = defaultOutboundSize
	}
	return &MessageBus{
		outbound: make(chan OutboundMessage, size),
		done:     make(chan struct{}),
	}
}

// PublishOutbound enqueues msg without blocking. It returns false when the
// queue is full or the bus is closed; the caller decides whether to log.
func (mb *MessageBus) PublishOutbound(msg OutboundMessage) bool {
	select {
	case <-mb.done:
		return false
	default:
	}

	select {
	case mb.outbound <- msg:
		return true
	default:
		return false
	}
}

// SubscribeOutbound blocks for the next reply. ok is false once ctx is done
// or the bus is closed.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-mb.outbound:
		return msg, true
	case <-mb.done:
		return OutboundMessage{}, false
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// Pending returns the number of queued replies.
func (mb *MessageBus) Pending() int {
	return len(mb.outbound)
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)
	})
}
