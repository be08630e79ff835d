// Package relay is the transport between the poll loop and a third-party
// message relay. Implementations never retry; retry policy belongs to the
// caller.
package relay

import (
	"context"
	"sort"

	"github.com/sipeed/relayd/pkg/bus"
)

// Fetcher returns every update with a sequence id at or above cursor, in
// ascending sequence order.
type Fetcher interface {
	FetchBatch(ctx context.Context, cursor int64) ([]bus.InboundMessage, error)
}

// Sender posts text to a chat on the relay.
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
}

type Relay interface {
	Fetcher
	Sender
	Name() string
}

// SortBatch orders a batch by ascending sequence id. Relays do not promise
// ordering.
func SortBatch(batch []bus.InboundMessage) {
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].SequenceID < batch[j].SequenceID
	})
}

// OperatorChatter is implemented by relays whose chats are not addressed by
// the operator's identity, e.g. a Discord channel shared with the operator.
type OperatorChatter interface {
	OperatorChat(operatorID string) string
}

// OperatorChat returns the chat that unsolicited replies to operatorID go
// to on r.
func OperatorChat(r Relay, operatorID string) string {
	if oc, ok := r.(OperatorChatter); ok {
		return oc.OperatorChat(operatorID)
	}
	return operatorID
}
