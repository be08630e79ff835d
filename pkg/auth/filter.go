// Package auth decides which inbound relay messages may reach the command
// router.
package auth

import "github.com/sipeed/relayd/pkg/bus"

// Filter accepts messages from exactly one operator identity.
type Filter struct {
	operatorID string
}

func NewFilter(operatorID string) Filter {
	return Filter{operatorID: operatorID}
}

// Accepts compares the sender identity byte for byte. An empty sender never
// matches, so relay updates without a message body are always dropped.
func (f Filter) Accepts(msg bus.InboundMessage) bool {
	if msg.SenderID == "" {
		return false
	}
	return msg.SenderID == f.operatorID
}
