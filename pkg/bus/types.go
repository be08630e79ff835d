package bus

// InboundMessage is one relay update. SequenceID is strictly increasing
// over the relay's lifetime but not necessarily contiguous. Updates that do
// not carry a text message keep an empty SenderID.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SequenceID int64             `json:"sequence_id"`
	SenderID   string            `json:"sender_id"`
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type OutboundMessage struct {
	Channel   string `json:"channel"`
	ChatID    string `json:"chat_id"`
	Content   string `json:"content"`
	RequestID string `json:"request_id,omitempty"`
}
