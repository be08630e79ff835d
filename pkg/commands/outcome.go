package commands

import "fmt"

type OutcomeKind int

const (
	// NoReply marks fire-and-forget actions.
	NoReply OutcomeKind = iota
	Reply
	Failed
)

// Outcome is the result of routing one command.
type Outcome struct {
	Kind OutcomeKind
	Text string
	Err  error
}

func ReplyWith(text string) Outcome {
	return Outcome{Kind: Reply, Text: text}
}

func Silent() Outcome {
	return Outcome{Kind: NoReply}
}

func Failure(err error) Outcome {
	return Outcome{Kind: Failed, Err: err}
}

// ReplyText returns what should be sent back to the operator, if anything.
// Empty replies are not sent.
func (o Outcome) ReplyText() (string, bool) {
	switch o.Kind {
	case Reply:
		return o.Text, o.Text != ""
	case Failed:
		if o.Err == nil {
			return "error", true
		}
		return fmt.Sprintf("error: %s", o.Err), true
	default:
		return "", false
	}
}
