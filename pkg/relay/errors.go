package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Failure kinds. Match them with errors.Is.
var (
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrRelayRejected      = errors.New("relay rejected request")
)

// Error is returned by every relay operation that fails.
type Error struct {
	Relay string
	Op    string
	Kind  error
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Relay, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindOf returns the failure kind of err, or nil if err is not a relay
// failure.
func KindOf(err error) error {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Kind
	}
	return nil
}

// transportKind reports ErrNetworkUnavailable for dial, timeout and
// cancellation errors, nil otherwise.
func transportKind(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrNetworkUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrNetworkUnavailable
	}
	return nil
}
