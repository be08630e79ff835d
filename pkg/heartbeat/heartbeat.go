// Package heartbeat emits a status command on a cron schedule so the
// operator gets periodic reports without asking.
package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sipeed/relayd/pkg/clock"
	"github.com/sipeed/relayd/pkg/commands"
	"github.com/sipeed/relayd/pkg/logger"
)

// DefaultCommand is what a heartbeat asks the router for.
var DefaultCommand = commands.Command{Name: "info"}

type Scheduler struct {
	expr    string
	clock   clock.Clock
	command commands.Command
	out     chan commands.Command
}

func New(expr string, clk clock.Clock) (*Scheduler, error) {
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression %q", expr)
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Scheduler{
		expr:    expr,
		clock:   clk,
		command: DefaultCommand,
		out:     make(chan commands.Command, 1),
	}, nil
}

// C delivers one command per tick. At most one tick is buffered; later
// ticks are skipped until the consumer catches up.
func (s *Scheduler) C() <-chan commands.Command {
	return s.out
}

// Next returns the first tick strictly after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, t, false)
}

func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := s.clock.Now()
		next, err := s.Next(now)
		if err != nil {
			logger.ErrorCF("heartbeat", "Cannot compute next tick, heartbeat disabled", map[string]any{
				"expr":  s.expr,
				"error": err.Error(),
			})
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(next.Sub(now)):
		}

		select {
		case s.out <- s.command:
		default:
			logger.DebugCF("heartbeat", "Previous tick still pending, skipping", map[string]any{
				"tick": next.Format(time.RFC3339),
			})
		}
	}
}
