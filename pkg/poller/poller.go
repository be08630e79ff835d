// Package poller runs the relay update loop: wait, fetch everything past
// the cursor, then consume and dispatch each update in order.
//
// The loop, the cursor and command dispatch all live on the goroutine that
// calls Run. Replies leave through a Replier, which must not block.
package poller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sipeed/relayd/pkg/auth"
	"github.com/sipeed/relayd/pkg/bus"
	"github.com/sipeed/relayd/pkg/clock"
	"github.com/sipeed/relayd/pkg/commands"
	"github.com/sipeed/relayd/pkg/cursor"
	"github.com/sipeed/relayd/pkg/logger"
	"github.com/sipeed/relayd/pkg/relay"
)

const DefaultInterval = 2 * time.Second

type State int32

const (
	StateIdle State = iota
	StatePolling
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

type Router interface {
	Route(ctx context.Context, cmd commands.Command) commands.Outcome
}

// Replier hands reply text to the asynchronous reply path.
type Replier interface {
	Deliver(chatID, text string) bool
}

// Hooks observe the loop. All hooks run on the loop goroutine.
type Hooks struct {
	OnState func(from, to State)
	// OnConsumed runs after the cursor moved past msg and before msg is
	// filtered or routed.
	OnConsumed func(msg bus.InboundMessage, cursor int64)
	// OnDispatch runs for messages that passed the authorization filter.
	OnDispatch   func(msg bus.InboundMessage, cmd commands.Command)
	OnFetchError func(err error)
}

type Options struct {
	Interval time.Duration
	// FetchTimeout bounds one FetchBatch call. Zero leaves it to the relay.
	FetchTimeout time.Duration
	Clock        clock.Clock
	Hooks        Hooks
	// Scheduled delivers commands that originate locally, e.g. heartbeat
	// status reports. They are routed while idle, and their replies go to
	// ReplyTo.
	Scheduled <-chan commands.Command
	ReplyTo   string
}

type Poller struct {
	fetcher relay.Fetcher
	cursor  *cursor.Store
	filter  auth.Filter
	router  Router
	replies Replier

	interval     time.Duration
	fetchTimeout time.Duration
	clock        clock.Clock
	hooks        Hooks
	scheduled    <-chan commands.Command
	replyTo      string

	state atomic.Int32
}

func New(fetcher relay.Fetcher, cur *cursor.Store, filter auth.Filter, router Router, replies Replier, opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	if cur == nil {
		cur = cursor.New()
	}

	return &Poller{
		fetcher:      fetcher,
		cursor:       cur,
		filter:       filter,
		router:       router,
		replies:      replies,
		interval:     interval,
		fetchTimeout: opts.FetchTimeout,
		clock:        clk,
		hooks:        opts.Hooks,
		scheduled:    opts.Scheduled,
		replyTo:      opts.ReplyTo,
	}
}

func (p *Poller) State() State {
	return State(p.state.Load())
}

// Cursor returns the next sequence id the loop will ask for. The cursor is
// owned by the loop: call Cursor from the Run goroutine (e.g. inside a
// hook) or after Run has returned.
func (p *Poller) Cursor() int64 {
	return p.cursor.Current()
}

func (p *Poller) transition(to State) {
	from := State(p.state.Swap(int32(to)))
	if from == to {
		return
	}
	if p.hooks.OnState != nil {
		p.hooks.OnState(from, to)
	}
}

// Run loops until ctx is done. Fetch failures never end the loop; the
// cursor is left where it was and the next attempt follows the usual idle
// interval.
func (p *Poller) Run(ctx context.Context) {
	defer p.transition(StateStopped)

	logger.InfoCF("poller", "Update loop started", map[string]any{
		"interval": p.interval.String(),
		"cursor":   p.cursor.Current(),
	})

	for {
		if !p.idle(ctx) {
			logger.InfoCF("poller", "Update loop stopped", map[string]any{
				"cursor": p.cursor.Current(),
			})
			return
		}
		_ = p.PollOnce(ctx)
	}
}

// idle waits one interval, routing scheduled commands meanwhile. It returns
// false when ctx ends.
func (p *Poller) idle(ctx context.Context) bool {
	p.transition(StateIdle)
	wake := p.clock.After(p.interval)
	for {
		select {
		case <-ctx.Done():
			return false
		case cmd := <-p.scheduled:
			p.routeScheduled(ctx, cmd)
		case <-wake:
			return ctx.Err() == nil
		}
	}
}

// PollOnce performs one Polling step and, when the batch is non-empty, one
// Draining step. The returned error is the fetch failure, if any.
func (p *Poller) PollOnce(ctx context.Context) error {
	p.transition(StatePolling)

	fetchCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.fetchTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
	}
	batch, err := p.fetcher.FetchBatch(fetchCtx, p.cursor.Current())
	cancel()

	if err != nil {
		if ctx.Err() == nil {
			logger.WarnCF("poller", "Fetch failed, will retry", map[string]any{
				"error":    err.Error(),
				"cursor":   p.cursor.Current(),
				"retry_in": p.interval.String(),
			})
			if p.hooks.OnFetchError != nil {
				p.hooks.OnFetchError(err)
			}
		}
		p.transition(StateIdle)
		return err
	}

	if len(batch) > 0 {
		p.transition(StateDraining)
		p.Drain(ctx, batch)
	}
	p.transition(StateIdle)
	return nil
}

// Drain consumes batch in ascending sequence order, one message at a time.
// Messages left unconsumed when ctx ends stay behind the cursor and are
// fetched again by the next loop.
func (p *Poller) Drain(ctx context.Context, batch []bus.InboundMessage) {
	relay.SortBatch(batch)
	for _, msg := range batch {
		if ctx.Err() != nil {
			return
		}
		if !p.MarkConsumed(msg) {
			continue
		}
		p.Dispatch(ctx, msg)
	}
}

// MarkConsumed advances the cursor past msg. It returns false, without
// side effects, for a message that is already behind the cursor.
func (p *Poller) MarkConsumed(msg bus.InboundMessage) bool {
	if p.cursor.Consumed(msg.SequenceID) {
		logger.DebugCF("poller", "Skipping already consumed update", map[string]any{
			"sequence_id": msg.SequenceID,
			"cursor":      p.cursor.Current(),
		})
		return false
	}
	p.cursor.AdvanceTo(msg.SequenceID)
	if p.hooks.OnConsumed != nil {
		p.hooks.OnConsumed(msg, p.cursor.Current())
	}
	return true
}

// Dispatch filters msg by sender and routes it. Rejected messages are
// dropped without a reply and without logging their content.
func (p *Poller) Dispatch(ctx context.Context, msg bus.InboundMessage) {
	if !p.filter.Accepts(msg) {
		logger.DebugCF("poller", "Dropped update from unaccepted sender", map[string]any{
			"sequence_id": msg.SequenceID,
		})
		return
	}

	cmd := commands.Parse(msg.Content)
	if p.hooks.OnDispatch != nil {
		p.hooks.OnDispatch(msg, cmd)
	}
	logger.InfoCF("poller", "Routing command", map[string]any{
		"command":     cmd.Name,
		"sequence_id": msg.SequenceID,
	})

	p.reply(msg.ChatID, cmd, p.router.Route(ctx, cmd))
}

func (p *Poller) routeScheduled(ctx context.Context, cmd commands.Command) {
	logger.DebugCF("poller", "Routing scheduled command", map[string]any{
		"command": cmd.Name,
	})
	p.reply(p.replyTo, cmd, p.router.Route(ctx, cmd))
}

func (p *Poller) reply(chatID string, cmd commands.Command, outcome commands.Outcome) {
	if outcome.Kind == commands.Failed {
		logger.WarnCF("poller", "Command failed", map[string]any{
			"command": cmd.Name,
			"error":   outcome.Err,
		})
	}
	text, ok := outcome.ReplyText()
	if !ok || p.replies == nil {
		return
	}
	p.replies.Deliver(chatID, text)
}
