// Package service owns the lifetime of a relay session: one poll loop, its
// reply worker and optional heartbeat, started and stopped together.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sipeed/relayd/pkg/auth"
	"github.com/sipeed/relayd/pkg/bus"
	"github.com/sipeed/relayd/pkg/clock"
	"github.com/sipeed/relayd/pkg/commands"
	"github.com/sipeed/relayd/pkg/config"
	"github.com/sipeed/relayd/pkg/cursor"
	"github.com/sipeed/relayd/pkg/device"
	"github.com/sipeed/relayd/pkg/heartbeat"
	"github.com/sipeed/relayd/pkg/logger"
	"github.com/sipeed/relayd/pkg/poller"
	"github.com/sipeed/relayd/pkg/relay"
)

var (
	ErrNoSession = errors.New("no active session")
	// ErrStopping is returned while a stopped session has not finished
	// winding down. The slot stays taken until it has.
	ErrStopping = errors.New("previous session is still stopping")
)

// Session is the immutable identity of one running loop.
type Session struct {
	ID         string
	Relay      string
	OperatorID string
	StartedAt  time.Time

	token string
}

// RelayFactory builds a relay for a session's channel token.
type RelayFactory func(token string) (relay.Relay, error)

type Options struct {
	Config *config.Config
	Relays RelayFactory
	Device device.Capabilities
	Clock  clock.Clock
	Hooks  poller.Hooks
}

type Manager struct {
	opts Options

	mu     sync.Mutex
	active *activeRun
}

type activeRun struct {
	session  Session
	cancel   context.CancelFunc
	done     chan struct{}
	stopping bool
}

func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Relays == nil {
		cfg := opts.Config
		opts.Relays = func(token string) (relay.Relay, error) {
			return relay.New(cfg, token)
		}
	}
	return &Manager{opts: opts}
}

// Start launches a session. A session that is already running is stopped
// first; ctx bounds how long Start waits for it. If it does not end in time
// Start fails and no second session is started.
func (m *Manager) Start(ctx context.Context, token, operatorID string) (Session, error) {
	if operatorID == "" {
		return Session{}, errors.New("operator ID is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		if err := m.stopLocked(ctx); err != nil {
			return Session{}, fmt.Errorf("failed to stop previous session: %w", err)
		}
	}

	r, err := m.opts.Relays(token)
	if err != nil {
		return Session{}, fmt.Errorf("failed to create relay: %w", err)
	}

	cfg := m.opts.Config
	session := Session{
		ID:         uuid.NewString(),
		Relay:      r.Name(),
		OperatorID: operatorID,
		StartedAt:  m.opts.Clock.Now(),
		token:      token,
	}

	var hb *heartbeat.Scheduler
	var scheduled <-chan commands.Command
	if cfg.Heartbeat != "" {
		hb, err = heartbeat.New(cfg.Heartbeat, m.opts.Clock)
		if err != nil {
			closeRelay(r)
			return Session{}, err
		}
		scheduled = hb.C()
	}

	mb := bus.NewMessageBus(cfg.ReplyQueue)
	replies := relay.NewReplySender(r, r.Name(), mb, cfg.SendTimeout)
	p := poller.New(r, cursor.New(), auth.NewFilter(operatorID), commands.NewDefaultRouter(m.opts.Device), replies, poller.Options{
		Interval:     cfg.PollInterval,
		FetchTimeout: cfg.RequestTimeout(),
		Clock:        m.opts.Clock,
		Hooks:        m.opts.Hooks,
		Scheduled:    scheduled,
		ReplyTo:      relay.OperatorChat(r, operatorID),
	})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		replies.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		p.Run(runCtx)
	}()
	if hb != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hb.Run(runCtx)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		mb.Close()
		closeRelay(r)
		logger.InfoCF("service", "Session ended", map[string]any{
			"session_id": session.ID,
		})
		close(done)
	}()

	m.active = &activeRun{session: session, cancel: cancel, done: done}
	logger.InfoCF("service", "Session started", map[string]any{
		"session_id": session.ID,
		"relay":      session.Relay,
		"heartbeat":  cfg.Heartbeat != "",
	})
	return session, nil
}

// Restart replaces the running session with a fresh one using the same
// credentials. The new session starts from cursor zero.
func (m *Manager) Restart(ctx context.Context) (Session, error) {
	m.mu.Lock()
	if m.active == nil || m.active.stopping {
		m.mu.Unlock()
		return Session{}, ErrNoSession
	}
	prev := m.active.session
	m.mu.Unlock()

	return m.Start(ctx, prev.token, prev.OperatorID)
}

// Stop cancels the running session and waits for its goroutines, bounded by
// ctx. A session that outlives ctx keeps the slot until it ends; a later
// Stop or Start waits for it again. Stopping with no session is a no-op.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) error {
	run := m.active
	run.stopping = true
	run.cancel()

	select {
	case <-run.done:
		m.active = nil
		return nil
	case <-ctx.Done():
		logger.WarnCF("service", "Session did not stop in time", map[string]any{
			"session_id": run.session.ID,
		})
		return fmt.Errorf("%w: %w", ErrStopping, ctx.Err())
	}
}

func (m *Manager) Active() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.stopping {
		return Session{}, false
	}
	return m.active.session, true
}

// Done returns a channel closed when the current session ends, or nil when
// there is none. A session that is still stopping counts as current.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	return m.active.done
}

func closeRelay(r relay.Relay) {
	closer, ok := r.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.WarnCF("service", "Failed to close relay", map[string]any{
			"relay": r.Name(),
			"error": err.Error(),
		})
	}
}
