package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/chzyer/readline"

	"github.com/sipeed/relayd/pkg/bus"
	"github.com/sipeed/relayd/pkg/logger"
)

const consoleName = "console"

// lineReader is the part of *readline.Instance the console relay uses.
type lineReader interface {
	Readline() (string, error)
	Write(p []byte) (int, error)
	Close() error
}

type ConsoleOptions struct {
	// OperatorID is stamped on every typed line as its sender.
	OperatorID  string
	Prompt      string
	HistoryFile string
}

// ConsoleRelay turns lines typed on the local terminal into relay updates
// and prints replies back. It exercises the whole command path without a
// network relay.
type ConsoleRelay struct {
	lines      lineReader
	operatorID string

	mu      sync.Mutex
	pending []bus.InboundMessage
	nextSeq int64
	closed  bool

	done chan struct{}
}

func NewConsoleRelay(opts ConsoleOptions) (*ConsoleRelay, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          opts.Prompt,
		HistoryFile:     opts.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open console: %w", err)
	}
	return newConsoleRelay(rl, opts.OperatorID), nil
}

func newConsoleRelay(lines lineReader, operatorID string) *ConsoleRelay {
	c := &ConsoleRelay{
		lines:      lines,
		operatorID: operatorID,
		done:       make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *ConsoleRelay) Name() string {
	return consoleName
}

func (c *ConsoleRelay) readLoop() {
	defer close(c.done)
	for {
		line, err := c.lines.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.WarnCF(consoleName, "Console input closed", map[string]any{
					"error": err.Error(),
				})
			}
			return
		}
		if line == "" {
			continue
		}
		c.push(line)
	}
}

func (c *ConsoleRelay) push(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	seq := c.nextSeq
	c.nextSeq++
	c.pending = append(c.pending, bus.InboundMessage{
		Channel:    consoleName,
		SequenceID: seq,
		SenderID:   c.operatorID,
		ChatID:     c.operatorID,
		Content:    line,
		Metadata:   map[string]string{"line": strconv.FormatInt(seq, 10)},
	})
}

// FetchBatch returns the typed lines at or after cursor and forgets the
// ones before it.
func (c *ConsoleRelay) FetchBatch(ctx context.Context, cursor int64) ([]bus.InboundMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Relay: consoleName, Op: "fetch", Kind: ErrNetworkUnavailable, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	keep := c.pending[:0]
	for _, msg := range c.pending {
		if msg.SequenceID >= cursor {
			keep = append(keep, msg)
		}
	}
	c.pending = keep

	batch := make([]bus.InboundMessage, len(keep))
	copy(batch, keep)
	return batch, nil
}

func (c *ConsoleRelay) Send(_ context.Context, _ string, text string) error {
	if _, err := c.lines.Write([]byte(text + "\n")); err != nil {
		return &Error{Relay: consoleName, Op: "send", Kind: ErrNetworkUnavailable, Err: err}
	}
	return nil
}

// Done is closed once the terminal reaches EOF.
func (c *ConsoleRelay) Done() <-chan struct{} {
	return c.done
}

func (c *ConsoleRelay) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.lines.Close()
}
