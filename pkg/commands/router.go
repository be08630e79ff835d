package commands

import (
	"context"

	"github.com/sipeed/relayd/pkg/device"
	"github.com/sipeed/relayd/pkg/logger"
)

type Handler func(ctx context.Context, cmd Command) Outcome

type Builtin struct {
	Name        string
	Description string
	Handler     Handler
}

// Router maps command names to handlers. Names without a handler go to the
// executor unchanged; the router never validates capability names.
type Router struct {
	builtins map[string]Builtin
	order    []string
	executor device.Executor
}

func NewRouter(executor device.Executor) *Router {
	return &Router{
		builtins: make(map[string]Builtin),
		executor: executor,
	}
}

// NewDefaultRouter returns a router with ping, info, apps and help registered.
func NewDefaultRouter(caps device.Capabilities) *Router {
	r := NewRouter(caps)
	RegisterBuiltins(r, caps)
	return r
}

// Register adds or replaces a handler. Registration order is kept for help.
func (r *Router) Register(name, description string, h Handler) {
	if _, exists := r.builtins[name]; !exists {
		r.order = append(r.order, name)
	}
	r.builtins[name] = Builtin{Name: name, Description: description, Handler: h}
}

func (r *Router) Builtins() []Builtin {
	out := make([]Builtin, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.builtins[name])
	}
	return out
}

func (r *Router) Route(ctx context.Context, cmd Command) Outcome {
	if b, ok := r.builtins[cmd.Name]; ok {
		logger.DebugCF("router", "Handling built-in command", map[string]any{
			"command": cmd.Name,
		})
		return b.Handler(ctx, cmd)
	}

	logger.DebugCF("router", "Forwarding command to executor", map[string]any{
		"command": cmd.Name,
	})
	if r.executor != nil {
		r.executor.Execute(ctx, cmd.Name, cmd.RawArgs)
	}
	return Silent()
}

// RouteText parses text and routes the resulting command.
func (r *Router) RouteText(ctx context.Context, text string) Outcome {
	return r.Route(ctx, Parse(text))
}
