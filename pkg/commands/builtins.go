package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/sipeed/relayd/pkg/device"
)

const (
	PongReply = "Pong! Device is online."

	// MaxListedApps caps the apps reply.
	MaxListedApps = 20

	infoTemplate = "Battery: %d%%\nStorage: %s"
)

func RegisterBuiltins(r *Router, state device.StateReader) {
	r.Register("ping", "Check that the device is online", pingHandler)
	r.Register("info", "Battery level and free storage", infoHandler(state))
	r.Register("apps", fmt.Sprintf("First %d installed applications", MaxListedApps), appsHandler(state))
	r.Register("help", "List built-in commands", helpHandler(r))
}

func pingHandler(context.Context, Command) Outcome {
	return ReplyWith(PongReply)
}

func infoHandler(state device.StateReader) Handler {
	return func(ctx context.Context, _ Command) Outcome {
		level, err := state.ChargeLevel(ctx)
		if err != nil {
			return Failure(fmt.Errorf("read charge level: %w", err))
		}
		free, err := state.FreeStorage(ctx)
		if err != nil {
			return Failure(fmt.Errorf("read free storage: %w", err))
		}
		return ReplyWith(fmt.Sprintf(infoTemplate, level, free))
	}
}

func appsHandler(state device.StateReader) Handler {
	return func(ctx context.Context, _ Command) Outcome {
		apps, err := state.InstalledApps(ctx)
		if err != nil {
			return Failure(fmt.Errorf("list installed apps: %w", err))
		}
		if len(apps) > MaxListedApps {
			apps = apps[:MaxListedApps]
		}
		return ReplyWith(strings.Join(apps, "\n"))
	}
}

func helpHandler(r *Router) Handler {
	return func(context.Context, Command) Outcome {
		var sb strings.Builder
		sb.WriteString("Available commands:")
		for _, b := range r.Builtins() {
			fmt.Fprintf(&sb, "\n%s%s - %s", Marker, b.Name, b.Description)
		}
		sb.WriteString("\nAny other command is passed to the device executor.")
		return ReplyWith(sb.String())
	}
}
