// Package device defines the capability collaborators the command router
// talks to, and a host implementation for Linux machines.
package device

import "context"

// Executor performs a named action. It is fire-and-forget: failures are
// logged by the implementation and never returned. Unknown names must be a
// silent no-op.
type Executor interface {
	Execute(ctx context.Context, name, args string)
}

// StateReader answers the informational queries.
type StateReader interface {
	// ChargeLevel returns the battery charge in percent.
	ChargeLevel(ctx context.Context) (int, error)
	// FreeStorage returns a human readable free-space figure.
	FreeStorage(ctx context.Context) (string, error)
	// InstalledApps returns application names in a stable order.
	InstalledApps(ctx context.Context) ([]string, error)
}

type Capabilities interface {
	Executor
	StateReader
}
