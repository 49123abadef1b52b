package process

import (
	"log/slog"
	"time"
)

// CommandProvider returns the argv for a process ID.
type CommandProvider func(id string) (args []string, err error)

// StateChangeCallback is called on every state transition.
type StateChangeCallback func(id string, oldState, newState State, err error)

// Configurer adjusts a Process before it starts.
type Configurer func(id string, proc *Process)

// PoolOptions configures a new Pool.
type PoolOptions struct {
	// CommandProvider is required.
	CommandProvider CommandProvider

	OnStateChange    StateChangeCallback
	ConfigureProcess Configurer

	// StopTimeout bounds Stop. Default 10s.
	StopTimeout time.Duration

	Logger *slog.Logger
}
