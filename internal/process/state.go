package process

import "time"

// State is the lifecycle state of a supervised process.
type State string

// Process states.
const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateError    State = "error" // exited non-zero or failed to start
)

// Info is a snapshot of one supervised process.
type Info struct {
	ID        string
	State     State
	PID       int
	StartedAt time.Time
	// Starts counts launches of this ID over the pool's lifetime.
	Starts    int
	LastError error
}
