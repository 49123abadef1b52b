package installer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/sceneit/vcam/internal/msgchannel"
	natsrpc "github.com/sceneit/vcam/internal/nats"
	"github.com/sceneit/vcam/internal/process"
)

// ExtensionID names the extension in the process pool.
const ExtensionID = "extension"

// ProcessOptions configures a ProcessActivator.
type ProcessOptions struct {
	// Executable defaults to the running binary.
	Executable string
	// Args follow the executable, for example {"extension", "--nats-port", "4223"}.
	Args []string
	Env  []string

	// ReadyURL is the NATS URL probed until the extension answers.
	ReadyURL     string
	ReadyTimeout time.Duration
	ReadyPoll    time.Duration

	Logger *slog.Logger
	// OutputLogger receives the extension's log lines. Defaults to Logger.
	OutputLogger *slog.Logger
}

// ProcessActivator runs the extension as a supervised child process.
type ProcessActivator struct {
	opts   ProcessOptions
	pool   process.Pool
	logger *slog.Logger

	mu     sync.Mutex
	onExit func(error)
}

// NewProcessActivator returns an activator for opts.
func NewProcessActivator(opts ProcessOptions) (*ProcessActivator, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OutputLogger == nil {
		opts.OutputLogger = opts.Logger
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}
	if opts.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		opts.Executable = exe
	}

	a := &ProcessActivator{
		opts:   opts,
		logger: opts.Logger.With("component", "extension-activator"),
	}
	a.pool = process.NewPool(&process.PoolOptions{
		CommandProvider: func(string) ([]string, error) {
			return append([]string{a.opts.Executable}, a.opts.Args...), nil
		},
		ConfigureProcess: func(_ string, proc *process.Process) {
			proc.SetEnv(a.opts.Env...)
			proc.SetOutputLogger(a.opts.OutputLogger, process.ParseSlogLine)
		},
		OnStateChange: a.stateChanged,
		Logger:        opts.Logger,
	})
	return a, nil
}

// OnExit registers fn for unexpected exits of a running extension.
func (a *ProcessActivator) OnExit(fn func(error)) {
	a.mu.Lock()
	a.onExit = fn
	a.mu.Unlock()
}

// Activate implements Activator.
func (a *ProcessActivator) Activate(ctx context.Context) Result {
	if res, ok := a.checkExecutable(); !ok {
		return res
	}
	if a.pool.IsRunning(ExtensionID) {
		_ = a.pool.Stop(ExtensionID)
	}
	if err := a.pool.Start(ExtensionID); err != nil {
		return Result{Outcome: OutcomeFailed, Reason: err.Error()}
	}
	if a.opts.ReadyURL == "" {
		return Result{Outcome: OutcomeCompleted}
	}

	st, err := awaitReady(ctx, a.opts.ReadyURL, a.opts.ReadyTimeout, a.opts.ReadyPoll, a.logger)
	if err != nil {
		_ = a.pool.Stop(ExtensionID)
		if ctx.Err() != nil {
			return Result{Outcome: OutcomeSuperseded}
		}
		if info := a.pool.GetStatus(ExtensionID); info.LastError != nil {
			return Result{Outcome: OutcomeFailed, Reason: info.LastError.Error()}
		}
		return Result{Outcome: OutcomeFailed, Reason: fmt.Sprintf("extension did not become ready within %s", a.opts.ReadyTimeout)}
	}
	a.logger.Info("Extension ready", "pid", a.pool.GetStatus(ExtensionID).PID, "message", st.Message)
	return Result{Outcome: OutcomeCompleted}
}

// Deactivate implements Activator.
func (a *ProcessActivator) Deactivate(context.Context) error {
	return a.pool.Stop(ExtensionID)
}

// Info returns the supervised process state.
func (a *ProcessActivator) Info() *process.Info {
	return a.pool.GetStatus(ExtensionID)
}

// Close stops the extension.
func (a *ProcessActivator) Close() {
	a.pool.StopAll()
}

func (a *ProcessActivator) checkExecutable() (Result, bool) {
	fi, err := os.Stat(a.opts.Executable)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Result{Outcome: OutcomeFailed, Reason: "extension binary not found"}, false
	case errors.Is(err, fs.ErrPermission):
		return Result{Outcome: OutcomeNeedsApproval, Reason: "permission denied reading the extension binary"}, false
	case err != nil:
		return Result{Outcome: OutcomeFailed, Reason: err.Error()}, false
	case fi.Mode()&0o111 == 0:
		return Result{Outcome: OutcomeNeedsApproval, Reason: "extension binary is not executable"}, false
	}
	return Result{}, true
}

func (a *ProcessActivator) stateChanged(_ string, old, next process.State, err error) {
	if next != process.StateError && !(old == process.StateRunning && next == process.StateIdle) {
		return
	}
	a.mu.Lock()
	fn := a.onExit
	a.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// awaitReady probes url until the extension answers or timeout elapses.
func awaitReady(ctx context.Context, url string, timeout, poll time.Duration, logger *slog.Logger) (msgchannel.Status, error) {
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return natsrpc.WaitReady(readyCtx, url, poll, logger)
}
