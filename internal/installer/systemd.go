package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
)

// D-Bus error names that change the outcome of an activation.
const (
	dbusNoSuchUnit   = "org.freedesktop.systemd1.NoSuchUnit"
	dbusUnitMasked   = "org.freedesktop.systemd1.UnitMasked"
	dbusAccessDenied = "org.freedesktop.DBus.Error.AccessDenied"
	dbusInteractive  = "org.freedesktop.DBus.Error.InteractiveAuthorizationRequired"
)

// SystemdOptions configures a SystemdActivator.
type SystemdOptions struct {
	// Unit is the user unit running `vcam extension`, such as vcam-extension.service.
	Unit string

	ReadyURL     string
	ReadyTimeout time.Duration
	ReadyPoll    time.Duration

	Logger *slog.Logger
}

// SystemdActivator runs the extension as a systemd user unit over D-Bus.
type SystemdActivator struct {
	opts   SystemdOptions
	logger *slog.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewSystemdActivator returns an activator for opts. The D-Bus connection is
// opened on first use.
func NewSystemdActivator(opts SystemdOptions) *SystemdActivator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}
	return &SystemdActivator{
		opts:   opts,
		logger: opts.Logger.With("component", "extension-activator", "unit", opts.Unit),
	}
}

func (a *SystemdActivator) connect(ctx context.Context) (*dbus.Conn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil && a.conn.Connected() {
		return a.conn, nil
	}
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, err
	}
	a.conn = conn
	return conn, nil
}

// Activate implements Activator. It restarts the unit so a stale extension is
// replaced, then waits for it to answer.
func (a *SystemdActivator) Activate(ctx context.Context) Result {
	conn, err := a.connect(ctx)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Reason: fmt.Sprintf("user D-Bus unavailable: %v", err)}
	}

	done := make(chan string, 1)
	if _, err := conn.RestartUnitContext(ctx, a.opts.Unit, "replace", done); err != nil {
		if ctx.Err() != nil {
			return Result{Outcome: OutcomeSuperseded}
		}
		return dbusResult(err)
	}
	select {
	case job := <-done:
		if res, ok := jobResult(job); !ok {
			return res
		}
	case <-ctx.Done():
		return Result{Outcome: OutcomeSuperseded}
	}

	if a.opts.ReadyURL == "" {
		return Result{Outcome: OutcomeCompleted}
	}
	st, err := awaitReady(ctx, a.opts.ReadyURL, a.opts.ReadyTimeout, a.opts.ReadyPoll, a.logger)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Outcome: OutcomeSuperseded}
		}
		return Result{Outcome: OutcomeFailed, Reason: fmt.Sprintf("extension did not become ready within %s", a.opts.ReadyTimeout)}
	}
	a.logger.Info("Extension ready", "message", st.Message)
	return Result{Outcome: OutcomeCompleted}
}

// Deactivate implements Activator.
func (a *SystemdActivator) Deactivate(ctx context.Context) error {
	conn, err := a.connect(ctx)
	if err != nil {
		return err
	}
	done := make(chan string, 1)
	if _, err := conn.StopUnitContext(ctx, a.opts.Unit, "replace", done); err != nil {
		return err
	}
	select {
	case job := <-done:
		if job != "done" {
			return fmt.Errorf("stop %s: job %s", a.opts.Unit, job)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UnitState returns the unit's ActiveState, such as "active" or "failed".
func (a *SystemdActivator) UnitState(ctx context.Context) (string, error) {
	conn, err := a.connect(ctx)
	if err != nil {
		return "", err
	}
	prop, err := conn.GetUnitPropertyContext(ctx, a.opts.Unit, "ActiveState")
	if err != nil {
		return "", err
	}
	state, ok := prop.Value.Value().(string)
	if !ok {
		return "", fmt.Errorf("unexpected ActiveState %s", prop.Value.String())
	}
	return state, nil
}

// Close releases the D-Bus connection.
func (a *SystemdActivator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
}

// jobResult maps a systemd job result. ok is true only for "done".
func jobResult(job string) (Result, bool) {
	switch job {
	case "done":
		return Result{Outcome: OutcomeCompleted}, true
	case "canceled":
		return Result{Outcome: OutcomeSuperseded}, false
	case "dependency":
		return Result{Outcome: OutcomeFailed, Reason: "a dependency of the extension unit failed"}, false
	default:
		return Result{Outcome: OutcomeFailed, Reason: "extension unit job " + job}, false
	}
}

// dbusResult maps a D-Bus call error to an outcome.
func dbusResult(err error) Result {
	var name string
	var derr godbus.Error
	var pderr *godbus.Error
	switch {
	case errors.As(err, &derr):
		name = derr.Name
	case errors.As(err, &pderr):
		name = pderr.Name
	}
	if name != "" {
		switch name {
		case dbusAccessDenied, dbusInteractive:
			return Result{Outcome: OutcomeNeedsApproval, Reason: "Authorization required to start the extension unit"}
		case dbusNoSuchUnit:
			return Result{Outcome: OutcomeFailed, Reason: "extension unit is not installed"}
		case dbusUnitMasked:
			return Result{Outcome: OutcomeNeedsApproval, Reason: "extension unit is masked"}
		}
	}
	return Result{Outcome: OutcomeFailed, Reason: err.Error()}
}
