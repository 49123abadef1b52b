package installer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sceneit/vcam/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeActivator struct {
	result      Result
	deactivate  error
	release     chan struct{}
	mu          sync.Mutex
	activations int
}

func (f *fakeActivator) Activate(ctx context.Context) Result {
	f.mu.Lock()
	f.activations++
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return Result{Outcome: OutcomeFailed, Reason: "interrupted"}
		}
	}
	return f.result
}

func (f *fakeActivator) Deactivate(context.Context) error {
	return f.deactivate
}

type statusLog struct {
	mu     sync.Mutex
	events []events.InstallStatusChangedEvent
}

func record(t *testing.T, bus *events.Bus) *statusLog {
	t.Helper()
	l := &statusLog{}
	t.Cleanup(bus.Subscribe(func(e events.InstallStatusChangedEvent) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, e)
	}))
	return l
}

func (l *statusLog) statuses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.Status
	}
	return out
}

func waitStatuses(t *testing.T, l *statusLog, n int) []string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := l.statuses(); len(got) >= n {
			return got
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %v", n, l.statuses())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestInitialStatus(t *testing.T) {
	s := NewService(&fakeActivator{}, nil, testLogger())
	defer s.Close()
	if got := s.Status().Status; got != StatusNotInstalled {
		t.Errorf("Status = %s, want %s", got, StatusNotInstalled)
	}
	if s.Busy() {
		t.Error("new service should not be busy")
	}
}

func TestInstallOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		result  Result
		status  Status
		message string
	}{
		{"completed", Result{Outcome: OutcomeCompleted}, StatusActive, "Virtual camera extension is active"},
		{"needs approval", Result{Outcome: OutcomeNeedsApproval}, StatusNeedsApproval, "Approval required"},
		{"failed", Result{Outcome: OutcomeFailed, Reason: "extension binary not found"}, StatusError, "Installation failed: extension binary not found"},
		{"superseded", Result{Outcome: OutcomeSuperseded}, StatusInactive, "Installation was canceled"},
		{"unknown", Result{Outcome: "weird"}, StatusError, "unknown installation result"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := events.New()
			log := record(t, bus)
			s := NewService(&fakeActivator{result: tt.result}, bus, testLogger())
			defer s.Close()

			if err := s.RequestInstall(); err != nil {
				t.Fatalf("RequestInstall() error = %v", err)
			}
			s.Wait()

			snap := s.Status()
			if snap.Status != tt.status {
				t.Errorf("Status = %s, want %s", snap.Status, tt.status)
			}
			if !strings.Contains(snap.Message, tt.message) {
				t.Errorf("Message = %q, want it to contain %q", snap.Message, tt.message)
			}
			got := waitStatuses(t, log, 2)
			if got[0] != string(StatusInstalling) || got[1] != string(tt.status) {
				t.Errorf("events = %v", got)
			}
		})
	}
}

func TestInstallInProgressRejected(t *testing.T) {
	act := &fakeActivator{result: Result{Outcome: OutcomeCompleted}, release: make(chan struct{})}
	s := NewService(act, nil, testLogger())
	defer s.Close()

	if err := s.RequestInstall(); err != nil {
		t.Fatal(err)
	}
	if err := s.RequestInstall(); !errors.Is(err, ErrInProgress) {
		t.Errorf("second RequestInstall() error = %v, want ErrInProgress", err)
	}
	if err := s.RequestUninstall(); !errors.Is(err, ErrInProgress) {
		t.Errorf("RequestUninstall() during install error = %v, want ErrInProgress", err)
	}
	if s.Status().Status != StatusInstalling {
		t.Errorf("Status = %s, want installing", s.Status().Status)
	}

	close(act.release)
	s.Wait()
	if s.Status().Status != StatusActive {
		t.Errorf("Status = %s, want active", s.Status().Status)
	}
	if act.activations != 1 {
		t.Errorf("activations = %d, want 1", act.activations)
	}
}

func TestCloseCancelsInstall(t *testing.T) {
	act := &fakeActivator{result: Result{Outcome: OutcomeCompleted}, release: make(chan struct{})}
	s := NewService(act, nil, testLogger())

	if err := s.RequestInstall(); err != nil {
		t.Fatal(err)
	}
	s.Close()

	snap := s.Status()
	if snap.Status != StatusInactive || snap.Outcome != OutcomeSuperseded {
		t.Errorf("after Close got %+v, want inactive/superseded", snap)
	}
	if err := s.RequestInstall(); !errors.Is(err, ErrClosed) {
		t.Errorf("RequestInstall() after Close error = %v, want ErrClosed", err)
	}
}

func TestUninstall(t *testing.T) {
	bus := events.New()
	log := record(t, bus)
	s := NewService(&fakeActivator{result: Result{Outcome: OutcomeCompleted}}, bus, testLogger())
	defer s.Close()

	_ = s.RequestInstall()
	s.Wait()
	if err := s.RequestUninstall(); err != nil {
		t.Fatal(err)
	}
	s.Wait()

	if got := s.Status().Status; got != StatusNotInstalled {
		t.Errorf("Status = %s, want not_installed", got)
	}
	want := []string{"installing", "active", "inactive", "not_installed"}
	got := waitStatuses(t, log, len(want))
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestUninstallFailure(t *testing.T) {
	s := NewService(&fakeActivator{deactivate: errors.New("stuck")}, nil, testLogger())
	defer s.Close()

	_ = s.RequestUninstall()
	s.Wait()
	snap := s.Status()
	if snap.Status != StatusError || !strings.Contains(snap.Message, "stuck") {
		t.Errorf("unexpected state %+v", snap)
	}
}

func TestExtensionExited(t *testing.T) {
	s := NewService(&fakeActivator{result: Result{Outcome: OutcomeCompleted}}, nil, testLogger())
	defer s.Close()

	s.ExtensionExited(errors.New("ignored"))
	if s.Status().Status != StatusNotInstalled {
		t.Error("exit before activation should be ignored")
	}

	_ = s.RequestInstall()
	s.Wait()
	s.ExtensionExited(errors.New("exit code 2"))
	snap := s.Status()
	if snap.Status != StatusError || !strings.Contains(snap.Message, "exit code 2") {
		t.Errorf("unexpected state %+v", snap)
	}

	_ = s.RequestInstall()
	s.Wait()
	s.ExtensionExited(nil)
	if got := s.Status().Status; got != StatusInactive {
		t.Errorf("clean exit Status = %s, want inactive", got)
	}
}

func TestInstructions(t *testing.T) {
	for _, st := range []Status{StatusNotInstalled, StatusInstalling, StatusActive, StatusInactive, StatusNeedsApproval, StatusError} {
		if Instructions(st) == "" {
			t.Errorf("no instructions for %s", st)
		}
	}
	if !strings.Contains(Instructions(StatusActive), "ready to use") {
		t.Error("active instructions should say the camera is ready")
	}
	s := NewService(&fakeActivator{}, nil, testLogger())
	defer s.Close()
	if s.Instructions() != Instructions(StatusNotInstalled) {
		t.Error("service instructions should follow its status")
	}
}
