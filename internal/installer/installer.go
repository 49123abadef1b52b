// Package installer drives installation and activation of the virtual camera
// extension and reports progress as InstallStatusChanged events.
package installer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sceneit/vcam/internal/events"
)

// Status is the extension's install state as shown to the user.
type Status string

const (
	StatusNotInstalled  Status = "not_installed"
	StatusInstalling    Status = "installing"
	StatusActive        Status = "active"
	StatusInactive      Status = "inactive"
	StatusNeedsApproval Status = "needs_approval"
	StatusError         Status = "error"
)

// Operational reports whether the extension can receive frames.
func (s Status) Operational() bool {
	return s == StatusActive
}

// Outcome is how an activation request ended.
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeNeedsApproval Outcome = "needs_approval"
	OutcomeFailed        Outcome = "failed"
	OutcomeSuperseded    Outcome = "superseded_or_canceled"
)

// Result is returned by an Activator. Reason is set for OutcomeFailed and
// OutcomeNeedsApproval.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Activator performs the platform side of install and removal.
type Activator interface {
	// Activate blocks until the extension is usable or the attempt ends.
	// A canceled ctx yields OutcomeSuperseded.
	Activate(ctx context.Context) Result
	Deactivate(ctx context.Context) error
}

// ErrInProgress is returned while another request is running.
var ErrInProgress = errors.New("installer: request already in progress")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("installer: closed")

// Snapshot is the current installer state.
type Snapshot struct {
	Status  Status  `json:"status"`
	Outcome Outcome `json:"outcome,omitempty"`
	Message string  `json:"message"`
}

// Service serializes install and uninstall requests against one Activator.
type Service struct {
	activator Activator
	bus       *events.Bus
	logger    *slog.Logger

	mu     sync.Mutex
	state  Snapshot
	busy   bool
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService returns a service in the not-installed state.
func NewService(activator Activator, bus *events.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		activator: activator,
		bus:       bus,
		logger:    logger.With("component", "installer"),
		state:     Snapshot{Status: StatusNotInstalled, Message: "Virtual camera extension is not installed"},
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Status returns the current state.
func (s *Service) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether a request is running.
func (s *Service) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// RequestInstall starts activation in the background.
func (s *Service) RequestInstall() error {
	if err := s.begin(StatusInstalling, "Installing virtual camera extension..."); err != nil {
		if errors.Is(err, ErrInProgress) {
			s.logger.Warn("Extension installation already in progress")
		}
		return err
	}
	s.logger.Info("Starting extension installation")

	go func() {
		defer s.wg.Done()
		res := s.activator.Activate(s.ctx)
		if s.ctx.Err() != nil && res.Outcome != OutcomeCompleted {
			res = Result{Outcome: OutcomeSuperseded}
		}
		s.finishInstall(res)
	}()
	return nil
}

// RequestUninstall starts removal in the background.
func (s *Service) RequestUninstall() error {
	if err := s.begin(StatusInactive, "Removing virtual camera extension..."); err != nil {
		if errors.Is(err, ErrInProgress) {
			s.logger.Warn("Cannot uninstall while a request is in progress")
		}
		return err
	}
	s.logger.Info("Starting extension removal")

	go func() {
		defer s.wg.Done()
		if err := s.activator.Deactivate(s.ctx); err != nil {
			s.logger.Error("Extension removal failed", "error", err)
			s.finish(StatusError, OutcomeFailed, "Removal failed: "+err.Error())
			return
		}
		s.finish(StatusNotInstalled, "", "Virtual camera extension removed")
	}()
	return nil
}

// ExtensionExited records that a running extension went away on its own.
// It is ignored unless the extension was active and no request is running.
func (s *Service) ExtensionExited(err error) {
	s.mu.Lock()
	if s.busy || s.state.Status != StatusActive {
		s.mu.Unlock()
		return
	}
	msg := "Virtual camera extension stopped"
	status := StatusInactive
	if err != nil {
		msg = "Virtual camera extension stopped unexpectedly: " + err.Error()
		status = StatusError
	}
	s.state = Snapshot{Status: status, Message: msg}
	snap := s.state
	s.mu.Unlock()

	s.logger.Warn("Extension exited", "status", status, "error", err)
	s.post(snap)
}

// Wait blocks until the running request, if any, has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels any running request and waits for it to end.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Service) begin(status Status, message string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.busy {
		s.mu.Unlock()
		return ErrInProgress
	}
	s.busy = true
	s.state = Snapshot{Status: status, Message: message}
	snap := s.state
	s.wg.Add(1)
	s.mu.Unlock()

	s.post(snap)
	return nil
}

func (s *Service) finishInstall(res Result) {
	switch res.Outcome {
	case OutcomeCompleted:
		s.logger.Info("Extension installation successful")
		s.finish(StatusActive, res.Outcome, "Virtual camera extension is active")
	case OutcomeNeedsApproval:
		s.logger.Warn("Extension needs user approval", "reason", res.Reason)
		msg := "Approval required before the extension can load"
		if res.Reason != "" {
			msg = res.Reason
		}
		s.finish(StatusNeedsApproval, res.Outcome, msg)
	case OutcomeSuperseded:
		s.logger.Info("Extension installation canceled")
		s.finish(StatusInactive, res.Outcome, "Installation was canceled")
	default:
		reason := res.Reason
		if reason == "" {
			reason = "unknown installation result"
		}
		s.logger.Error("Extension installation failed", "reason", reason)
		s.finish(StatusError, OutcomeFailed, "Installation failed: "+reason)
	}
}

func (s *Service) finish(status Status, outcome Outcome, message string) {
	s.mu.Lock()
	s.busy = false
	s.state = Snapshot{Status: status, Outcome: outcome, Message: message}
	snap := s.state
	s.mu.Unlock()

	s.logger.Info("Extension status updated", "status", status, "message", message)
	s.post(snap)
}

func (s *Service) post(snap Snapshot) {
	s.bus.Publish(events.InstallStatusChangedEvent{
		Status:    string(snap.Status),
		Outcome:   string(snap.Outcome),
		Message:   snap.Message,
		Timestamp: events.Now(),
	})
}
