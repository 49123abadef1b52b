package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser extracts a level and message from one output line.
type LogParser func(line string) (level, msg string)

// exitKilled is reported when the child had to be force-killed.
const exitKilled = 137

// Process runs one subprocess until it exits or Shutdown is called.
type Process struct {
	id     string
	args   []string
	env    []string
	logger *slog.Logger

	outputLogger  *slog.Logger
	parser        LogParser
	outputHandler OutputHandler

	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	cmd *exec.Cmd

	gracefulTimeout time.Duration
	killTimeout     time.Duration
}

// New creates a process for argv args. Nothing runs until Run.
func New(id string, args []string, logger *slog.Logger) *Process {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Process{
		id:              id,
		args:            append([]string(nil), args...),
		logger:          logger.With("process", id),
		ctx:             ctx,
		cancel:          cancel,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
}

// Args returns the command line.
func (p *Process) Args() []string {
	return append([]string(nil), p.args...)
}

// SetEnv appends KEY=VALUE pairs to the inherited environment.
func (p *Process) SetEnv(env ...string) {
	p.env = append(p.env, env...)
}

// SetOutputLogger routes child output through logger, using parser to pick
// the level of each line. A nil parser logs every line at info.
func (p *Process) SetOutputLogger(logger *slog.Logger, parser LogParser) {
	p.outputLogger = logger
	p.parser = parser
}

// SetOutputHandler receives every raw output line.
func (p *Process) SetOutputHandler(h OutputHandler) {
	p.outputHandler = h
}

// PID returns the child pid, or zero when not running.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Shutdown asks a running child to exit. Safe before Run and after exit.
func (p *Process) Shutdown() {
	p.cancel()
}

// Run starts the child and blocks until it exits. It returns the exit code:
// 1 when the child could not be started, 137 when it had to be killed.
func (p *Process) Run() int {
	done, outputs, err := p.start()
	if err != nil {
		return 1
	}
	defer func() {
		<-outputs
		<-outputs
	}()

	select {
	case <-p.ctx.Done():
		p.logger.Info("Stopping child")
		p.signal(syscall.SIGINT)
		return p.waitForExit(done)
	case waitErr := <-done:
		code := exitCode(waitErr)
		if waitErr != nil && code == 1 {
			p.logger.Error("Child exited with error", "error", waitErr)
		}
		p.logger.Info("Child exited", "exit_code", code)
		return code
	}
}

func (p *Process) start() (<-chan error, <-chan struct{}, error) {
	if len(p.args) == 0 || p.args[0] == "" {
		p.logger.Error("Empty command")
		return nil, nil, errors.New("empty command")
	}
	if p.ctx.Err() != nil {
		return nil, nil, p.ctx.Err()
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start child", "error", err, "command", strings.Join(p.args, " "))
		return nil, nil, err
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()
	p.logger.Info("Child started", "pid", cmd.Process.Pid, "command", strings.Join(p.args, " "))

	outputs := make(chan struct{}, 2)
	go func() { p.stream(stdout, "stdout"); outputs <- struct{}{} }()
	go func() { p.stream(stderr, "stderr"); outputs <- struct{}{} }()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	return done, outputs, nil
}

func (p *Process) signal(sig syscall.Signal) {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to signal child", "signal", sig.String(), "error", err)
	}
}

// waitForExit waits out the grace period, then kills the child.
func (p *Process) waitForExit(done <-chan error) int {
	select {
	case err := <-done:
		return exitCode(err)
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Grace period elapsed, killing child", "timeout", p.gracefulTimeout)
	p.signal(syscall.SIGKILL)
	select {
	case <-done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Child did not exit after kill")
	}
	return exitKilled
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func (p *Process) stream(r io.Reader, source string) {
	logger := p.outputLogger
	if logger == nil {
		logger = p.logger
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		level, msg := "info", line
		if p.parser != nil {
			level, msg = p.parser(line)
		}
		switch level {
		case "error":
			logger.Error(msg, "source", source)
		case "warn":
			logger.Warn(msg, "source", source)
		case "debug":
			logger.Debug(msg, "source", source)
		default:
			logger.Info(msg, "source", source)
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading child output", "source", source, "error", err)
	}
}

// ParseSlogLine reads the level of a line written by slog's text handler,
// such as `time=... level=WARN msg="..."`. Other lines are info.
func ParseSlogLine(line string) (level, msg string) {
	idx := strings.Index(line, "level=")
	if idx < 0 {
		return "info", line
	}
	rest := line[idx+len("level="):]
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		rest = rest[:end]
	}
	switch strings.ToUpper(rest) {
	case "ERROR":
		return "error", line
	case "WARN":
		return "warn", line
	case "DEBUG":
		return "debug", line
	default:
		return "info", line
	}
}
