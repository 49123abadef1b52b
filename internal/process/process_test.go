package process

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcess(args ...string) *Process {
	p := New("test", args, testLogger())
	p.gracefulTimeout = 100 * time.Millisecond
	p.killTimeout = 100 * time.Millisecond
	return p
}

func runAsync(p *Process) <-chan int {
	done := make(chan int, 1)
	go func() { done <- p.Run() }()
	return done
}

func waitForExit(t *testing.T, done <-chan int, timeout time.Duration) int {
	t.Helper()
	select {
	case code := <-done:
		return code
	case <-time.After(timeout):
		t.Fatal("timeout waiting for process to exit")
		return -1
	}
}

func TestGracefulShutdown(t *testing.T) {
	p := newTestProcess("sh", "-c", "trap 'exit 0' INT TERM; while :; do sleep 0.1; done")
	p.gracefulTimeout = 500 * time.Millisecond

	done := runAsync(p)
	time.Sleep(100 * time.Millisecond)
	if p.PID() == 0 {
		t.Error("expected a pid while running")
	}
	p.Shutdown()

	if code := waitForExit(t, done, time.Second); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestForceKillOnTimeout(t *testing.T) {
	p := newTestProcess("sh", "-c", "trap '' INT; sleep 10")
	p.gracefulTimeout = 50 * time.Millisecond
	p.killTimeout = 50 * time.Millisecond

	done := runAsync(p)
	time.Sleep(50 * time.Millisecond)
	p.Shutdown()

	if code := waitForExit(t, done, 500*time.Millisecond); code != exitKilled {
		t.Errorf("expected exit code %d, got %d", exitKilled, code)
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"success", []string{"true"}, 0},
		{"explicit code", []string{"sh", "-c", "exit 42"}, 42},
		{"missing binary", []string{"/nonexistent/binary"}, 1},
		{"empty", nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := newTestProcess(tt.args...).Run(); code != tt.want {
				t.Errorf("Run() = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestShutdownBeforeRun(t *testing.T) {
	p := newTestProcess("sleep", "10")
	p.Shutdown()
	if code := p.Run(); code != 1 {
		t.Errorf("Run after Shutdown = %d, want 1", code)
	}
}

func TestEnvPassedToChild(t *testing.T) {
	h := &recordingHandler{}
	p := newTestProcess("sh", "-c", "echo $VCAM_TEST_VALUE")
	p.SetEnv("VCAM_TEST_VALUE=hello")
	p.SetOutputHandler(h)

	if code := p.Run(); code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if lines := h.get(); len(lines) != 1 || lines[0] != "hello" {
		t.Errorf("got lines %v", lines)
	}
}

func TestOutputHandlerSeesBothStreams(t *testing.T) {
	h := &recordingHandler{}
	p := newTestProcess("sh", "-c", "echo out; echo err 1>&2")
	p.SetOutputHandler(h)

	if code := p.Run(); code != 0 {
		t.Fatalf("exit code %d", code)
	}
	sources := map[string]bool{}
	for _, s := range h.getSources() {
		sources[s] = true
	}
	if !sources["stdout"] || !sources["stderr"] {
		t.Errorf("expected both streams, got %v", sources)
	}
}

func TestParseSlogLine(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{`time=2025-01-01T00:00:00Z level=ERROR msg="boom"`, "error"},
		{`time=2025-01-01T00:00:00Z level=WARN msg="careful"`, "warn"},
		{`time=2025-01-01T00:00:00Z level=DEBUG msg="detail"`, "debug"},
		{`time=2025-01-01T00:00:00Z level=INFO msg="hello"`, "info"},
		{`plain output`, "info"},
	}
	for _, tt := range tests {
		level, msg := ParseSlogLine(tt.line)
		if level != tt.want {
			t.Errorf("ParseSlogLine(%q) level = %q, want %q", tt.line, level, tt.want)
		}
		if msg != tt.line {
			t.Errorf("message should be the full line, got %q", msg)
		}
	}
}

func TestOutputLoggerWithParser(t *testing.T) {
	p := newTestProcess("sh", "-c", `echo 'level=ERROR msg=x'; echo 'level=DEBUG msg=y'`)
	p.SetOutputLogger(testLogger(), ParseSlogLine)
	if code := p.Run(); code != 0 {
		t.Errorf("exit code %d", code)
	}
}

type recordingHandler struct {
	mu      sync.Mutex
	lines   []string
	sources []string
}

func (h *recordingHandler) HandleLine(source, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, line)
	h.sources = append(h.sources, source)
}

func (h *recordingHandler) get() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lines...)
}

func (h *recordingHandler) getSources() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sources...)
}
