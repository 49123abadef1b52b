package process

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func loopCommand(id string) ([]string, error) {
	return []string{"sh", "-c", fmt.Sprintf("trap 'exit 0' INT TERM; echo %s; while :; do sleep 0.1; done", id)}, nil
}

type transitionLog struct {
	mu    sync.Mutex
	steps []State
	errs  []error
}

func (l *transitionLog) record(_ string, _, next State, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, next)
	if err != nil {
		l.errs = append(l.errs, err)
	}
}

func (l *transitionLog) snapshot() ([]State, []error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.steps...), append([]error(nil), l.errs...)
}

func TestPoolStartStop(t *testing.T) {
	log := &transitionLog{}
	pool := NewPool(&PoolOptions{CommandProvider: loopCommand, OnStateChange: log.record, Logger: testLogger()})

	if err := pool.Start("ext"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if !pool.IsRunning("ext") {
		t.Fatal("expected process to be running")
	}
	info := pool.GetStatus("ext")
	if info.PID == 0 || info.Starts != 1 {
		t.Errorf("unexpected info %+v", info)
	}

	if err := pool.Stop("ext"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if pool.IsRunning("ext") {
		t.Error("expected process to be stopped")
	}

	steps, errs := log.snapshot()
	want := []State{StateStarting, StateRunning, StateStopping, StateIdle}
	if fmt.Sprint(steps) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", steps, want)
	}
	if len(errs) != 0 {
		t.Errorf("unexpected errors %v", errs)
	}
}

func TestPoolStartAlreadyRunning(t *testing.T) {
	pool := NewPool(&PoolOptions{CommandProvider: loopCommand, Logger: testLogger()})
	if err := pool.Start("ext"); err != nil {
		t.Fatal(err)
	}
	defer pool.StopAll()

	time.Sleep(50 * time.Millisecond)
	if err := pool.Start("ext"); err == nil {
		t.Error("expected error when starting a running process")
	}
}

func TestPoolUnknownIsIdle(t *testing.T) {
	pool := NewPool(&PoolOptions{CommandProvider: loopCommand, Logger: testLogger()})
	info := pool.GetStatus("nope")
	if info.State != StateIdle || info.ID != "nope" {
		t.Errorf("unexpected info %+v", info)
	}
	if err := pool.Stop("nope"); err != nil {
		t.Errorf("Stop of unknown id: %v", err)
	}
}

func TestPoolRestart(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	pool := NewPool(&PoolOptions{
		CommandProvider: func(id string) ([]string, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return loopCommand(id)
		},
		Logger: testLogger(),
	})
	defer pool.StopAll()

	if err := pool.Start("ext"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := pool.Restart("ext"); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("CommandProvider called %d times, want 2", calls)
	}
	if got := pool.GetStatus("ext").Starts; got != 2 {
		t.Errorf("Starts = %d, want 2", got)
	}
}

func TestPoolStopAll(t *testing.T) {
	pool := NewPool(&PoolOptions{CommandProvider: loopCommand, Logger: testLogger()})
	_ = pool.Start("a")
	_ = pool.Start("b")
	time.Sleep(50 * time.Millisecond)

	pool.StopAll()

	if pool.IsRunning("a") || pool.IsRunning("b") {
		t.Error("expected every process stopped")
	}
	if err := pool.Start("a"); err == nil {
		t.Error("Start after StopAll should fail")
	}
}

func TestPoolCrashReportsError(t *testing.T) {
	log := &transitionLog{}
	pool := NewPool(&PoolOptions{
		CommandProvider: func(string) ([]string, error) {
			return []string{"sh", "-c", "exit 42"}, nil
		},
		OnStateChange: log.record,
		Logger:        testLogger(),
	})

	if err := pool.Start("ext"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	info := pool.GetStatus("ext")
	if info.State != StateError || info.LastError == nil {
		t.Errorf("unexpected info %+v", info)
	}
	steps, errs := log.snapshot()
	if len(steps) == 0 || steps[len(steps)-1] != StateError {
		t.Errorf("transitions = %v, want final error", steps)
	}
	if len(errs) == 0 {
		t.Error("expected callback to receive the exit error")
	}

	if err := pool.Start("ext"); err != nil {
		t.Errorf("a crashed process should be restartable: %v", err)
	}
	pool.StopAll()
}

func TestPoolConfigureProcess(t *testing.T) {
	var configured string
	pool := NewPool(&PoolOptions{
		CommandProvider: func(string) ([]string, error) { return []string{"true"}, nil },
		ConfigureProcess: func(id string, proc *Process) {
			configured = id
			proc.SetOutputLogger(testLogger(), ParseSlogLine)
		},
		Logger: testLogger(),
	})
	_ = pool.Start("ext")
	pool.StopAll()

	if configured != "ext" {
		t.Errorf("ConfigureProcess saw %q", configured)
	}
}

func TestPoolCommandProviderError(t *testing.T) {
	pool := NewPool(&PoolOptions{
		CommandProvider: func(id string) ([]string, error) {
			return nil, fmt.Errorf("no binary for %s", id)
		},
		Logger: testLogger(),
	})
	if err := pool.Start("ext"); err == nil {
		t.Error("expected CommandProvider error")
	}
}

func TestNewPoolPanicsWithoutCommandProvider(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic")
		}
	}()
	NewPool(nil)
}
