package process

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Pool supervises named subprocesses.
type Pool interface {
	// Start launches id. It fails when id is already starting or running.
	Start(id string) error
	// Stop stops id gracefully. Stopping an unknown id is a no-op.
	Stop(id string) error
	Restart(id string) error
	// GetStatus returns idle info for unknown ids.
	GetStatus(id string) *Info
	IsRunning(id string) bool
	StopAll()
}

type managedProcess struct {
	proc      *Process
	id        string
	state     State
	startedAt time.Time
	lastError error
	done      chan struct{}
}

type pool struct {
	opts   PoolOptions
	logger *slog.Logger

	mu        sync.RWMutex
	processes map[string]*managedProcess
	starts    map[string]int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool. It panics without a CommandProvider.
func NewPool(opts *PoolOptions) Pool {
	if opts == nil || opts.CommandProvider == nil {
		panic("PoolOptions with CommandProvider is required")
	}

	o := *opts
	if o.StopTimeout <= 0 {
		o.StopTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &pool{
		opts:      o,
		logger:    o.Logger.With("component", "process-pool"),
		processes: make(map[string]*managedProcess),
		starts:    make(map[string]int),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (p *pool) Start(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return fmt.Errorf("pool stopped")
	}
	if mp, ok := p.processes[id]; ok && (mp.state == StateRunning || mp.state == StateStarting) {
		return fmt.Errorf("process %s already running", id)
	}

	args, err := p.opts.CommandProvider(id)
	if err != nil {
		return fmt.Errorf("failed to build command: %w", err)
	}

	mp := &managedProcess{
		id:        id,
		state:     StateStarting,
		startedAt: time.Now(),
		done:      make(chan struct{}),
		proc:      New(id, args, p.opts.Logger),
	}
	if p.opts.ConfigureProcess != nil {
		p.opts.ConfigureProcess(id, mp.proc)
	}
	p.processes[id] = mp
	p.starts[id]++

	p.notify(id, StateIdle, StateStarting, nil)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(mp.done)
		p.run(mp)
	}()
	return nil
}

func (p *pool) run(mp *managedProcess) {
	p.mu.Lock()
	if mp.state != StateStarting {
		// stopped before the goroutine got scheduled
		p.mu.Unlock()
		return
	}
	mp.state = StateRunning
	p.mu.Unlock()
	p.notify(mp.id, StateStarting, StateRunning, nil)

	code := mp.proc.Run()

	p.mu.Lock()
	old := mp.state
	switch {
	case old == StateStopping:
		mp.state = StateIdle
	case code != 0:
		mp.state = StateError
		mp.lastError = fmt.Errorf("process exited with code %d", code)
	default:
		mp.state = StateIdle
	}
	next, lastErr := mp.state, mp.lastError
	p.mu.Unlock()

	if next == StateError {
		p.logger.Error("Process crashed", "id", mp.id, "exit_code", code)
	}
	p.notify(mp.id, old, next, lastErr)
}

func (p *pool) Stop(id string) error {
	p.mu.Lock()
	mp, ok := p.processes[id]
	if !ok || (mp.state != StateRunning && mp.state != StateStarting) {
		p.mu.Unlock()
		return nil
	}
	old := mp.state
	mp.state = StateStopping
	p.mu.Unlock()

	p.notify(id, old, StateStopping, nil)
	p.logger.Info("Stopping process", "id", id)
	mp.proc.Shutdown()

	var err error
	select {
	case <-mp.done:
	case <-time.After(p.opts.StopTimeout):
		err = fmt.Errorf("process %s did not stop within %s", id, p.opts.StopTimeout)
		p.logger.Warn("Timeout waiting for process to stop", "id", id)
	}

	p.mu.Lock()
	if old == StateStarting {
		// run returned before reaching Run; report the final edge here
		mp.state = StateIdle
	}
	delete(p.processes, id)
	p.mu.Unlock()
	if old == StateStarting {
		p.notify(id, StateStopping, StateIdle, nil)
	}
	return err
}

func (p *pool) Restart(id string) error {
	p.logger.Info("Restarting process", "id", id)
	if err := p.Stop(id); err != nil {
		return fmt.Errorf("failed to stop process: %w", err)
	}
	return p.Start(id)
}

func (p *pool) GetStatus(id string) *Info {
	p.mu.RLock()
	defer p.mu.RUnlock()

	mp, ok := p.processes[id]
	if !ok {
		return &Info{ID: id, State: StateIdle, Starts: p.starts[id]}
	}
	return &Info{
		ID:        id,
		State:     mp.state,
		PID:       mp.proc.PID(),
		StartedAt: mp.startedAt,
		Starts:    p.starts[id],
		LastError: mp.lastError,
	}
}

func (p *pool) IsRunning(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	mp, ok := p.processes[id]
	return ok && mp.state == StateRunning
}

func (p *pool) StopAll() {
	p.logger.Info("Stopping all processes")

	p.mu.Lock()
	p.cancel()
	ids := make([]string, 0, len(p.processes))
	for id := range p.processes {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		_ = p.Stop(id)
	}
	p.wg.Wait()
}

func (p *pool) notify(id string, oldState, newState State, err error) {
	if p.opts.OnStateChange != nil {
		p.opts.OnStateChange(id, oldState, newState, err)
	}
}
