// Package source provides the synthetic frame source that stands in for a
// camera when the host runs without capture hardware.
package source

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sceneit/vcam/internal/frame"
)

// ErrRunning is returned by Start on a running source.
var ErrRunning = errors.New("source already running")

// Handler receives every generated frame on the source goroutine. The
// frame is owned by the handler.
type Handler func(frame.Frame)

// Options configures a Pattern source.
type Options struct {
	Width     uint32
	Height    uint32
	FrameRate int
	// CameraID is reported by ID; the pattern ignores it.
	CameraID string
	Logger   *slog.Logger
}

// Pattern emits frame.TestPattern frames at a fixed rate.
type Pattern struct {
	width, height uint32
	logger        *slog.Logger

	fps      atomic.Int32
	camera   atomic.Value
	sequence atomic.Uint32
	emitted  atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPattern creates a stopped source.
func NewPattern(opts Options) *Pattern {
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = frame.DefaultWidth, frame.DefaultHeight
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &Pattern{
		width:  opts.Width,
		height: opts.Height,
		logger: opts.Logger.With("component", "pattern-source"),
	}
	p.SetFrameRate(opts.FrameRate)
	p.camera.Store(opts.CameraID)
	return p
}

// SetFrameRate clamps fps to 1..60. A running source picks it up on the
// next tick.
func (p *Pattern) SetFrameRate(fps int) {
	if fps <= 0 {
		fps = frame.DefaultFrameRate
	}
	p.fps.Store(int32(min(max(fps, frame.MinFrameRate), frame.MaxFrameRate)))
}

// FrameRate returns the configured rate.
func (p *Pattern) FrameRate() int {
	return int(p.fps.Load())
}

// SelectCamera records the camera the host asked for.
func (p *Pattern) SelectCamera(id string) {
	p.camera.Store(id)
	p.logger.Info("Camera selected", "camera_id", id)
}

// ID returns the selected camera identifier.
func (p *Pattern) ID() string {
	return p.camera.Load().(string)
}

// Emitted returns the number of frames produced since creation.
func (p *Pattern) Emitted() uint64 {
	return p.emitted.Load()
}

// Running reports whether the emit loop is active.
func (p *Pattern) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Start runs the emit loop until ctx is done or Stop is called.
func (p *Pattern) Start(ctx context.Context, onFrame Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, onFrame, p.done)
	p.logger.Info("Source started", "width", p.width, "height", p.height, "fps", p.FrameRate())
	return nil
}

// Stop ends the loop and waits for the final frame callback to return.
func (p *Pattern) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("Source stopped", "emitted", p.Emitted())
}

func (p *Pattern) run(ctx context.Context, onFrame Handler, done chan struct{}) {
	defer close(done)

	rate := p.FrameRate()
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if r := p.FrameRate(); r != rate {
			rate = r
			ticker.Reset(time.Second / time.Duration(rate))
		}

		seq := p.sequence.Add(1)
		f := frame.TestPattern(p.width, p.height, seq)
		f.Sequence = seq
		f.Timestamp = uint64(time.Now().UnixNano())
		p.emitted.Add(1)
		onFrame(f)
	}
}
