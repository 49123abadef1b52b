// Package publisher is the producer facade over a frame transport. It
// validates frames, keeps throughput counters and watches consumer liveness.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sceneit/vcam/internal/events"
	"github.com/sceneit/vcam/internal/frame"
	"github.com/sceneit/vcam/internal/metrics"
)

// FrameChannel is a transport the publisher can hand frames to.
type FrameChannel interface {
	Open(ctx context.Context) error
	// Publish accepts or refuses f without blocking. done, when non-nil,
	// receives the delivery result, possibly on another goroutine.
	Publish(f frame.Frame, done func(ok bool)) bool
	Close() error
	IsConnected() bool
}

// Defaults.
const (
	DefaultHeartbeat = 2 * time.Second
	DefaultPerfLog   = 5 * time.Second
	fpsWindow        = time.Second
)

// Options configures a Publisher.
type Options struct {
	// Transport labels metrics and events.
	Transport string
	Heartbeat time.Duration
	PerfLog   time.Duration
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Stats is a snapshot of the publisher counters.
type Stats struct {
	FPS               float64 `json:"fps" example:"29.97"`
	Published         uint64  `json:"published"`
	Delivered         uint64  `json:"delivered"`
	Failed            uint64  `json:"failed"`
	Dropped           uint64  `json:"dropped"`
	Rejected          uint64  `json:"rejected"`
	ConsumerConnected bool    `json:"consumer_connected"`
}

// Publisher hands validated frames to a FrameChannel.
type Publisher struct {
	ch     FrameChannel
	bus    *events.Bus
	opts   Options
	logger *slog.Logger

	published atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64
	connected atomic.Bool

	mu          sync.Mutex
	windowStart time.Time
	windowCount int
	fps         float64
}

// New creates a publisher over ch. bus may be nil.
func New(ch FrameChannel, bus *events.Bus, opts Options) *Publisher {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.PerfLog <= 0 {
		opts.PerfLog = DefaultPerfLog
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Publisher{
		ch:     ch,
		bus:    bus,
		opts:   opts,
		logger: opts.Logger.With("component", "publisher", "transport", opts.Transport),
	}
}

// Open opens the underlying channel.
func (p *Publisher) Open(ctx context.Context) error {
	return p.ch.Open(ctx)
}

// Close closes the underlying channel.
func (p *Publisher) Close() error {
	return p.ch.Close()
}

// Publish validates f and offers it to the channel. False means the frame
// was dropped; the caller carries on with the next one.
func (p *Publisher) Publish(f frame.Frame) bool {
	if err := frame.Validate(f); err != nil {
		p.rejected.Add(1)
		metrics.IncPublisherFrames(p.opts.Transport, metrics.OutcomeRejected)
		p.logger.Debug("Rejecting frame", "sequence", f.Sequence, "error", err)
		return false
	}

	ok := p.ch.Publish(f, p.delivery)
	if ok {
		p.published.Add(1)
		metrics.IncPublisherFrames(p.opts.Transport, metrics.OutcomePublished)
	} else {
		p.dropped.Add(1)
		metrics.IncPublisherFrames(p.opts.Transport, metrics.OutcomeDropped)
	}
	p.tick(ok)
	return ok
}

func (p *Publisher) delivery(ok bool) {
	if ok {
		p.delivered.Add(1)
	} else {
		p.failed.Add(1)
	}
}

// tick counts an accepted frame into the FPS window and closes the window
// once it spans a full second.
func (p *Publisher) tick(accepted bool) {
	now := p.opts.Clock()

	p.mu.Lock()
	if p.windowStart.IsZero() {
		p.windowStart = now
		p.mu.Unlock()
		return
	}
	if accepted {
		p.windowCount++
	}
	elapsed := now.Sub(p.windowStart)
	if elapsed < fpsWindow {
		p.mu.Unlock()
		return
	}
	fps := float64(p.windowCount) / elapsed.Seconds()
	p.fps = fps
	p.windowStart = now
	p.windowCount = 0
	p.mu.Unlock()

	metrics.SetPublisherFPS(p.opts.Transport, fps)
	p.bus.Publish(events.FrameRateUpdatedEvent{
		FPS:       fps,
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Rejected:  p.rejected.Load(),
		Timestamp: events.Now(),
	})
}

// FPS returns the frame rate of the last closed window.
func (p *Publisher) FPS() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fps
}

// IsConsumerConnected asks the channel whether its consumer is reachable.
func (p *Publisher) IsConsumerConnected() bool {
	return p.ch.IsConnected()
}

// Stats returns the counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		FPS:               p.FPS(),
		Published:         p.published.Load(),
		Delivered:         p.delivered.Load(),
		Failed:            p.failed.Load(),
		Dropped:           p.dropped.Load(),
		Rejected:          p.rejected.Load(),
		ConsumerConnected: p.connected.Load(),
	}
}

// Monitor polls consumer liveness every heartbeat and posts a
// ConsumerConnectionChangedEvent on each edge. It also logs throughput at
// debug level. It returns when ctx is done.
func (p *Publisher) Monitor(ctx context.Context) {
	heartbeat := time.NewTicker(p.opts.Heartbeat)
	defer heartbeat.Stop()
	perf := time.NewTicker(p.opts.PerfLog)
	defer perf.Stop()

	p.poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			p.poll()
		case <-perf.C:
			s := p.Stats()
			p.logger.Debug("Publisher performance",
				"fps", s.FPS,
				"published", s.Published,
				"delivered", s.Delivered,
				"dropped", s.Dropped,
				"rejected", s.Rejected)
		}
	}
}

func (p *Publisher) poll() {
	now := p.IsConsumerConnected()
	if p.connected.Swap(now) == now {
		return
	}
	metrics.SetConsumerConnected(p.opts.Transport, now)
	if now {
		p.logger.Info("Consumer connected")
	} else {
		p.logger.Warn("Consumer disconnected")
	}
	p.bus.Publish(events.ConsumerConnectionChangedEvent{
		Connected: now,
		Timestamp: events.Now(),
	})
}
