//go:build darwin || linux

package shm

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sceneit/vcam/internal/events"
	"github.com/sceneit/vcam/internal/frame"
	"github.com/sceneit/vcam/internal/framebuffer"
)

// TransportName labels events and metrics from this transport.
const TransportName = "shared"

// Producer is the host-side shared-memory FrameChannel.
type Producer struct {
	name   string
	opts   Options
	bus    *events.Bus
	logger *slog.Logger

	mu sync.RWMutex
	ch *Channel
}

// NewProducer creates a producer for the named segment. bus may be nil.
func NewProducer(name string, opts Options, bus *events.Bus) *Producer {
	opts = opts.withDefaults()
	return &Producer{
		name:   name,
		opts:   opts,
		bus:    bus,
		logger: opts.Logger.With("component", "shm-producer"),
	}
}

// Open opens or attaches the segment. Opening an already open producer is a no-op.
func (p *Producer) Open(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		return nil
	}
	ch, err := Open(p.name, p.opts)
	if err != nil {
		p.logger.Error("Failed to open shared channel", "error", err)
		return err
	}
	p.ch = ch
	p.bus.Publish(events.ConnectionEstablishedEvent{
		Transport: TransportName,
		Attempts:  1,
		Timestamp: events.Now(),
	})
	return nil
}

// Publish writes f into the ring. done, when non-nil, is called
// synchronously with the result. A removed segment closes the channel and
// posts a ConnectionLostEvent.
func (p *Producer) Publish(f frame.Frame, done func(ok bool)) bool {
	ok := p.write(f)
	if done != nil {
		done(ok)
	}
	return ok
}

func (p *Producer) write(f frame.Frame) bool {
	p.mu.RLock()
	ch := p.ch
	p.mu.RUnlock()
	if ch == nil {
		return false
	}

	err := ch.Write(f)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrConsumerGone) {
		p.lost(ch, err)
	}
	return false
}

// lost drops the channel after the peer removed the segment.
func (p *Producer) lost(ch *Channel, cause error) {
	p.mu.Lock()
	if p.ch != ch {
		p.mu.Unlock()
		return
	}
	p.ch = nil
	p.mu.Unlock()

	p.logger.Warn("Consumer gone, shared channel dropped", "error", cause)
	_ = ch.Close()
	p.bus.Publish(events.ConnectionLostEvent{
		Transport: TransportName,
		Reason:    CodeConsumerGone,
		Timestamp: events.Now(),
	})
}

// IsConnected mirrors the plugin-connected heuristic of the shared path: the
// segment is open and the consumer has kept the ring from filling up.
func (p *Producer) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ch != nil && !p.ch.Ring().Full()
}

// Len returns the unread frame count, or zero when closed.
func (p *Producer) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.ch == nil {
		return 0
	}
	return p.ch.Ring().Len()
}

// Stats returns the ring counters, or zero stats when closed.
func (p *Producer) Stats() framebuffer.Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.ch == nil {
		return framebuffer.Stats{}
	}
	return p.ch.Ring().Stats()
}

// Close releases the segment.
func (p *Producer) Close() error {
	p.mu.Lock()
	ch := p.ch
	p.ch = nil
	p.mu.Unlock()

	if ch == nil {
		return nil
	}
	return ch.Close()
}
