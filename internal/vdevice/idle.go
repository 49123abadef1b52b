package vdevice

import (
	"sync"
	"time"

	"github.com/sceneit/vcam/internal/frame"
)

// IdleGenerator keeps a streaming device alive with a moving test pattern
// whenever no host frame has arrived for longer than one frame interval.
type IdleGenerator struct {
	d *Device

	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
	phase   uint32
	pattern frame.Frame
}

func newIdleGenerator(d *Device) *IdleGenerator {
	return &IdleGenerator{d: d}
}

func (g *IdleGenerator) start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopCh != nil {
		return
	}
	g.stopCh = make(chan struct{})
	g.done = make(chan struct{})
	go g.run(g.stopCh, g.done)
	g.d.logger.Debug("Idle generator started")
}

func (g *IdleGenerator) stop() {
	g.mu.Lock()
	stopCh, done := g.stopCh, g.done
	g.stopCh, g.done = nil, nil
	g.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
	g.d.logger.Debug("Idle generator stopped")
}

func (g *IdleGenerator) run(stopCh, done chan struct{}) {
	defer close(done)

	interval := g.d.FrameInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-timer.C:
		}

		since, interval := g.d.sinceHostFrame()
		if since > interval {
			g.emit()
		}
		timer.Reset(interval)
	}
}

func (g *IdleGenerator) emit() {
	p := g.d.Properties()
	w, h := p.ActiveFormat.Width, p.ActiveFormat.Height
	// The gradient only advances every few frames, so re-render lazily.
	if g.pattern.Width != w || g.pattern.Height != h || g.phase%4 == 0 {
		g.pattern = frame.TestPattern(w, h, g.phase)
	}
	g.phase++
	f := g.pattern
	f.Sequence = g.phase
	f.Timestamp = uint64(time.Now().UnixNano())
	_ = g.d.consume(f, SourceIdle)
}
