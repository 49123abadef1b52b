//go:build darwin || linux

package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/sceneit/vcam/internal/events"
	"github.com/sceneit/vcam/internal/frame"
	"github.com/sceneit/vcam/internal/framebuffer"
	"github.com/sceneit/vcam/internal/shm"
)

func TestSharedChannelLivenessFollowsRing(t *testing.T) {
	opts := shm.Options{
		Dir:    t.TempDir(),
		Layout: framebuffer.Layout{Capacity: 4, SlotDataSize: 16 * 9 * frame.BytesPerPixel},
		Logger: testLogger(),
	}
	bus := events.New()
	edges := make(chan bool, 4)
	defer bus.Subscribe(func(e events.ConsumerConnectionChangedEvent) { edges <- e.Connected })()

	producer := shm.NewProducer("publisher-liveness", opts, bus)
	p := New(producer, bus, Options{Transport: "e2e-shared", Heartbeat: 10 * time.Millisecond, Logger: testLogger()})
	if err := p.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Monitor(ctx)

	expect := func(want bool) {
		t.Helper()
		select {
		case got := <-edges:
			if got != want {
				t.Fatalf("edge = %v, want %v", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for edge %v", want)
		}
	}
	expect(true)

	// Nobody drains the ring: it fills and the consumer reads as gone.
	for i := range 6 {
		ok := p.Publish(frame.New(16, 9))
		if want := i < 4; ok != want {
			t.Errorf("frame %d accepted = %v, want %v", i, ok, want)
		}
	}
	expect(false)

	if s := p.Stats(); s.Published != 4 || s.Dropped != 2 {
		t.Errorf("Stats() = %+v", s)
	}
}
