package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sceneit/vcam/internal/events"
	"github.com/sceneit/vcam/internal/frame"
	"github.com/sceneit/vcam/internal/msgchannel"
	"github.com/sceneit/vcam/internal/vdevice"
)

type sampleSink struct {
	mu      sync.Mutex
	samples []vdevice.Sample
}

func (s *sampleSink) ID() string { return "sink" }

func (s *sampleSink) Deliver(smp vdevice.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, smp)
	return nil
}

func (s *sampleSink) snapshot() []vdevice.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]vdevice.Sample(nil), s.samples...)
}

// switchedTransport refuses dials while down.
type switchedTransport struct {
	*msgchannel.LocalTransport
	mu   sync.Mutex
	down bool
}

func (t *switchedTransport) setDown(down bool) {
	t.mu.Lock()
	t.down = down
	t.mu.Unlock()
}

func (t *switchedTransport) Dial(ctx context.Context, h msgchannel.Handlers) (msgchannel.Conn, error) {
	t.mu.Lock()
	down := t.down
	t.mu.Unlock()
	if down {
		return nil, errors.New("extension restarting")
	}
	return t.LocalTransport.Dial(ctx, h)
}

func newExtension(t *testing.T) (*vdevice.Device, *vdevice.Receiver, *sampleSink) {
	t.Helper()
	desc := vdevice.NewDescriptor()
	desc.Formats = []vdevice.Format{{Width: 64, Height: 36, MinFrameRate: 1, MaxFrameRate: 60}}
	dev := vdevice.New(vdevice.Options{Descriptor: desc, Logger: testLogger()})
	if err := dev.Register(vdevice.NewRegistry(testLogger())); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	sink := &sampleSink{}
	if err := dev.Subscribe(sink); err != nil {
		t.Fatal(err)
	}
	rcv := vdevice.NewReceiver(dev, testLogger())
	_ = rcv.UpdateStreamState(true)
	return dev, rcv, sink
}

func publishPaced(p *Publisher, from, to uint32, gap time.Duration) {
	for seq := from; seq <= to; seq++ {
		f := frame.TestPattern(64, 36, seq)
		f.Sequence = seq
		p.Publish(f)
		time.Sleep(gap)
	}
}

func TestMessageChannelInterruptedMidStream(t *testing.T) {
	_, rcv, sink := newExtension(t)
	transport := &switchedTransport{LocalTransport: msgchannel.NewLocalTransport(rcv)}

	bus := events.New()
	var mu sync.Mutex
	var lost, reconnects int
	reconnected := make(chan struct{}, 1)
	defer bus.Subscribe(func(events.ConnectionLostEvent) {
		mu.Lock()
		lost++
		mu.Unlock()
	})()
	defer bus.Subscribe(func(e events.ConnectionEstablishedEvent) {
		if !e.Reconnect {
			return
		}
		mu.Lock()
		reconnects++
		mu.Unlock()
		reconnected <- struct{}{}
	})()

	ch := msgchannel.New(transport, msgchannel.Config{
		BaseDelay:      150 * time.Millisecond,
		RequestTimeout: time.Second,
		Logger:         testLogger(),
	}, bus)
	p := New(ch, bus, Options{Transport: "e2e-message", Logger: testLogger()})
	if err := p.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !p.IsConsumerConnected() {
		if time.Now().After(deadline) {
			t.Fatal("channel never connected")
		}
		time.Sleep(2 * time.Millisecond)
	}

	publishPaced(p, 1, 40, 3*time.Millisecond)

	transport.setDown(true)
	transport.Interrupt(errors.New("link reset"))
	before := p.Stats().Dropped
	publishPaced(p, 41, 60, time.Millisecond)
	if got := p.Stats().Dropped - before; got != 20 {
		t.Errorf("dropped %d frames during the outage, want 20", got)
	}

	transport.setDown(false)
	select {
	case <-reconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("no reconnect after the outage")
	}
	publishPaced(p, 61, 100, 3*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	if lost != 1 || reconnects != 1 {
		t.Errorf("lost=%d reconnects=%d, want 1 and 1", lost, reconnects)
	}
	mu.Unlock()

	samples := sink.snapshot()
	if len(samples) == 0 {
		t.Fatal("no samples reached the device")
	}
	var lastSeq uint32
	var lastPTS time.Duration
	for _, s := range samples {
		if s.Frame.Sequence <= lastSeq {
			t.Fatalf("sequence %d after %d", s.Frame.Sequence, lastSeq)
		}
		if s.Frame.Sequence > 40 && s.Frame.Sequence <= 60 {
			t.Fatalf("frame %d delivered during the outage", s.Frame.Sequence)
		}
		if s.PTS < lastPTS {
			t.Fatalf("PTS went backwards at sequence %d", s.Frame.Sequence)
		}
		lastSeq, lastPTS = s.Frame.Sequence, s.PTS
	}
	if lastSeq <= 60 {
		t.Errorf("last delivered sequence %d, want frames after the reconnect", lastSeq)
	}

	s := p.Stats()
	if s.Published+s.Dropped != 100 {
		t.Errorf("published %d + dropped %d != 100", s.Published, s.Dropped)
	}
}
