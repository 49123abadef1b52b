//go:build darwin || linux

package shm

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sceneit/vcam/internal/events"
	"github.com/sceneit/vcam/internal/frame"
	"github.com/sceneit/vcam/internal/framebuffer"
)

const (
	testWidth  = 32
	testHeight = 16
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Dir:        t.TempDir(),
		SignalName: "test.signal",
		Layout:     framebuffer.Layout{Capacity: 8, SlotDataSize: testWidth * testHeight * frame.BytesPerPixel},
		Logger:     testLogger(),
	}
}

func testFrame(seq uint32) frame.Frame {
	f := frame.New(testWidth, testHeight)
	f.Sequence = seq
	f.Timestamp = uint64(seq)
	f.Data[0] = byte(seq)
	return f
}

func TestOpenCreatesThenAttaches(t *testing.T) {
	opts := testOptions(t)

	creator, err := Open("seg", opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer creator.Close()

	attacher, err := Open("seg", opts)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer attacher.Close()

	if !creator.Created() || attacher.Created() {
		t.Fatalf("Created() = %v/%v, want true/false", creator.Created(), attacher.Created())
	}

	if err := attacher.Write(testFrame(1)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, ok := creator.TryRead()
	if !ok || got.Sequence != 1 || got.Data[0] != 1 {
		t.Fatalf("TryRead() = %+v, %v", got.Sequence, ok)
	}
	if attacher.Ring().Len() != 0 {
		t.Errorf("producer still sees %d frames after consumer read", attacher.Ring().Len())
	}
}

func TestCloseUnlinksOnlyWhenCreator(t *testing.T) {
	opts := testOptions(t)
	segPath := filepath.Join(opts.Dir, "seg")
	sigPath := filepath.Join(opts.Dir, opts.SignalName)

	creator, err := Open("seg", opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	attacher, err := Open("seg", opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := attacher.Close(); err != nil {
		t.Fatalf("attacher Close() error = %v", err)
	}
	if _, err := os.Stat(segPath); err != nil {
		t.Fatalf("segment removed by non-creator: %v", err)
	}

	if err := creator.Close(); err != nil {
		t.Fatalf("creator Close() error = %v", err)
	}
	for _, p := range []string{segPath, sigPath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still exists after creator Close", p)
		}
	}

	if err := creator.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := creator.Write(testFrame(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Write() after Close = %v, want ErrClosed", err)
	}
}

func TestWriteAfterPeerUnlinkReportsConsumerGone(t *testing.T) {
	opts := testOptions(t)

	consumer, err := Open("seg", opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	producer, err := Open("seg", opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer producer.Close()

	if err := consumer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	err = producer.Write(testFrame(1))
	if !errors.Is(err, ErrConsumerGone) {
		t.Fatalf("Write() = %v, want ErrConsumerGone", err)
	}
	var cerr *ChannelError
	if !errors.As(err, &cerr) || cerr.Code != CodeConsumerGone {
		t.Errorf("error is not a consumer_gone ChannelError: %v", err)
	}
}

func TestOpenFailures(t *testing.T) {
	opts := testOptions(t)
	opts.Dir = filepath.Join(opts.Dir, "missing")
	if _, err := Open("seg", opts); !errors.Is(err, ErrAllocationFailed) {
		t.Errorf("Open() in missing dir = %v, want ErrAllocationFailed", err)
	}

	opts = testOptions(t)
	first, err := Open("seg", opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer first.Close()

	opts.Layout.Capacity = 4
	if _, err := Open("seg", opts); !errors.Is(err, ErrAllocationFailed) {
		t.Errorf("Open() with mismatched layout = %v, want ErrAllocationFailed", err)
	}
}

func TestSizeMismatchLeavesHeaderUntouched(t *testing.T) {
	ch, err := Open("seg", testOptions(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ch.Close()

	bad := frame.Frame{
		Width:       1920,
		Height:      1080,
		BytesPerRow: 1920 * 4,
		PixelFormat: frame.BGRA32,
		Data:        make([]byte, 100),
	}
	err = ch.Write(bad)
	if !frame.HasCode(err, frame.CodeSizeMismatch) {
		t.Fatalf("Write() = %v, want size mismatch", err)
	}
	w, r := ch.Ring().Indices()
	if w != 0 || r != 0 || ch.Ring().Len() != 0 {
		t.Errorf("header changed: write=%d read=%d count=%d", w, r, ch.Ring().Len())
	}
}

func TestWaitForData(t *testing.T) {
	opts := testOptions(t)
	consumer, err := Open("seg", opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer consumer.Close()
	producer, err := Open("seg", opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer producer.Close()

	start := time.Now()
	if consumer.WaitForData(30 * time.Millisecond) {
		t.Fatal("WaitForData() = true with nothing written")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("WaitForData returned after %v, before timeout", elapsed)
	}

	woke := make(chan bool, 1)
	go func() { woke <- consumer.WaitForData(2 * time.Second) }()
	time.Sleep(20 * time.Millisecond)
	if err := producer.Write(testFrame(1)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case ok := <-woke:
		if !ok {
			t.Fatal("WaitForData() = false after signal")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer not woken")
	}
}

func TestProducerConsumerGoneEvent(t *testing.T) {
	opts := testOptions(t)
	bus := events.New()
	lost := make(chan events.ConnectionLostEvent, 1)
	defer bus.Subscribe(func(e events.ConnectionLostEvent) { lost <- e })()

	consumer, err := Open("seg", opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	p := NewProducer("seg", opts, bus)
	if err := p.Open(context.Background()); err != nil {
		t.Fatalf("Producer.Open() error = %v", err)
	}
	defer p.Close()

	if !p.IsConnected() {
		t.Fatal("producer should be connected with an empty ring")
	}
	if !p.Publish(testFrame(1), nil) {
		t.Fatal("Publish() = false on a live channel")
	}

	consumer.Close()

	var result *bool
	if p.Publish(testFrame(2), func(ok bool) { result = &ok }) {
		t.Fatal("Publish() = true after consumer unlinked the segment")
	}
	if result == nil || *result {
		t.Error("completion not called with false")
	}
	if p.IsConnected() {
		t.Error("IsConnected() = true after consumer gone")
	}

	select {
	case e := <-lost:
		if e.Reason != CodeConsumerGone || e.Transport != TransportName {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("ConnectionLostEvent not posted")
	}
}

func TestProducerDisconnectedWhenRingFull(t *testing.T) {
	opts := testOptions(t)
	p := NewProducer("seg", opts, nil)
	if err := p.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer p.Close()

	for i := range opts.Layout.Capacity {
		if !p.Publish(testFrame(uint32(i)), nil) {
			t.Fatalf("publish %d refused", i)
		}
	}
	if p.IsConnected() {
		t.Error("IsConnected() = true with a ring nobody drains")
	}
	if p.Publish(testFrame(99), nil) {
		t.Error("Publish() accepted a frame on a full ring")
	}
	if got := p.Stats().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

func TestEndToEndThirtyFPS(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time scenario")
	}

	opts := testOptions(t)
	consumerCh, err := Open("seg", opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer consumerCh.Close()

	p := NewProducer("seg", opts, nil)
	if err := p.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer p.Close()

	const total = 100
	var (
		mu       sync.Mutex
		received []uint32
	)
	done := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumer := NewConsumer(consumerCh, 16*time.Millisecond, testLogger())
	go func() {
		consumer.Run(ctx, func(f frame.Frame) {
			mu.Lock()
			received = append(received, f.Sequence)
			n := len(received)
			mu.Unlock()
			if n == total {
				close(done)
			}
		})
	}()

	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()
	for seq := uint32(1); seq <= total; seq++ {
		<-ticker.C
		if !p.Publish(testFrame(seq), nil) {
			t.Fatalf("frame %d dropped", seq)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not receive every frame")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, seq := range received {
		if seq != uint32(i+1) {
			t.Fatalf("frame %d has sequence %d, FIFO order broken", i, seq)
		}
	}
	if stats := p.Stats(); stats.Dropped != 0 {
		t.Errorf("Dropped = %d, want 0", stats.Dropped)
	}
}
