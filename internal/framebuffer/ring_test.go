package framebuffer

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sceneit/vcam/internal/frame"
)

func testLayout() Layout {
	return Layout{Capacity: 4, SlotDataSize: 16 * 8 * frame.BytesPerPixel}
}

func testFrame(seq uint32) frame.Frame {
	f := frame.New(16, 8)
	f.Sequence = seq
	f.Timestamp = uint64(seq) * uint64(33*time.Millisecond)
	for i := range f.Data {
		f.Data[i] = byte(seq) + byte(i)
	}
	return f
}

func TestLayoutSize(t *testing.T) {
	l := Layout{Capacity: 8, SlotDataSize: 1920 * 1080 * 4}
	want := 16 + 8*(32+1920*1080*4)
	if got := l.Size(); got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}

	odd := Layout{Capacity: 2, SlotDataSize: 13}
	if got := odd.SlotSize(); got != 32+16 {
		t.Errorf("SlotSize() = %d, want 48 (data rounded to 8)", got)
	}

	if got := (Layout{}).normalized(); got != DefaultLayout() {
		t.Errorf("zero layout normalized to %+v, want %+v", got, DefaultLayout())
	}
}

func TestRoundTripFidelity(t *testing.T) {
	r := New(testLayout())

	for seq := uint32(1); seq <= 3; seq++ {
		if !r.TryWrite(testFrame(seq)) {
			t.Fatalf("TryWrite(%d) = false", seq)
		}
	}

	for seq := uint32(1); seq <= 3; seq++ {
		got, ok := r.TryRead()
		if !ok {
			t.Fatalf("TryRead() #%d found nothing", seq)
		}
		want := testFrame(seq)
		if got.Width != want.Width || got.Height != want.Height ||
			got.PixelFormat != want.PixelFormat || got.Timestamp != want.Timestamp ||
			got.Sequence != want.Sequence || got.BytesPerRow != want.BytesPerRow {
			t.Errorf("metadata mismatch: got %+v", got)
		}
		if !bytes.Equal(got.Data, want.Data) {
			t.Errorf("payload mismatch for frame %d", seq)
		}
	}

	if _, ok := r.TryRead(); ok {
		t.Error("TryRead() on empty ring returned a frame")
	}
}

func TestFullRingRejectsNewest(t *testing.T) {
	r := New(testLayout())
	capacity := r.Cap()
	extra := 3

	for i := range capacity + extra {
		ok := r.TryWrite(testFrame(uint32(i + 1)))
		if i < capacity && !ok {
			t.Fatalf("write %d refused before ring was full", i)
		}
		if i >= capacity && ok {
			t.Fatalf("write %d accepted on a full ring", i)
		}
		if r.Len() > capacity {
			t.Fatalf("Len() = %d exceeds capacity %d", r.Len(), capacity)
		}
	}

	if err := r.Write(testFrame(99)); !errors.Is(err, ErrFull) {
		t.Errorf("Write() on full ring = %v, want ErrFull", err)
	}

	// The first N frames survive intact.
	for seq := uint32(1); seq <= uint32(capacity); seq++ {
		got, ok := r.TryRead()
		if !ok {
			t.Fatalf("missing frame %d", seq)
		}
		if got.Sequence != seq || !bytes.Equal(got.Data, testFrame(seq).Data) {
			t.Errorf("slot corrupted: got sequence %d, want %d", got.Sequence, seq)
		}
	}

	stats := r.Stats()
	if stats.Dropped != uint64(extra)+1 {
		t.Errorf("Dropped = %d, want %d", stats.Dropped, extra+1)
	}
	if stats.Written != uint64(capacity) || stats.Read != uint64(capacity) {
		t.Errorf("Written/Read = %d/%d, want %d/%d", stats.Written, stats.Read, capacity, capacity)
	}
}

func TestRejectedWriteLeavesIndicesUntouched(t *testing.T) {
	r := New(testLayout())
	if !r.TryWrite(testFrame(1)) {
		t.Fatal("setup write failed")
	}
	w0, r0 := r.Indices()
	n0 := r.Len()

	mismatch := frame.Frame{
		Width:       1920,
		Height:      1080,
		BytesPerRow: 1920 * 4,
		PixelFormat: frame.BGRA32,
		Data:        make([]byte, 100),
	}
	err := r.Write(mismatch)
	if !frame.HasCode(err, frame.CodeSizeMismatch) {
		t.Errorf("Write(mismatch) = %v, want size mismatch", err)
	}

	big := frame.New(64, 64)
	if err := r.Write(big); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Write(oversized) = %v, want ErrTooLarge", err)
	}

	w1, r1 := r.Indices()
	if w0 != w1 || r0 != r1 || n0 != r.Len() {
		t.Errorf("indices changed: write %d->%d read %d->%d count %d->%d", w0, w1, r0, r1, n0, r.Len())
	}
	if got := r.Stats().Rejected; got != 2 {
		t.Errorf("Rejected = %d, want 2", got)
	}
}

func TestIndicesWrap(t *testing.T) {
	r := New(testLayout())
	for seq := uint32(1); seq <= 10; seq++ {
		if !r.TryWrite(testFrame(seq)) {
			t.Fatalf("write %d refused", seq)
		}
		got, ok := r.TryRead()
		if !ok || got.Sequence != seq {
			t.Fatalf("read %d: ok=%v seq=%d", seq, ok, got.Sequence)
		}
		w, rd := r.Indices()
		if w >= uint32(r.Cap()) || rd >= uint32(r.Cap()) {
			t.Fatalf("indices out of range: %d %d", w, rd)
		}
	}
}

func TestAttachSharesState(t *testing.T) {
	layout := testLayout()
	producer := New(layout)

	consumer, err := Attach(producer.mem, layout)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	producer.TryWrite(testFrame(5))
	got, ok := consumer.TryRead()
	if !ok || got.Sequence != 5 {
		t.Fatalf("consumer read ok=%v seq=%d", ok, got.Sequence)
	}
	if producer.Len() != 0 {
		t.Errorf("producer sees Len() = %d after consumer read", producer.Len())
	}

	if _, err := Attach(producer.mem[:10], layout); !errors.Is(err, ErrRegionTooSmall) {
		t.Errorf("Attach(short) = %v, want ErrRegionTooSmall", err)
	}
}

func TestResetClearsRing(t *testing.T) {
	r := New(testLayout())
	r.TryWrite(testFrame(1))
	r.TryWrite(testFrame(2))
	r.Reset()

	if r.Len() != 0 {
		t.Errorf("Len() = %d after Reset", r.Len())
	}
	if _, ok := r.TryRead(); ok {
		t.Error("TryRead() returned a frame after Reset")
	}
}

func TestConcurrentProducerConsumerPreservesOrder(t *testing.T) {
	r := New(testLayout())
	const total = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for seq := uint32(1); seq <= total; {
			if r.TryWrite(testFrame(seq)) {
				seq++
			}
		}
	}()

	var last uint32
	deadline := time.After(5 * time.Second)
	for received := 0; received < total; {
		select {
		case <-deadline:
			t.Fatalf("timed out after %d frames", received)
		default:
		}
		f, ok := r.TryRead()
		if !ok {
			continue
		}
		if f.Sequence != last+1 {
			t.Fatalf("out of order: got %d after %d", f.Sequence, last)
		}
		if !bytes.Equal(f.Data, testFrame(f.Sequence).Data) {
			t.Fatalf("payload corrupted at %d", f.Sequence)
		}
		last = f.Sequence
		received++
	}
	wg.Wait()
}
