package framebuffer

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/sceneit/vcam/internal/frame"
)

// DefaultCapacity is the number of slots in the ring.
const DefaultCapacity = 8

const (
	headerSize   = 16
	metadataSize = 32

	offWriteIndex = 0
	offReadIndex  = 4
	offFrameCount = 8

	offWidth       = 0
	offHeight      = 4
	offBytesPerRow = 8
	offPixelFormat = 12
	offTimestamp   = 16
	offSequence    = 24
	offValid       = 28
)

var (
	// ErrFull is returned when every slot holds an unread frame.
	ErrFull = errors.New("frame buffer full")
	// ErrTooLarge is returned when a frame payload exceeds the slot data region.
	ErrTooLarge = errors.New("frame larger than slot")
	// ErrRegionTooSmall is returned by Attach when mem cannot hold the layout.
	ErrRegionTooSmall = errors.New("region too small for layout")
)

// Layout describes the ring geometry.
type Layout struct {
	Capacity     int
	SlotDataSize int
}

// DefaultLayout holds eight full HD BGRA frames.
func DefaultLayout() Layout {
	return Layout{Capacity: DefaultCapacity, SlotDataSize: frame.MaxFrameSize}
}

func (l Layout) normalized() Layout {
	if l.Capacity <= 0 {
		l.Capacity = DefaultCapacity
	}
	if l.SlotDataSize <= 0 {
		l.SlotDataSize = frame.MaxFrameSize
	}
	// keep every slot's timestamp field 8-byte aligned
	l.SlotDataSize = (l.SlotDataSize + 7) &^ 7
	return l
}

// SlotSize is the byte size of one slot including metadata.
func (l Layout) SlotSize() int {
	l = l.normalized()
	return metadataSize + l.SlotDataSize
}

// Size is the byte size of the whole region.
func (l Layout) Size() int {
	l = l.normalized()
	return headerSize + l.Capacity*l.SlotSize()
}

// Stats is a snapshot of ring counters. Written, Read, Dropped and Rejected
// are local to the process holding this Ring; Count comes from the shared
// header.
type Stats struct {
	Capacity int    `json:"capacity"`
	Count    int    `json:"count"`
	Written  uint64 `json:"written"`
	Read     uint64 `json:"read"`
	Dropped  uint64 `json:"dropped"`
	Rejected uint64 `json:"rejected"`
}

// Ring is a fixed-capacity frame ring over a byte region.
type Ring struct {
	mem    []byte
	layout Layout

	written  atomic.Uint64
	read     atomic.Uint64
	dropped  atomic.Uint64
	rejected atomic.Uint64
}

// New allocates a ring on the heap.
func New(layout Layout) *Ring {
	layout = layout.normalized()
	words := make([]uint64, (layout.Size()+7)/8)
	mem := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), layout.Size())
	return &Ring{mem: mem, layout: layout}
}

// Attach wraps an existing region, typically a mapped shared segment. The
// region must be 8-byte aligned. Attach does not reset the header, so a
// consumer sees frames written before it attached.
func Attach(mem []byte, layout Layout) (*Ring, error) {
	layout = layout.normalized()
	if len(mem) < layout.Size() {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrRegionTooSmall, len(mem), layout.Size())
	}
	if uintptr(unsafe.Pointer(&mem[0]))%8 != 0 {
		return nil, fmt.Errorf("region is not 8-byte aligned")
	}
	return &Ring{mem: mem[:layout.Size()], layout: layout}, nil
}

// Layout returns the normalized geometry.
func (r *Ring) Layout() Layout {
	return r.layout
}

// Reset clears the header and every valid flag. Only the segment creator
// calls it, before any peer attaches.
func (r *Ring) Reset() {
	atomic.StoreUint32(r.u32(offWriteIndex), 0)
	atomic.StoreUint32(r.u32(offReadIndex), 0)
	atomic.StoreUint32(r.u32(offFrameCount), 0)
	for i := range r.layout.Capacity {
		atomic.StoreUint32(r.u32(r.slotOffset(uint32(i))+offValid), 0)
	}
}

// TryWrite copies f into the next free slot. It returns false when the frame
// is rejected or the ring is full; it never blocks.
func (r *Ring) TryWrite(f frame.Frame) bool {
	return r.Write(f) == nil
}

// Write is TryWrite with the reason for a refusal: a *frame.ValidationError,
// ErrTooLarge or ErrFull. A refused frame leaves indices and counts untouched.
func (r *Ring) Write(f frame.Frame) error {
	if err := frame.Validate(f); err != nil {
		r.rejected.Add(1)
		return err
	}
	if len(f.Data) > r.layout.SlotDataSize {
		r.rejected.Add(1)
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(f.Data), r.layout.SlotDataSize)
	}

	capacity := uint32(r.layout.Capacity)
	if atomic.LoadUint32(r.u32(offFrameCount)) >= capacity {
		r.dropped.Add(1)
		return ErrFull
	}

	idx := atomic.LoadUint32(r.u32(offWriteIndex)) % capacity
	slot := r.slotOffset(idx)
	if atomic.LoadUint32(r.u32(slot+offValid)) != 0 {
		// consumer still owns this slot
		r.dropped.Add(1)
		return ErrFull
	}

	data := slot + metadataSize
	copy(r.mem[data:data+len(f.Data)], f.Data)

	*r.u32(slot + offWidth) = f.Width
	*r.u32(slot + offHeight) = f.Height
	*r.u32(slot + offBytesPerRow) = f.BytesPerRow
	*r.u32(slot + offPixelFormat) = uint32(f.PixelFormat)
	*r.u64(slot + offTimestamp) = f.Timestamp
	*r.u32(slot + offSequence) = f.Sequence
	atomic.StoreUint32(r.u32(slot+offValid), 1)

	atomic.StoreUint32(r.u32(offWriteIndex), (idx+1)%capacity)
	atomic.AddUint32(r.u32(offFrameCount), 1)
	r.written.Add(1)
	return nil
}

// TryRead returns the oldest unread frame, copied out of its slot. It returns
// false when nothing is available; it never blocks.
func (r *Ring) TryRead() (frame.Frame, bool) {
	if atomic.LoadUint32(r.u32(offFrameCount)) == 0 {
		return frame.Frame{}, false
	}

	capacity := uint32(r.layout.Capacity)
	idx := atomic.LoadUint32(r.u32(offReadIndex)) % capacity
	slot := r.slotOffset(idx)
	if atomic.LoadUint32(r.u32(slot+offValid)) == 0 {
		return frame.Frame{}, false
	}

	f := frame.Frame{
		Width:       *r.u32(slot + offWidth),
		Height:      *r.u32(slot + offHeight),
		BytesPerRow: *r.u32(slot + offBytesPerRow),
		PixelFormat: frame.PixelFormat(*r.u32(slot + offPixelFormat)),
		Timestamp:   *r.u64(slot + offTimestamp),
		Sequence:    *r.u32(slot + offSequence),
	}
	size := min(f.Size(), r.layout.SlotDataSize)
	data := slot + metadataSize
	f.Data = make([]byte, size)
	copy(f.Data, r.mem[data:data+size])

	atomic.StoreUint32(r.u32(slot+offValid), 0)
	atomic.StoreUint32(r.u32(offReadIndex), (idx+1)%capacity)
	r.decrementCount()
	r.read.Add(1)
	return f, true
}

// decrementCount lowers frameCount with a CAS loop that never wraps below zero.
func (r *Ring) decrementCount() {
	count := r.u32(offFrameCount)
	for {
		c := atomic.LoadUint32(count)
		if c == 0 {
			return
		}
		if atomic.CompareAndSwapUint32(count, c, c-1) {
			return
		}
	}
}

// Len returns the number of frames currently held.
func (r *Ring) Len() int {
	return int(atomic.LoadUint32(r.u32(offFrameCount)))
}

// Cap returns the slot count.
func (r *Ring) Cap() int {
	return r.layout.Capacity
}

// Full reports whether the next write would be dropped.
func (r *Ring) Full() bool {
	return r.Len() >= r.layout.Capacity
}

// Indices returns the raw header indices.
func (r *Ring) Indices() (write, read uint32) {
	return atomic.LoadUint32(r.u32(offWriteIndex)), atomic.LoadUint32(r.u32(offReadIndex))
}

// Stats returns a snapshot of the ring counters.
func (r *Ring) Stats() Stats {
	return Stats{
		Capacity: r.layout.Capacity,
		Count:    r.Len(),
		Written:  r.written.Load(),
		Read:     r.read.Load(),
		Dropped:  r.dropped.Load(),
		Rejected: r.rejected.Load(),
	}
}

func (r *Ring) slotOffset(idx uint32) int {
	return headerSize + int(idx)*r.layout.SlotSize()
}

func (r *Ring) u32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&r.mem[off]))
}

func (r *Ring) u64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&r.mem[off]))
}
