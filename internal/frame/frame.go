// Package frame defines the raw video frame that moves through the transport
// core, its validation rules, and a few generated frames (test pattern and
// splash card) used when no camera frames are available.
package frame

import (
	"fmt"
	"time"
)

// PixelFormat identifies the pixel layout of a frame. Values are FourCC codes
// so they survive the shared-memory and message wire formats unchanged.
type PixelFormat uint32

// BGRA32 is packed 8-bit blue, green, red, alpha. It is the only format the
// core carries.
const BGRA32 PixelFormat = 0x42475241

// BytesPerPixel is the pixel size of BGRA32.
const BytesPerPixel = 4

// Default device geometry.
const (
	DefaultWidth     = 1920
	DefaultHeight    = 1080
	DefaultFrameRate = 30
	MinFrameRate     = 1
	MaxFrameRate     = 60
)

// MaxFrameSize is the payload size of the largest supported frame.
const MaxFrameSize = DefaultWidth * DefaultHeight * BytesPerPixel

func (p PixelFormat) String() string {
	switch p {
	case BGRA32:
		return "BGRA32"
	default:
		return fmt.Sprintf("0x%08x", uint32(p))
	}
}

// Frame is one timestamped raster image.
type Frame struct {
	Width       uint32
	Height      uint32
	BytesPerRow uint32
	PixelFormat PixelFormat
	Timestamp   uint64 // nanoseconds
	Sequence    uint32
	Data        []byte
}

// New allocates a zeroed BGRA32 frame with a tightly packed stride.
func New(width, height uint32) Frame {
	stride := width * BytesPerPixel
	return Frame{
		Width:       width,
		Height:      height,
		BytesPerRow: stride,
		PixelFormat: BGRA32,
		Timestamp:   uint64(time.Now().UnixNano()),
		Data:        make([]byte, int(stride)*int(height)),
	}
}

// Size is the payload size implied by the frame's geometry.
func (f Frame) Size() int {
	return int(f.BytesPerRow) * int(f.Height)
}

// Clone returns a deep copy of f.
func (f Frame) Clone() Frame {
	c := f
	c.Data = make([]byte, len(f.Data))
	copy(c.Data, f.Data)
	return c
}

// Packed returns f with rows tightly packed, BytesPerRow == Width*4. A packed
// frame shares its Data; a padded one is copied. f must carry at least
// BytesPerRow*(Height-1)+Width*4 bytes.
func Packed(f Frame) Frame {
	row := int(f.Width) * BytesPerPixel
	stride := int(f.BytesPerRow)
	if stride <= row {
		f.BytesPerRow = uint32(row)
		f.Data = f.Data[:row*int(f.Height)]
		return f
	}
	packed := make([]byte, row*int(f.Height))
	for y := range int(f.Height) {
		copy(packed[y*row:(y+1)*row], f.Data[y*stride:y*stride+row])
	}
	f.BytesPerRow = uint32(row)
	f.Data = packed
	return f
}

// Time returns the frame timestamp as a time.Time.
func (f Frame) Time() time.Time {
	return time.Unix(0, int64(f.Timestamp))
}

// Validate checks the frame invariants: a supported pixel format, non-zero
// geometry, a stride wide enough for the row, and a payload of exactly
// BytesPerRow*Height bytes.
func Validate(f Frame) error {
	if f.PixelFormat != BGRA32 {
		return &ValidationError{
			Code:    CodeUnsupportedFormat,
			Message: fmt.Sprintf("pixel format %s not supported", f.PixelFormat),
		}
	}
	if f.Width == 0 || f.Height == 0 {
		return &ValidationError{
			Code:    CodeInvalidDimensions,
			Message: fmt.Sprintf("invalid dimensions %dx%d", f.Width, f.Height),
		}
	}
	if uint64(f.BytesPerRow) < uint64(f.Width)*BytesPerPixel {
		return &ValidationError{
			Code:    CodeInvalidDimensions,
			Message: fmt.Sprintf("stride %d too small for width %d", f.BytesPerRow, f.Width),
		}
	}
	if want := f.Size(); len(f.Data) != want {
		return &ValidationError{
			Code:    CodeSizeMismatch,
			Message: fmt.Sprintf("payload is %d bytes, geometry implies %d", len(f.Data), want),
		}
	}
	return nil
}
