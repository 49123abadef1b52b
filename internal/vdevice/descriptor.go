package vdevice

import (
	"github.com/google/uuid"

	"github.com/sceneit/vcam/internal/frame"
)

// Format is one stream format the device advertises.
type Format struct {
	Width        uint32 `json:"width" example:"1920"`
	Height       uint32 `json:"height" example:"1080"`
	MinFrameRate uint32 `json:"min_frame_rate" example:"1"`
	MaxFrameRate uint32 `json:"max_frame_rate" example:"60"`
}

// Supports reports whether fps lies within the format's range.
func (f Format) Supports(fps uint32) bool {
	return fps >= f.MinFrameRate && fps <= f.MaxFrameRate
}

// Descriptor identifies the virtual device and its single stream. It is
// immutable once registered.
type Descriptor struct {
	DeviceID     uuid.UUID `json:"device_id"`
	StreamID     uuid.UUID `json:"stream_id"`
	DisplayName  string    `json:"display_name" example:"SceneIt Virtual Camera"`
	StreamName   string    `json:"stream_name" example:"SceneIt Video Stream"`
	Manufacturer string    `json:"manufacturer" example:"SceneIt"`
	Model        string    `json:"model" example:"SceneIt Virtual Camera v1.0"`
	Formats      []Format  `json:"formats"`
}

// DefaultFormat is 1080p BGRA at 1 to 60 fps.
var DefaultFormat = Format{
	Width:        frame.DefaultWidth,
	Height:       frame.DefaultHeight,
	MinFrameRate: frame.MinFrameRate,
	MaxFrameRate: frame.MaxFrameRate,
}

// NewDescriptor returns the stock descriptor with fresh device and stream IDs.
func NewDescriptor() Descriptor {
	return Descriptor{
		DeviceID:     uuid.New(),
		StreamID:     uuid.New(),
		DisplayName:  "SceneIt Virtual Camera",
		StreamName:   "SceneIt Video Stream",
		Manufacturer: "SceneIt",
		Model:        "SceneIt Virtual Camera v1.0",
		Formats:      []Format{DefaultFormat},
	}
}

// validate checks what a media subsystem would refuse to register.
func (d Descriptor) validate() error {
	if d.DeviceID == uuid.Nil || d.StreamID == uuid.Nil {
		return newError(CodeRegistrationFailed, "device and stream IDs are required")
	}
	if d.DeviceID == d.StreamID {
		return newError(CodeRegistrationFailed, "device and stream IDs must differ")
	}
	if d.DisplayName == "" {
		return newError(CodeRegistrationFailed, "display name is required")
	}
	if len(d.Formats) == 0 {
		return newError(CodeRegistrationFailed, "at least one format is required")
	}
	for _, f := range d.Formats {
		if f.Width == 0 || f.Height == 0 || uint64(f.Width)*uint64(f.Height)*frame.BytesPerPixel > frame.MaxFrameSize {
			return newError(CodeRegistrationFailed, "format %dx%d not supported", f.Width, f.Height)
		}
		if f.MinFrameRate < frame.MinFrameRate || f.MaxFrameRate > frame.MaxFrameRate || f.MinFrameRate > f.MaxFrameRate {
			return newError(CodeRegistrationFailed, "frame rate range %d-%d not supported", f.MinFrameRate, f.MaxFrameRate)
		}
	}
	return nil
}

func (d Descriptor) format(width, height uint32) (Format, bool) {
	for _, f := range d.Formats {
		if f.Width == width && f.Height == height {
			return f, true
		}
	}
	return Format{}, false
}
