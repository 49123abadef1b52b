package vdevice

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sceneit/vcam/internal/frame"
	"github.com/sceneit/vcam/internal/msgchannel"
)

// Status messages reported to the host.
const (
	StatusActive   = "Extension active and ready"
	StatusInactive = "Extension inactive"
)

const perfLogInterval = 5 * time.Second

// Receiver is the extension end of the message channel. It gates frames on
// the host's stream state and feeds them to the device.
type Receiver struct {
	device *Device
	logger *slog.Logger

	mu       sync.Mutex
	active   bool
	received int
	since    time.Time
}

// NewReceiver creates a receiver for d.
func NewReceiver(d *Device, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		device: d,
		logger: logger.With("component", "receiver"),
		since:  time.Now(),
	}
}

var _ msgchannel.Handler = (*Receiver)(nil)

// HandleFrame implements msgchannel.Handler.
func (r *Receiver) HandleFrame(f frame.Frame) error {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if !active {
		return newError(CodeInactive, "frame %d arrived while the stream is inactive", f.Sequence)
	}

	f, err := pack(f)
	if err != nil {
		return err
	}
	if err := r.device.ConsumeFrame(f); err != nil {
		return err
	}
	r.countFrame()
	return nil
}

// HandleSplash implements msgchannel.Handler. The splash is shown while the
// host is stopped, so it is accepted whatever the stream state.
func (r *Receiver) HandleSplash(f frame.Frame) error {
	f, err := pack(f)
	if err != nil {
		return err
	}
	if err := r.device.ConsumeFrame(f); err != nil {
		return err
	}
	r.logger.Debug("Splash screen delivered", "width", f.Width, "height", f.Height)
	return nil
}

// UpdateStreamState implements msgchannel.Handler.
func (r *Receiver) UpdateStreamState(active bool) error {
	r.mu.Lock()
	changed := r.active != active
	r.active = active
	r.mu.Unlock()

	if changed {
		r.logger.Info("Stream state update", "active", active)
	}
	return nil
}

// SetVideoFormat implements msgchannel.Handler.
func (r *Receiver) SetVideoFormat(width, height, frameRate uint32) error {
	return r.device.SetFormat(width, height, frameRate)
}

// ExtensionStatus implements msgchannel.Handler. The extension is ready once
// its device is registered.
func (r *Receiver) ExtensionStatus() msgchannel.Status {
	if r.device.Registered() {
		return msgchannel.Status{Active: true, Message: StatusActive}
	}
	return msgchannel.Status{Active: false, Message: StatusInactive}
}

// Active reports the stream state last set by the host.
func (r *Receiver) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Receiver) countFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received++
	if elapsed := time.Since(r.since); elapsed >= perfLogInterval {
		r.logger.Debug("Extension performance", "fps", float64(r.received)/elapsed.Seconds())
		r.received = 0
		r.since = time.Now()
	}
}

// pack checks that f carries width*height pixels at its stride and returns
// it with tightly packed rows. Trailing bytes are ignored.
func pack(f frame.Frame) (frame.Frame, error) {
	if f.Width == 0 || f.Height == 0 {
		return f, &frame.ValidationError{Code: frame.CodeInvalidDimensions, Message: "zero frame dimensions"}
	}
	row := int(f.Width) * frame.BytesPerPixel
	stride := max(int(f.BytesPerRow), row)
	if need := stride*(int(f.Height)-1) + row; len(f.Data) < need {
		return f, &frame.ValidationError{
			Code:    frame.CodeInsufficientData,
			Message: fmt.Sprintf("frame payload is %d bytes, stride %d needs %d", len(f.Data), stride, need),
		}
	}
	f.BytesPerRow = uint32(stride)
	return frame.Packed(f), nil
}
