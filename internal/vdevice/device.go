package vdevice

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sceneit/vcam/internal/frame"
	"github.com/sceneit/vcam/internal/metrics"
)

// Sample sources.
const (
	SourceHost = "host"
	SourceIdle = "idle"
)

// Sample is a frame stamped for presentation.
type Sample struct {
	Frame frame.Frame
	// PTS is the host clock presentation time. It never decreases.
	PTS      time.Duration
	Duration time.Duration
	Source   string
}

// Client receives samples while subscribed. Samples are shared between
// clients and must not be modified. Deliver must not call back into the
// Device.
type Client interface {
	ID() string
	Deliver(s Sample) error
}

// Session is the streaming state of the single stream.
type Session struct {
	ActiveClients int  `json:"active_clients"`
	Streaming     bool `json:"streaming"`
}

// Properties describes the device as clients see it.
type Properties struct {
	Descriptor   Descriptor `json:"descriptor"`
	ActiveFormat Format     `json:"active_format"`
	FrameRate    uint32     `json:"frame_rate"`
	Session      Session    `json:"session"`
	Registered   bool       `json:"registered"`
}

// Stats counts samples.
type Stats struct {
	Delivered   uint64 `json:"delivered"`
	IdleSamples uint64 `json:"idle_samples"`
	Dropped     uint64 `json:"dropped"`
	Skipped     uint64 `json:"skipped"`
}

// Options configures a Device.
type Options struct {
	Descriptor Descriptor
	// FrameRate defaults to 30.
	FrameRate uint32
	// Clock returns monotonic host time. Defaults to time since New.
	Clock func() time.Duration
	// Idle enables the test pattern while streaming without host frames.
	Idle bool
	// OnSessionChange runs after each subscribe or unsubscribe.
	OnSessionChange func(Session)
	Logger          *slog.Logger
}

// Device is the consumer side facade: one device, one stream and the
// clients subscribed to it.
type Device struct {
	desc     Descriptor
	clock    func() time.Duration
	onChange func(Session)
	logger   *slog.Logger

	mu         sync.Mutex
	provider   Provider
	format     Format
	frameRate  uint32
	clients    map[string]Client
	lastPTS    time.Duration
	lastHostAt time.Duration
	idle       *IdleGenerator

	delivered atomic.Uint64
	idleCount atomic.Uint64
	dropped   atomic.Uint64
	skipped   atomic.Uint64
}

// New creates an unregistered device.
func New(opts Options) *Device {
	if opts.Descriptor.DeviceID == uuid.Nil {
		opts.Descriptor = NewDescriptor()
	}
	if opts.FrameRate == 0 {
		opts.FrameRate = frame.DefaultFrameRate
	}
	if opts.Clock == nil {
		start := time.Now()
		opts.Clock = func() time.Duration { return time.Since(start) }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := &Device{
		desc:      opts.Descriptor,
		clock:     opts.Clock,
		onChange:  opts.OnSessionChange,
		logger:    opts.Logger.With("component", "vdevice", "device_id", opts.Descriptor.DeviceID.String()),
		frameRate: opts.FrameRate,
		clients:   make(map[string]Client),
	}
	if len(d.desc.Formats) > 0 {
		d.format = d.desc.Formats[0]
	}
	if opts.Idle {
		d.idle = newIdleGenerator(d)
	}
	return d
}

// Register adds the device and its stream to p. The extension cannot run
// without a registered device, so callers treat failure as fatal.
func (d *Device) Register(p Provider) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.provider != nil {
		return newError(CodeRegistrationFailed, "device already registered")
	}
	if !d.format.Supports(d.frameRate) {
		return newError(CodeRegistrationFailed, "frame rate %d outside %d-%d", d.frameRate, d.format.MinFrameRate, d.format.MaxFrameRate)
	}
	if err := p.Register(d.desc); err != nil {
		var derr *Error
		if errors.As(err, &derr) {
			return err
		}
		return &Error{Code: CodeRegistrationFailed, Message: "provider refused device", Cause: err}
	}
	d.provider = p
	d.logger.Info("Virtual camera registered", "name", d.desc.DisplayName,
		"format", formatString(d.format), "frame_rate", d.frameRate)
	return nil
}

// Unregister removes the device from its provider and drops all clients.
func (d *Device) Unregister() error {
	d.mu.Lock()
	p := d.provider
	d.provider = nil
	had := len(d.clients) > 0
	d.clients = make(map[string]Client)
	d.mu.Unlock()

	if had {
		d.sessionChanged()
	}
	if p == nil {
		return nil
	}
	return p.Unregister(d.desc.DeviceID)
}

// Registered reports whether Register succeeded.
func (d *Device) Registered() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.provider != nil
}

// Properties returns the descriptor with the active format and rate.
func (d *Device) Properties() Properties {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Properties{
		Descriptor:   d.desc,
		ActiveFormat: d.format,
		FrameRate:    d.frameRate,
		Session:      d.sessionLocked(),
		Registered:   d.provider != nil,
	}
}

// FrameInterval is the duration of one frame at the current rate.
func (d *Device) FrameInterval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Second / time.Duration(d.frameRate)
}

// SetFrameRate changes the stream rate within the active format's range.
func (d *Device) SetFrameRate(fps uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.format.Supports(fps) {
		return newError(CodeFormatMismatch, "frame rate %d outside %d-%d", fps, d.format.MinFrameRate, d.format.MaxFrameRate)
	}
	d.frameRate = fps
	return nil
}

// SetFormat selects an advertised format by geometry and sets the rate.
func (d *Device) SetFormat(width, height, fps uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.desc.format(width, height)
	if !ok {
		return newError(CodeFormatMismatch, "format %dx%d not advertised", width, height)
	}
	if !f.Supports(fps) {
		return newError(CodeFormatMismatch, "frame rate %d outside %d-%d", fps, f.MinFrameRate, f.MaxFrameRate)
	}
	d.format = f
	d.frameRate = fps
	d.logger.Info("Video format set", "format", formatString(f), "frame_rate", fps)
	return nil
}

// Subscribe adds a client. The first client starts streaming.
func (d *Device) Subscribe(c Client) error {
	if c == nil || c.ID() == "" {
		return errors.New("client with an ID is required")
	}
	d.mu.Lock()
	if _, ok := d.clients[c.ID()]; ok {
		d.mu.Unlock()
		return fmt.Errorf("client %s already subscribed", c.ID())
	}
	d.clients[c.ID()] = c
	n := len(d.clients)
	d.mu.Unlock()

	d.logger.Info("Client subscribed", "client_id", c.ID(), "clients", n)
	d.sessionChanged()
	return nil
}

// Unsubscribe removes a client. Removing the last one stops streaming.
func (d *Device) Unsubscribe(id string) {
	d.mu.Lock()
	if _, ok := d.clients[id]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.clients, id)
	n := len(d.clients)
	d.mu.Unlock()

	d.logger.Info("Client unsubscribed", "client_id", id, "clients", n)
	d.sessionChanged()
}

// Session returns the current streaming state.
func (d *Device) Session() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionLocked()
}

func (d *Device) sessionLocked() Session {
	return Session{ActiveClients: len(d.clients), Streaming: len(d.clients) > 0}
}

func (d *Device) sessionChanged() {
	s := d.Session()
	metrics.SetDeviceClients(s.ActiveClients)
	if d.idle != nil {
		if s.Streaming {
			d.idle.start()
		} else {
			d.idle.stop()
		}
	}
	if d.onChange != nil {
		d.onChange(s)
	}
}

// ConsumeFrame wraps f in a sample and pushes it to every client. With no
// clients it does nothing. A frame that does not match the active format is
// dropped and counted.
func (d *Device) ConsumeFrame(f frame.Frame) error {
	return d.consume(f, SourceHost)
}

func (d *Device) consume(f frame.Frame, source string) error {
	d.mu.Lock()
	if len(d.clients) == 0 {
		d.mu.Unlock()
		d.skipped.Add(1)
		return nil
	}
	if err := d.wrapLocked(f); err != nil {
		d.mu.Unlock()
		d.dropped.Add(1)
		metrics.IncDeviceDropped(errorCode(err))
		d.logger.Debug("Dropping frame", "sequence", f.Sequence, "error", err)
		return err
	}

	now := d.clock()
	pts := now
	if pts < d.lastPTS {
		pts = d.lastPTS
	}
	d.lastPTS = pts
	if source == SourceHost {
		d.lastHostAt = now
	}
	s := Sample{
		Frame:    f.Clone(),
		PTS:      pts,
		Duration: time.Second / time.Duration(d.frameRate),
		Source:   source,
	}
	clients := make([]Client, 0, len(d.clients))
	for _, c := range d.clients {
		clients = append(clients, c)
	}
	d.mu.Unlock()

	for _, c := range clients {
		if err := c.Deliver(s); err != nil {
			d.logger.Debug("Client rejected sample", "client_id", c.ID(), "error", err)
		}
	}

	if source == SourceIdle {
		d.idleCount.Add(1)
	} else {
		d.delivered.Add(1)
	}
	metrics.IncDeviceSamples(source)
	return nil
}

// wrapLocked checks f against the active format (must hold lock).
func (d *Device) wrapLocked(f frame.Frame) error {
	if err := frame.Validate(f); err != nil {
		return err
	}
	if f.Width != d.format.Width || f.Height != d.format.Height {
		return newError(CodeFormatMismatch, "frame %dx%d, stream is %s", f.Width, f.Height, formatString(d.format))
	}
	return nil
}

// sinceHostFrame reports how long ago the last host frame was wrapped.
func (d *Device) sinceHostFrame() (time.Duration, time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock() - d.lastHostAt, time.Second / time.Duration(d.frameRate)
}

// Stats returns the sample counters.
func (d *Device) Stats() Stats {
	return Stats{
		Delivered:   d.delivered.Load(),
		IdleSamples: d.idleCount.Load(),
		Dropped:     d.dropped.Load(),
		Skipped:     d.skipped.Load(),
	}
}

// Close stops the idle generator and unregisters the device.
func (d *Device) Close() error {
	if d.idle != nil {
		d.idle.stop()
	}
	return d.Unregister()
}

func formatString(f Format) string {
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

func errorCode(err error) string {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code
	}
	var verr *frame.ValidationError
	if errors.As(err, &verr) {
		return verr.Code
	}
	return "unknown"
}
