// Package core owns the host side of the virtual camera: it pulls frames
// from the source, applies the selected overlay and publishes the result
// over the configured transport.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sceneit/vcam/internal/config"
	"github.com/sceneit/vcam/internal/events"
	"github.com/sceneit/vcam/internal/frame"
	"github.com/sceneit/vcam/internal/metrics/collectors"
	"github.com/sceneit/vcam/internal/msgchannel"
	natsrpc "github.com/sceneit/vcam/internal/nats"
	"github.com/sceneit/vcam/internal/overlay"
	"github.com/sceneit/vcam/internal/publisher"
	"github.com/sceneit/vcam/internal/settings"
	"github.com/sceneit/vcam/internal/shm"
	"github.com/sceneit/vcam/internal/source"
)

// ErrNotOpen is returned by Start before Open.
var ErrNotOpen = errors.New("core not open")

// FrameSource produces camera frames.
type FrameSource interface {
	Start(ctx context.Context, onFrame source.Handler) error
	Stop()
	SelectCamera(id string)
}

// Transform composes an overlay onto a frame.
type Transform interface {
	Transform(f frame.Frame, spec overlay.Spec) frame.Frame
}

// Context is one running virtual camera pipeline.
type Context struct {
	opts     Options
	bus      *events.Bus
	logger   *slog.Logger
	store    *settings.Store
	src      FrameSource
	renderer Transform

	msg       *msgchannel.Channel
	producer  *shm.Producer
	publisher *publisher.Publisher
	collector *collectors.EventCollector
	ring      *collectors.RingCollector

	mu      sync.Mutex
	open    bool
	active  bool
	spec    overlay.Spec
	cancel  context.CancelFunc
	unsubs  []func()
	srcStop context.CancelFunc

	// announceMu keeps queued stream state updates in the order of the
	// state changes behind them.
	announceMu sync.Mutex
}

// New builds a pipeline. store may be nil, in which case selections are not
// persisted. A nil transform uses overlay.NewRenderer.
func New(opts Options, bus *events.Bus, store *settings.Store, src FrameSource, transform Transform) (*Context, error) {
	opts = opts.withDefaults()
	if bus == nil {
		bus = events.New()
	}
	if src == nil {
		return nil, errors.New("frame source is required")
	}
	if transform == nil {
		transform = overlay.NewRenderer()
	}

	c := &Context{
		opts:     opts,
		bus:      bus,
		logger:   opts.Logger.With("component", "core"),
		store:    store,
		src:      src,
		renderer: transform,
	}

	var ch publisher.FrameChannel
	switch opts.Transport {
	case config.TransportMessage:
		if opts.NATSURL == "" {
			return nil, errors.New("message transport needs a NATS URL")
		}
		c.msg = msgchannel.New(natsrpc.NewTransport(opts.NATSURL, opts.Logger), msgchannel.Config{
			BaseDelay: opts.RetryDelay,
			Logger:    opts.Logger,
		}, bus)
		ch = c.msg
	case config.TransportShared:
		c.producer = shm.NewProducer(opts.SHMName, opts.SHM, bus)
		ch = c.producer
		c.ring = collectors.NewRingCollector(opts.SHMName, c.producer)
	default:
		return nil, fmt.Errorf("unknown transport %q", opts.Transport)
	}

	c.publisher = publisher.New(ch, bus, publisher.Options{
		Transport: opts.Transport,
		Heartbeat: opts.Heartbeat,
		Logger:    opts.Logger,
	})
	c.collector = collectors.NewEventCollector(bus)
	return c, nil
}

// NewWithChannel builds a pipeline over an existing channel. It is used by
// tests and by embedders that bring their own transport.
func NewWithChannel(opts Options, bus *events.Bus, store *settings.Store, src FrameSource, transform Transform, ch publisher.FrameChannel) *Context {
	opts = opts.withDefaults()
	if bus == nil {
		bus = events.New()
	}
	if transform == nil {
		transform = overlay.NewRenderer()
	}
	c := &Context{
		opts:     opts,
		bus:      bus,
		logger:   opts.Logger.With("component", "core"),
		store:    store,
		src:      src,
		renderer: transform,
	}
	if m, ok := ch.(*msgchannel.Channel); ok {
		c.msg = m
	}
	c.publisher = publisher.New(ch, bus, publisher.Options{
		Transport: opts.Transport,
		Heartbeat: opts.Heartbeat,
		Logger:    opts.Logger,
	})
	c.collector = collectors.NewEventCollector(bus)
	return c
}

// Open connects the transport and starts liveness monitoring. The message
// transport connects in the background.
func (c *Context) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return nil
	}

	if err := c.publisher.Open(ctx); err != nil {
		return fmt.Errorf("failed to open %s transport: %w", c.opts.Transport, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.collector.Start()
	if c.ring != nil {
		_ = c.ring.Start(runCtx)
	}
	go c.publisher.Monitor(runCtx)

	if c.store != nil {
		c.spec = c.store.Get().OverlaySpec()
		c.store.OnChange(c.settingsChanged)
	}
	c.unsubs = append(c.unsubs, c.bus.Subscribe(c.connectionEstablished))

	c.open = true
	c.logger.Info("Virtual camera core ready", "transport", c.opts.Transport,
		"width", c.opts.Width, "height", c.opts.Height, "fps", c.opts.FrameRate)
	return nil
}

// Start begins publishing frames. Starting an active camera is a no-op.
func (c *Context) Start(ctx context.Context) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	if c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = true
	srcCtx, cancel := context.WithCancel(ctx)
	c.srcStop = cancel
	c.mu.Unlock()

	c.announceStream()
	if err := c.src.Start(srcCtx, c.OnFrame); err != nil {
		cancel()
		c.mu.Lock()
		c.active = false
		c.srcStop = nil
		c.mu.Unlock()
		c.announceStream()
		return fmt.Errorf("failed to start frame source: %w", err)
	}

	c.logger.Info("Virtual camera started")
	c.bus.Publish(events.VirtualCameraStateEvent{Active: true, Timestamp: events.Now()})
	return nil
}

// Stop halts the source, shows the splash screen and marks the stream
// inactive. Stopping an inactive camera is a no-op.
func (c *Context) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	stop := c.srcStop
	c.srcStop = nil
	c.mu.Unlock()

	c.src.Stop()
	if stop != nil {
		stop()
	}

	splash := frame.Splash(c.opts.Width, c.opts.Height)
	if c.msg != nil {
		c.msg.SendSplashScreen(splash, func(err error) {
			if err != nil {
				c.logger.Debug("Splash screen not delivered", "error", err)
			}
		})
	} else {
		c.publisher.Publish(splash)
	}
	c.announceStream()

	c.logger.Info("Virtual camera stopped")
	c.bus.Publish(events.VirtualCameraStateEvent{Active: false, Timestamp: events.Now()})
}

// Active reports whether frames are being published.
func (c *Context) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// OnFrame transforms and publishes one source frame. It never blocks on
// the transport and drops frames while the camera is stopped.
func (c *Context) OnFrame(f frame.Frame) {
	c.mu.Lock()
	active, spec := c.active, c.spec
	c.mu.Unlock()
	if !active {
		return
	}
	c.publisher.Publish(c.renderer.Transform(f, spec))
}

// SelectOverlay validates and applies an overlay and effect, persisting the
// choice when a settings store is attached.
func (c *Context) SelectOverlay(overlayID string, effect overlay.Effect) (overlay.Spec, error) {
	if effect == "" {
		effect = overlay.EffectNone
	}
	c.mu.Lock()
	spec := c.spec
	c.mu.Unlock()
	spec.OverlayID = overlayID
	spec.Effect = effect
	if err := spec.Validate(); err != nil {
		return overlay.Spec{}, err
	}

	if c.store != nil {
		next, err := c.store.Update(func(s *settings.Settings) {
			s.OverlayID = overlayID
			s.Effect = string(effect)
		})
		if err != nil {
			return overlay.Spec{}, err
		}
		spec = next.OverlaySpec()
	}
	c.applySpec(spec)
	return spec, nil
}

// Overlay returns the active overlay spec.
func (c *Context) Overlay() overlay.Spec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spec
}

// SelectCamera switches the capture device.
func (c *Context) SelectCamera(id string) error {
	if c.store != nil {
		if _, err := c.store.Update(func(s *settings.Settings) { s.SelectedCameraID = id }); err != nil {
			return err
		}
	}
	c.src.SelectCamera(id)
	c.logger.Info("Camera selected", "camera_id", id)
	return nil
}

// Reconnect restarts the message transport connect cycle, for example
// after it gave up. It is a no-op on the shared transport.
func (c *Context) Reconnect() {
	if c.msg != nil {
		c.msg.Connect()
	}
}

// Close stops the camera and releases the transport.
func (c *Context) Close() error {
	c.Stop()

	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	cancel := c.cancel
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	cancel()
	c.collector.Stop()
	if c.ring != nil {
		_ = c.ring.Stop()
	}
	return c.publisher.Close()
}

func (c *Context) applySpec(spec overlay.Spec) {
	c.mu.Lock()
	changed := c.spec != spec
	c.spec = spec
	c.mu.Unlock()
	if !changed {
		return
	}
	c.logger.Info("Overlay selected", "overlay", spec.OverlayID, "effect", spec.Effect)
	c.bus.Publish(events.OverlayChangedEvent{
		OverlayID: spec.OverlayID,
		Effect:    string(spec.Effect),
		Timestamp: events.Now(),
	})
}

func (c *Context) settingsChanged(s settings.Settings) {
	c.applySpec(s.OverlaySpec())
}

// announceStream tells the extension the current stream state, and the
// format when active. The shared transport carries frames only.
func (c *Context) announceStream() {
	if c.msg == nil {
		return
	}
	c.announceMu.Lock()
	defer c.announceMu.Unlock()
	c.sendStreamState(c.Active())
}

// sendStreamState queues the updates (must hold announceMu).
func (c *Context) sendStreamState(active bool) {
	c.msg.UpdateStreamState(active, func(err error) {
		if err != nil {
			c.logger.Debug("Stream state not delivered", "active", active, "error", err)
		}
	})
	if !active {
		return
	}
	c.msg.SetVideoFormat(c.opts.Width, c.opts.Height, uint32(c.opts.FrameRate), func(err error) {
		if err != nil {
			c.logger.Debug("Video format not delivered", "error", err)
		}
	})
}

// connectionEstablished replays stream state to an extension that came
// back while the camera was running.
func (c *Context) connectionEstablished(e events.ConnectionEstablishedEvent) {
	if e.Transport != msgchannel.TransportName || c.msg == nil {
		return
	}
	c.announceMu.Lock()
	defer c.announceMu.Unlock()
	if !c.Active() {
		return
	}
	c.logger.Info("Replaying stream state after connect", "reconnect", e.Reconnect)
	c.sendStreamState(true)
}
