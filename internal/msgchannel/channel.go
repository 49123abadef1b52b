package msgchannel

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sceneit/vcam/internal/events"
	"github.com/sceneit/vcam/internal/frame"
)

// TransportName labels events and metrics from this transport.
const TransportName = "message"

// maxControlQueue bounds control requests waiting for delivery.
const maxControlQueue = 32

// Config tunes a Channel.
type Config struct {
	// MaxAttempts is the connect budget per cycle. Default 3.
	MaxAttempts int
	// BaseDelay is multiplied by the retry count before each retry. Default 2s.
	BaseDelay time.Duration
	// RequestTimeout bounds each request, the liveness probe included. Default 2s.
	RequestTimeout time.Duration
	// MaxInFlight caps outstanding frames. Default 1.
	MaxInFlight int
	Logger      *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 2 * time.Second
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Channel is the host side of the message transport.
type Channel struct {
	transport Transport
	cfg       Config
	bus       *events.Bus
	logger    *slog.Logger

	mu    sync.Mutex
	state State
	conn  Conn
	// cycle identifies the current connect cycle; stale loops and callbacks
	// compare against it and stand down.
	cycle  uint64
	link   uint64 // id of the link in conn
	nextID uint64
	cancel context.CancelFunc

	inflight chan struct{}

	// Control requests are delivered one at a time in call order.
	ctlMu      sync.Mutex
	ctlQueue   []controlRequest
	ctlRunning bool

	submitted    atomic.Uint64
	delivered    atomic.Uint64
	failed       atomic.Uint64
	busy         atomic.Uint64
	notConnected atomic.Uint64
	rejected     atomic.Uint64
}

// New creates a disconnected Channel. bus may be nil.
func New(transport Transport, cfg Config, bus *events.Bus) *Channel {
	cfg = cfg.withDefaults()
	return &Channel{
		transport: transport,
		cfg:       cfg,
		bus:       bus,
		logger:    cfg.Logger.With("component", "msgchannel"),
		state:     StateDisconnected,
		inflight:  make(chan struct{}, cfg.MaxInFlight),
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts a connect cycle. It returns immediately and is a no-op while
// connecting, connected or already recovering from an interruption.
func (c *Channel) Connect() {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected, StateInterrupted:
		c.mu.Unlock()
		return
	}
	ctx, cycle := c.newCycleLocked()
	ev := c.transitionLocked(StateConnecting)
	c.mu.Unlock()

	c.bus.Publish(ev)
	c.logger.Info("Connecting to extension")
	go c.connectLoop(ctx, cycle, false)
}

// Disconnect tears down the link, cancels pending retries and leaves the
// channel disconnected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.cycle++
	conn := c.conn
	c.conn = nil
	c.link = 0
	var ev events.Event
	if c.state != StateDisconnected {
		ev = c.transitionLocked(StateDisconnected)
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if ev != nil {
		c.bus.Publish(ev)
		c.logger.Info("Disconnected from extension")
	}
}

// newCycleLocked cancels any running cycle and starts a new one (must hold lock).
func (c *Channel) newCycleLocked() (context.Context, uint64) {
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.cycle++
	return ctx, c.cycle
}

// transitionLocked sets the state and returns the event to publish once the
// lock is released (must hold lock).
func (c *Channel) transitionLocked(to State) events.Event {
	from := c.state
	c.state = to
	return events.ConnectionStateChangedEvent{
		Transport: TransportName,
		From:      string(from),
		To:        string(to),
		Timestamp: events.Now(),
	}
}

// connectLoop runs one bounded connect cycle.
func (c *Channel) connectLoop(ctx context.Context, cycle uint64, reconnect bool) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.cfg.BaseDelay * time.Duration(attempt-1)
			c.logger.Debug("Retrying connect", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		c.mu.Lock()
		if c.cycle != cycle {
			c.mu.Unlock()
			return
		}
		var ev events.Event
		if c.state != StateConnecting {
			ev = c.transitionLocked(StateConnecting)
		}
		c.mu.Unlock()
		if ev != nil {
			c.bus.Publish(ev)
		}

		conn, id, err := c.dial(ctx)
		if err != nil {
			lastErr = err
			c.logger.Warn("Connect attempt failed", "attempt", attempt, "max_attempts", c.cfg.MaxAttempts, "error", err)
			continue
		}

		c.mu.Lock()
		if c.cycle != cycle {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.link = id
		c.cancel = nil
		ev = c.transitionLocked(StateConnected)
		c.mu.Unlock()

		c.bus.Publish(ev)
		c.bus.Publish(events.ConnectionEstablishedEvent{
			Transport: TransportName,
			Reconnect: reconnect,
			Attempts:  attempt,
			Timestamp: events.Now(),
		})
		c.logger.Info("Connected to extension", "attempt", attempt, "reconnect", reconnect)
		return
	}

	c.mu.Lock()
	if c.cycle != cycle {
		c.mu.Unlock()
		return
	}
	c.cancel = nil
	ev := c.transitionLocked(StateFailed)
	c.mu.Unlock()

	c.bus.Publish(ev)
	msg := ""
	if lastErr != nil {
		msg = lastErr.Error()
	}
	c.bus.Publish(events.ConnectionFailedEvent{
		Transport: TransportName,
		Attempts:  c.cfg.MaxAttempts,
		Error:     msg,
		Timestamp: events.Now(),
	})
	c.logger.Error("Extension unreachable, giving up", "attempts", c.cfg.MaxAttempts, "error", lastErr)
}

// dial opens a link and probes it with GetExtensionStatus.
func (c *Channel) dial(ctx context.Context) (Conn, uint64, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	conn, err := c.transport.Dial(ctx, Handlers{
		OnInterrupted: func(err error) { c.interrupted(id, err) },
		OnInvalidated: func() { c.invalidated(id) },
	})
	if err != nil {
		return nil, 0, err
	}

	data, err := conn.Request(ctx, Encode(Message{Op: OpGetExtensionStatus}))
	if err == nil {
		var reply Reply
		reply, err = UnmarshalReply(data)
		if err == nil && !reply.OK {
			err = RemoteError(reply)
		}
	}
	if err != nil {
		_ = conn.Close()
		return nil, 0, err
	}
	return conn, id, nil
}

// interrupted handles a broken link: one lost event, then an automatic
// reconnect cycle whose first attempt runs immediately.
func (c *Channel) interrupted(id uint64, cause error) {
	c.mu.Lock()
	if c.link != id || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.link = 0
	ev := c.transitionLocked(StateInterrupted)
	ctx, cycle := c.newCycleLocked()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.bus.Publish(ev)
	c.bus.Publish(events.ConnectionLostEvent{
		Transport: TransportName,
		Reason:    string(StateInterrupted),
		Timestamp: events.Now(),
	})
	c.logger.Warn("Connection interrupted, reconnecting", "error", cause)
	go c.connectLoop(ctx, cycle, true)
}

// invalidated handles a remote that went away on purpose. No retry follows.
func (c *Channel) invalidated(id uint64) {
	c.mu.Lock()
	if c.link != id || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.link = 0
	c.cycle++
	ev := c.transitionLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.bus.Publish(ev)
	c.bus.Publish(events.ConnectionLostEvent{
		Transport: TransportName,
		Reason:    "invalidated",
		Timestamp: events.Now(),
	})
	c.logger.Warn("Connection invalidated by extension")
}

// connected returns the live link, if any.
func (c *Channel) connected() (Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.conn == nil {
		return nil, false
	}
	return c.conn, true
}

// request sends m on the live link and calls done with the reply.
func (c *Channel) request(conn Conn, m Message, done func(Reply, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	data, err := conn.Request(ctx, Encode(m))
	if err != nil {
		if ctx.Err() != nil {
			err = &Error{Code: CodeTimeout, Message: m.Op.String(), Cause: err}
		}
		done(Reply{}, err)
		return
	}
	reply, err := UnmarshalReply(data)
	if err != nil {
		done(Reply{}, err)
		return
	}
	if !reply.OK {
		done(reply, RemoteError(reply))
		return
	}
	done(reply, nil)
}

type controlRequest struct {
	conn Conn
	msg  Message
	done func(Reply, error)
}

// call queues a control request. Requests reach the extension in the order
// call was invoked, so a stream state update is never overtaken by an
// older one.
func (c *Channel) call(m Message, done func(Reply, error)) {
	if done == nil {
		done = func(Reply, error) {}
	}
	conn, ok := c.connected()
	if !ok {
		done(Reply{}, &Error{Code: CodeNotConnected, Message: m.Op.String()})
		return
	}

	c.ctlMu.Lock()
	if len(c.ctlQueue) >= maxControlQueue {
		c.ctlMu.Unlock()
		done(Reply{}, &Error{Code: CodeBusy, Message: m.Op.String() + ": control queue full"})
		return
	}
	c.ctlQueue = append(c.ctlQueue, controlRequest{conn: conn, msg: m, done: done})
	start := !c.ctlRunning
	c.ctlRunning = true
	c.ctlMu.Unlock()

	if start {
		go c.drainControl()
	}
}

// drainControl delivers queued control requests until the queue is empty.
func (c *Channel) drainControl() {
	for {
		c.ctlMu.Lock()
		if len(c.ctlQueue) == 0 {
			c.ctlRunning = false
			c.ctlMu.Unlock()
			return
		}
		req := c.ctlQueue[0]
		c.ctlQueue[0] = controlRequest{}
		c.ctlQueue = c.ctlQueue[1:]
		c.ctlMu.Unlock()

		c.request(req.conn, req.msg, req.done)
	}
}

// SendFrame delivers f asynchronously. completion receives true once the
// extension acknowledges the frame. It receives false, before SendFrame
// returns, when the channel is not connected, the frame is invalid, or a
// previous frame is still in flight.
func (c *Channel) SendFrame(f frame.Frame, completion func(ok bool)) {
	c.submitFrame(f, completion)
}

func (c *Channel) submitFrame(f frame.Frame, completion func(ok bool)) bool {
	if completion == nil {
		completion = func(bool) {}
	}
	if err := frame.Validate(f); err != nil {
		c.rejected.Add(1)
		completion(false)
		return false
	}
	conn, ok := c.connected()
	if !ok {
		c.notConnected.Add(1)
		completion(false)
		return false
	}

	select {
	case c.inflight <- struct{}{}:
	default:
		c.busy.Add(1)
		completion(false)
		return false
	}

	c.submitted.Add(1)
	go c.request(conn, FrameMessage(OpSendFrame, f), func(_ Reply, err error) {
		<-c.inflight
		if err != nil {
			c.failed.Add(1)
			c.logger.Debug("Frame delivery failed", "sequence", f.Sequence, "error", err)
			completion(false)
			return
		}
		c.delivered.Add(1)
		completion(true)
	})
	return true
}

// SendSplashScreen sends the idle card shown while the camera is stopped.
func (c *Channel) SendSplashScreen(f frame.Frame, completion func(error)) {
	if err := frame.Validate(f); err != nil {
		if completion != nil {
			completion(err)
		}
		return
	}
	c.call(FrameMessage(OpSendSplashScreen, f), func(_ Reply, err error) {
		if completion != nil {
			completion(err)
		}
	})
}

// UpdateStreamState tells the extension whether frames should flow.
func (c *Channel) UpdateStreamState(active bool, completion func(error)) {
	c.call(Message{Op: OpUpdateStreamState, Active: active}, func(_ Reply, err error) {
		if completion != nil {
			completion(err)
		}
	})
}

// SetVideoFormat announces the frame geometry and rate.
func (c *Channel) SetVideoFormat(width, height, frameRate uint32, completion func(error)) {
	m := Message{Op: OpSetVideoFormat, Width: width, Height: height, FrameRate: frameRate, PixelFormat: frame.BGRA32}
	c.call(m, func(_ Reply, err error) {
		if completion != nil {
			completion(err)
		}
	})
}

// GetExtensionStatus asks the extension whether it is active.
func (c *Channel) GetExtensionStatus(completion func(Status, error)) {
	c.call(Message{Op: OpGetExtensionStatus}, func(r Reply, err error) {
		if completion != nil {
			completion(Status{Active: r.Active, Message: r.Message}, err)
		}
	})
}

// Stats returns the frame counters.
func (c *Channel) Stats() Stats {
	return Stats{
		Submitted:    c.submitted.Load(),
		Delivered:    c.delivered.Load(),
		Failed:       c.failed.Load(),
		Busy:         c.busy.Load(),
		NotConnected: c.notConnected.Load(),
		Rejected:     c.rejected.Load(),
	}
}

// Open starts connecting. It never fails; progress is reported by events.
func (c *Channel) Open(_ context.Context) error {
	c.Connect()
	return nil
}

// Publish submits f and reports whether the channel accepted it for delivery.
func (c *Channel) Publish(f frame.Frame, done func(ok bool)) bool {
	return c.submitFrame(f, done)
}

// IsConnected reports whether the channel is in the connected state.
func (c *Channel) IsConnected() bool {
	return c.State() == StateConnected
}

// Close disconnects.
func (c *Channel) Close() error {
	c.Disconnect()
	return nil
}
