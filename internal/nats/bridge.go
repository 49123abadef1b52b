package nats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sceneit/vcam/internal/events"
	"github.com/sceneit/vcam/internal/version"
)

// Bridge subscribes to extension subjects and forwards them to the host.
// Device state becomes bus events; forwarded logs are re-emitted on the
// host logger under the "extension" module.
type Bridge struct {
	url      string
	eventBus *events.Bus
	conn     *nats.Conn
	subs     []*nats.Subscription
	logger   *slog.Logger
	extLog   *slog.Logger
	mu       sync.Mutex
}

// NewBridge creates a new NATS-to-EventBus bridge. extLog receives forwarded
// extension logs; nil uses logger.
func NewBridge(url string, eventBus *events.Bus, logger, extLog *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if extLog == nil {
		extLog = logger
	}

	return &Bridge{
		url:      url,
		eventBus: eventBus,
		logger:   logger.With("component", "nats-bridge"),
		extLog:   extLog,
	}
}

// Start connects to NATS and subscribes to the extension subjects. The
// extension owns the server, so a server that is not up yet is not an
// error: the connection keeps retrying in the background and the
// subscriptions take effect once it attaches.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := nats.Connect(b.url,
		nats.Name(version.ClientName("bridge")),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.ConnectHandler(func(_ *nats.Conn) {
			b.logger.Info("NATS bridge attached", "url", b.url)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS bridge disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Info("NATS bridge reconnected")
		}),
	)
	if err != nil {
		return err
	}

	b.conn = conn

	stateSub, err := conn.Subscribe(SubjectDeviceState, b.handleState)
	if err != nil {
		b.cleanup()
		return err
	}
	b.subs = append(b.subs, stateSub)

	logsSub, err := conn.Subscribe(SubjectExtensionLogs, b.handleLogs)
	if err != nil {
		b.cleanup()
		return err
	}
	b.subs = append(b.subs, logsSub)

	if conn.IsConnected() {
		if err := conn.Flush(); err != nil {
			b.cleanup()
			return err
		}
	}

	b.logger.Info("NATS bridge subscribed to extension subjects")
	return nil
}

// handleState processes incoming device state messages.
func (b *Bridge) handleState(msg *nats.Msg) {
	m, err := UnmarshalDeviceState(msg.Data)
	if err != nil {
		b.logger.Warn("Failed to unmarshal state", "error", err, "subject", msg.Subject)
		return
	}

	ts := m.Timestamp
	if ts == "" {
		ts = events.Now()
	}
	b.eventBus.Publish(events.DeviceStreamingChangedEvent{
		DeviceID:  m.DeviceID,
		Streaming: m.Streaming,
		Clients:   m.Clients,
		Timestamp: ts,
	})
	b.logger.Debug("Published device state event", "device_id", m.DeviceID, "streaming", m.Streaming)
}

// handleLogs processes incoming log messages.
func (b *Bridge) handleLogs(msg *nats.Msg) {
	m, err := UnmarshalLog(msg.Data)
	if err != nil {
		b.logger.Warn("Failed to unmarshal log", "error", err, "subject", msg.Subject)
		return
	}

	level := slog.LevelInfo
	switch m.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	args := make([]any, 0, 2*len(m.Details))
	for k, v := range m.Details {
		args = append(args, k, v)
	}
	b.extLog.Log(context.Background(), level, m.Message, args...)
}

// cleanup unsubscribes and closes connection.
func (b *Bridge) cleanup() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil

	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// Stop closes the bridge connection.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cleanup()
	b.logger.Info("NATS bridge stopped")
}

// IsConnected returns true if the bridge is connected to NATS.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}
