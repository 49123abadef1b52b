package nats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sceneit/vcam/internal/msgchannel"
	"github.com/sceneit/vcam/internal/version"
)

// Responder is the extension side of the NATS transport. It answers message
// channel requests with a msgchannel.Handler and reports device state.
// Publishing degrades to a no-op while NATS is unavailable.
type Responder struct {
	url     string
	handler msgchannel.Handler
	conn    *nats.Conn
	sub     *nats.Subscription
	logger  *slog.Logger
	mu      sync.RWMutex
}

// NewResponder creates a responder serving h.
func NewResponder(url string, h msgchannel.Handler, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		url:     url,
		handler: h,
		logger:  logger.With("component", "nats-responder"),
	}
}

// Start connects and subscribes to the request subject.
func (r *Responder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, err := nats.Connect(r.url,
		nats.Name(version.ClientName("extension")),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				r.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			r.logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return err
	}

	sub, err := conn.Subscribe(SubjectExtensionRPC, func(msg *nats.Msg) {
		if err := msg.Respond(msgchannel.Serve(r.handler, msg.Data)); err != nil {
			r.logger.Warn("Failed to respond", "error", err)
		}
	})
	if err == nil {
		err = conn.Flush()
	}
	if err != nil {
		conn.Close()
		return err
	}

	r.conn = conn
	r.sub = sub
	r.logger.Info("Extension listening", "url", r.url, "subject", SubjectExtensionRPC)
	return nil
}

func (r *Responder) publish(subject string, data []byte) {
	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		r.logger.Warn("Failed to publish", "subject", subject, "error", err)
	}
}

// PublishState reports a device session change to the host.
func (r *Responder) PublishState(m DeviceStateMessage) {
	data, err := m.Marshal()
	if err != nil {
		r.logger.Warn("Failed to marshal state", "error", err)
		return
	}
	r.publish(SubjectDeviceState, data)
}

// PublishLog forwards a log entry to the host.
func (r *Responder) PublishLog(m LogMessage) {
	data, err := m.Marshal()
	if err != nil {
		r.logger.Warn("Failed to marshal log", "error", err)
		return
	}
	r.publish(SubjectExtensionLogs, data)
}

// IsConnected returns true if connected to NATS.
func (r *Responder) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn != nil && r.conn.IsConnected()
}

// Stop stops answering requests and tells connected hosts the extension is
// gone, so they do not retry.
func (r *Responder) Stop(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return
	}
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
		r.sub = nil
	}

	data, err := ShutdownMessage{Timestamp: time.Now().UTC().Format(time.RFC3339), Reason: reason}.Marshal()
	if err == nil && r.conn.IsConnected() {
		if err := r.conn.Publish(SubjectExtensionShutdown, data); err != nil {
			r.logger.Warn("Failed to announce shutdown", "error", err)
		}
		_ = r.conn.FlushTimeout(time.Second)
	}

	r.conn.Close()
	r.conn = nil
	r.logger.Info("Extension stopped listening", "reason", reason)
}
