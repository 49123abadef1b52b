package nats

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sceneit/vcam/internal/msgchannel"
	"github.com/sceneit/vcam/internal/version"
)

// Transport dials the extension over NATS request/reply. Each Dial opens its
// own connection with reconnects disabled, so a broken link surfaces as one
// interruption and the message channel owns the retry policy.
type Transport struct {
	url    string
	name   string
	logger *slog.Logger
}

// NewTransport returns a message channel transport for the server at url.
func NewTransport(url string, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		url:    url,
		name:   version.ClientName("host"),
		logger: logger.With("component", "nats-transport"),
	}
}

// Dial implements msgchannel.Transport.
func (t *Transport) Dial(ctx context.Context, h msgchannel.Handlers) (msgchannel.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	l := &link{logger: t.logger}
	nc, err := nats.Connect(t.url,
		nats.Name(t.name),
		nats.NoReconnect(),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err == nil || l.isClosed() {
				return
			}
			t.logger.Warn("NATS link dropped", "error", err)
			if h.OnInterrupted != nil {
				go h.OnInterrupted(err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sub, err := nc.Subscribe(SubjectExtensionShutdown, func(msg *nats.Msg) {
		m, err := UnmarshalShutdown(msg.Data)
		if err != nil {
			t.logger.Warn("Failed to unmarshal shutdown", "error", err)
		}
		if l.isClosed() {
			return
		}
		t.logger.Info("Extension announced shutdown", "reason", m.Reason)
		if h.OnInvalidated != nil {
			go h.OnInvalidated()
		}
	})
	if err != nil {
		nc.Close()
		return nil, err
	}

	l.nc = nc
	l.sub = sub
	return l, nil
}

// link is one dialed connection.
type link struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (l *link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Request implements msgchannel.Conn.
func (l *link) Request(ctx context.Context, data []byte) ([]byte, error) {
	if l.isClosed() {
		return nil, &msgchannel.Error{Code: msgchannel.CodeNotConnected, Message: "link closed"}
	}
	msg, err := l.nc.RequestWithContext(ctx, SubjectExtensionRPC, data)
	if err != nil {
		switch {
		case errors.Is(err, nats.ErrNoResponders):
			return nil, &msgchannel.Error{Code: msgchannel.CodeNotConnected, Message: "extension not listening", Cause: err}
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
			return nil, &msgchannel.Error{Code: msgchannel.CodeTimeout, Message: "request", Cause: err}
		}
		return nil, err
	}
	return msg.Data, nil
}

// Close implements msgchannel.Conn.
func (l *link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if l.sub != nil {
		_ = l.sub.Unsubscribe()
	}
	l.nc.Close()
	return nil
}
