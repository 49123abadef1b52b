package nats

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sceneit/vcam/internal/msgchannel"
)

// Probe asks the extension at url for its status over a short-lived link.
func Probe(ctx context.Context, url string, logger *slog.Logger) (msgchannel.Status, error) {
	conn, err := NewTransport(url, logger).Dial(ctx, msgchannel.Handlers{})
	if err != nil {
		return msgchannel.Status{}, err
	}
	defer conn.Close()

	data, err := conn.Request(ctx, msgchannel.Encode(msgchannel.Message{Op: msgchannel.OpGetExtensionStatus}))
	if err != nil {
		return msgchannel.Status{}, err
	}
	r, err := msgchannel.UnmarshalReply(data)
	if err != nil {
		return msgchannel.Status{}, err
	}
	if !r.OK {
		return msgchannel.Status{}, msgchannel.RemoteError(r)
	}
	return msgchannel.Status{Active: r.Active, Message: r.Message}, nil
}

// WaitReady polls Probe until the extension answers or ctx ends.
func WaitReady(ctx context.Context, url string, interval time.Duration, logger *slog.Logger) (msgchannel.Status, error) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		attempt, cancel := context.WithTimeout(ctx, time.Second)
		st, err := Probe(attempt, url, logger)
		cancel()
		if err == nil {
			return st, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return msgchannel.Status{}, errors.Join(ctx.Err(), lastErr)
		case <-ticker.C:
		}
	}
}
