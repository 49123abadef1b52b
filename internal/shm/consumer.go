//go:build darwin || linux

package shm

import (
	"context"
	"log/slog"
	"time"

	"github.com/sceneit/vcam/internal/frame"
)

// DefaultWaitTimeout bounds each WaitForData call in the consumer loop.
const DefaultWaitTimeout = 100 * time.Millisecond

// Consumer drains a Channel on its own goroutine.
type Consumer struct {
	ch      *Channel
	timeout time.Duration
	logger  *slog.Logger
}

// NewConsumer wraps ch. A zero timeout uses DefaultWaitTimeout.
func NewConsumer(ch *Channel, timeout time.Duration, logger *slog.Logger) *Consumer {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		ch:      ch,
		timeout: timeout,
		logger:  logger.With("component", "shm-consumer"),
	}
}

// Run waits for frames and hands each to handle in FIFO order until ctx is
// done. It is the only blocking loop in the transport and must not share a
// goroutine with frame production.
func (c *Consumer) Run(ctx context.Context, handle func(frame.Frame)) {
	c.logger.Info("Consumer loop started")
	defer c.logger.Info("Consumer loop stopped")

	for ctx.Err() == nil {
		if !c.ch.WaitForData(c.timeout) {
			if c.ch.Closed() {
				return
			}
			continue
		}
		for ctx.Err() == nil {
			f, ok := c.ch.TryRead()
			if !ok {
				break
			}
			handle(f)
		}
	}
}
