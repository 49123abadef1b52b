package collectors

import (
	"context"
	"time"

	"github.com/sceneit/vcam/internal/logging"
	"github.com/sceneit/vcam/internal/metrics"
)

// RingSource reports unread frames in a ring.
type RingSource interface {
	Len() int
}

// RingCollector samples ring occupancy on an interval.
type RingCollector struct {
	logger   logging.Logger
	name     string
	ring     RingSource
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewRingCollector creates a collector for the ring published under name.
func NewRingCollector(name string, ring RingSource) *RingCollector {
	return &RingCollector{
		logger:   logging.GetLogger("metrics"),
		name:     name,
		ring:     ring,
		interval: time.Second,
	}
}

// Start begins sampling.
func (r *RingCollector) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	go r.run()
	return nil
}

// Stop stops sampling.
func (r *RingCollector) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

func (r *RingCollector) run() {
	r.logger.Debug("Starting ring occupancy collection", "name", r.name, "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.collect()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.collect()
		}
	}
}

func (r *RingCollector) collect() {
	metrics.SetRingOccupancy(r.name, r.ring.Len())
}
