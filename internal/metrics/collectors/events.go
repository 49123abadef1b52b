// Package collectors feeds metrics from the event bus and from shared rings.
package collectors

import (
	"sync"

	"github.com/sceneit/vcam/internal/events"
	"github.com/sceneit/vcam/internal/logging"
	"github.com/sceneit/vcam/internal/metrics"
)

// EventCollector mirrors connection and device events into metrics.
type EventCollector struct {
	bus    *events.Bus
	logger logging.Logger

	mu     sync.Mutex
	unsubs []func()
}

// NewEventCollector creates a collector for bus.
func NewEventCollector(bus *events.Bus) *EventCollector {
	return &EventCollector{
		bus:    bus,
		logger: logging.GetLogger("metrics"),
	}
}

// Start subscribes to the bus.
func (c *EventCollector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubs != nil {
		return
	}

	c.unsubs = []func(){
		c.bus.Subscribe(func(e events.ConnectionStateChangedEvent) {
			metrics.SetConnectionState(e.Transport, e.To)
		}),
		c.bus.Subscribe(func(e events.ConnectionEstablishedEvent) {
			event := "established"
			if e.Reconnect {
				event = "reconnected"
			}
			metrics.IncConnectionEvent(e.Transport, event)
		}),
		c.bus.Subscribe(func(e events.ConnectionLostEvent) {
			metrics.IncConnectionEvent(e.Transport, "lost")
		}),
		c.bus.Subscribe(func(e events.ConnectionFailedEvent) {
			metrics.IncConnectionEvent(e.Transport, "failed")
		}),
		c.bus.Subscribe(func(e events.DeviceStreamingChangedEvent) {
			metrics.SetDeviceClients(e.Clients)
		}),
	}
	c.logger.Debug("Event collector started")
}

// Stop unsubscribes from the bus.
func (c *EventCollector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}
