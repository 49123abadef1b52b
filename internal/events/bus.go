// Package events is the typed event bus connecting the transport core to its
// observers. Publishing never blocks the caller; each subscriber receives
// events of one concrete type in publish order.
package events

import (
	"time"

	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Now formats the current time the way every event timestamp is written.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Publish publishes an event to all subscribers of its concrete type.
// A nil bus is a no-op so components can run without observers.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case ConnectionStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case ConnectionEstablishedEvent:
		event.Publish(b.dispatcher, e)
	case ConnectionLostEvent:
		event.Publish(b.dispatcher, e)
	case ConnectionFailedEvent:
		event.Publish(b.dispatcher, e)
	case ConsumerConnectionChangedEvent:
		event.Publish(b.dispatcher, e)
	case FrameRateUpdatedEvent:
		event.Publish(b.dispatcher, e)
	case VirtualCameraStateEvent:
		event.Publish(b.dispatcher, e)
	case OverlayChangedEvent:
		event.Publish(b.dispatcher, e)
	case InstallStatusChangedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceStreamingChangedEvent:
		event.Publish(b.dispatcher, e)
	case SettingsReloadedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type named by its parameter and
// returns an unsubscribe function. Unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e ConnectionLostEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ConnectionStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConnectionEstablishedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConnectionLostEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConnectionFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConsumerConnectionChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameRateUpdatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(VirtualCameraStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(OverlayChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(InstallStatusChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceStreamingChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SettingsReloadedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel bridges callback subscriptions to a channel for the SSE
// select loop. Events are dropped when ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
