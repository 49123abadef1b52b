package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan ConnectionLostEvent, 1)

	unsub := bus.Subscribe(func(e ConnectionLostEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(ConnectionLostEvent{Transport: "message", Reason: "interrupted", Timestamp: Now()})

	select {
	case got := <-received:
		if got.Reason != "interrupted" {
			t.Errorf("Reason = %q, want interrupted", got.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	received1 := make(chan FrameRateUpdatedEvent, 1)
	received2 := make(chan FrameRateUpdatedEvent, 1)

	defer bus.Subscribe(func(e FrameRateUpdatedEvent) { received1 <- e })()
	defer bus.Subscribe(func(e FrameRateUpdatedEvent) { received2 <- e })()

	bus.Publish(FrameRateUpdatedEvent{FPS: 30})

	for i, ch := range []chan FrameRateUpdatedEvent{received1, received2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i+1)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	var mu sync.Mutex
	count := 0

	unsub := bus.Subscribe(func(VirtualCameraStateEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	unsub()

	bus.Publish(VirtualCameraStateEvent{Active: true})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("handler called %d times after unsubscribe", count)
	}
}

func TestBus_TypeIsolation(t *testing.T) {
	bus := New()
	lost := make(chan ConnectionLostEvent, 1)
	defer bus.Subscribe(func(e ConnectionLostEvent) { lost <- e })()

	bus.Publish(ConnectionFailedEvent{Transport: "message", Attempts: 3})

	select {
	case e := <-lost:
		t.Fatalf("lost handler received %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestBus_NilPublish(t *testing.T) {
	var bus *Bus
	bus.Publish(VirtualCameraStateEvent{Active: true})
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)
	defer SubscribeToChannel[InstallStatusChangedEvent](bus, ch)()

	bus.Publish(InstallStatusChangedEvent{Status: "active", Outcome: "completed"})
	bus.Publish(InstallStatusChangedEvent{Status: "inactive"}) // dropped, channel full

	select {
	case e := <-ch:
		got, ok := e.(InstallStatusChangedEvent)
		if !ok || got.Status != "active" {
			t.Errorf("received %#v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}
}

func TestEventJSON(t *testing.T) {
	data, err := json.Marshal(ConnectionEstablishedEvent{Transport: "message", Reconnect: true, Attempts: 2})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if m["reconnect"] != true || m["transport"] != "message" {
		t.Errorf("unexpected JSON %s", data)
	}
}

func TestTypesAreDistinct(t *testing.T) {
	seen := map[uint32]string{}
	for name, ev := range map[string]Event{
		"state":    ConnectionStateChangedEvent{},
		"up":       ConnectionEstablishedEvent{},
		"lost":     ConnectionLostEvent{},
		"failed":   ConnectionFailedEvent{},
		"consumer": ConsumerConnectionChangedEvent{},
		"fps":      FrameRateUpdatedEvent{},
		"camera":   VirtualCameraStateEvent{},
		"overlay":  OverlayChangedEvent{},
		"install":  InstallStatusChangedEvent{},
		"device":   DeviceStreamingChangedEvent{},
		"settings": SettingsReloadedEvent{},
		"log":      LogEntryEvent{},
	} {
		if other, dup := seen[ev.Type()]; dup {
			t.Errorf("%s and %s share type %d", name, other, ev.Type())
		}
		seen[ev.Type()] = name
	}
}
