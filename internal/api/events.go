package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/sceneit/vcam/internal/events"
)

// sseEventTypes maps SSE event names to payload types.
var sseEventTypes = map[string]any{
	"connection-state":    events.ConnectionStateChangedEvent{},
	"connection-up":       events.ConnectionEstablishedEvent{},
	"connection-lost":     events.ConnectionLostEvent{},
	"connection-failed":   events.ConnectionFailedEvent{},
	"consumer-connection": events.ConsumerConnectionChangedEvent{},
	"frame-rate":          events.FrameRateUpdatedEvent{},
	"camera-state":        events.VirtualCameraStateEvent{},
	"overlay-changed":     events.OverlayChangedEvent{},
	"install-status":      events.InstallStatusChangedEvent{},
	"device-streaming":    events.DeviceStreamingChangedEvent{},
	"settings-reloaded":   events.SettingsReloadedEvent{},
}

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of connection, camera, overlay, install and device events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, sseEventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.ConnectionStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ConnectionEstablishedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ConnectionLostEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ConnectionFailedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ConsumerConnectionChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FrameRateUpdatedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.VirtualCameraStateEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.OverlayChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.InstallStatusChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DeviceStreamingChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SettingsReloadedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Current state first so a new client does not wait for the next edge
		if cam := s.options.Camera; cam != nil {
			st := cam.Status()
			if err := send.Data(events.VirtualCameraStateEvent{Active: st.Active, Timestamp: events.Now()}); err != nil {
				return
			}
		}
		if inst := s.options.Installer; inst != nil {
			snap := inst.Status()
			if err := send.Data(events.InstallStatusChangedEvent{
				Status:    string(snap.Status),
				Outcome:   string(snap.Outcome),
				Message:   snap.Message,
				Timestamp: events.Now(),
			}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
