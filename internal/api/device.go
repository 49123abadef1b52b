package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sceneit/vcam/internal/api/models"
	"github.com/sceneit/vcam/internal/events"
)

// registerDeviceRoutes registers the virtual device endpoint. The extension
// reports device sessions over NATS; the bridge republishes them on the bus.
func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-device",
		Method:      http.MethodGet,
		Path:        "/api/device",
		Summary:     "Virtual Device",
		Description: "Last session state reported by the virtual device",
		Tags:        []string{"device"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.DeviceResponse, error) {
		s.deviceMu.RLock()
		defer s.deviceMu.RUnlock()
		return &models.DeviceResponse{Body: s.device}, nil
	})
}

func (s *Server) deviceStreamingChanged(e events.DeviceStreamingChangedEvent) {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()
	s.device = models.DeviceData{
		DeviceID:  e.DeviceID,
		Streaming: e.Streaming,
		Clients:   e.Clients,
		UpdatedAt: e.Timestamp,
	}
}
