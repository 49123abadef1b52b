package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sceneit/vcam/internal/api/models"
)

// registerCameraRoutes registers the pipeline control endpoints.
func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Camera Status",
		Description: "Current pipeline state: transport connection, consumer liveness, overlay and counters",
		Tags:        []string{"camera"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.CameraStatusResponse, error) {
		return &models.CameraStatusResponse{Body: s.options.Camera.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-camera",
		Method:      http.MethodPost,
		Path:        "/api/camera/start",
		Summary:     "Start Camera",
		Description: "Start publishing frames to the virtual camera",
		Tags:        []string{"camera"},
		Errors:      []int{401, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.CameraStatusResponse, error) {
		// the source outlives the request
		if err := s.options.Camera.Start(context.WithoutCancel(ctx)); err != nil {
			return nil, s.mapError(err)
		}
		return &models.CameraStatusResponse{Body: s.options.Camera.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-camera",
		Method:      http.MethodPost,
		Path:        "/api/camera/stop",
		Summary:     "Stop Camera",
		Description: "Stop publishing frames and show the splash screen",
		Tags:        []string{"camera"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.CameraStatusResponse, error) {
		s.options.Camera.Stop()
		return &models.CameraStatusResponse{Body: s.options.Camera.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "select-camera",
		Method:      http.MethodPut,
		Path:        "/api/camera/source",
		Summary:     "Select Camera",
		Description: "Switch the capture device feeding the pipeline",
		Tags:        []string{"camera"},
		Errors:      []int{400, 401, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraSourceRequest) (*models.CameraStatusResponse, error) {
		if err := s.options.Camera.SelectCamera(input.Body.CameraID); err != nil {
			return nil, s.mapError(err)
		}
		return &models.CameraStatusResponse{Body: s.options.Camera.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "reconnect-transport",
		Method:      http.MethodPost,
		Path:        "/api/transport/reconnect",
		Summary:     "Reconnect Transport",
		Description: "Restart the connect cycle of the message transport after it gave up",
		Tags:        []string{"camera"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.CameraStatusResponse, error) {
		s.options.Camera.Reconnect()
		return &models.CameraStatusResponse{Body: s.options.Camera.Status()}, nil
	})
}
