package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sceneit/vcam/internal/api/models"
)

// registerExtensionRoutes registers the install and removal endpoints.
func (s *Server) registerExtensionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-extension",
		Method:      http.MethodGet,
		Path:        "/api/extension",
		Summary:     "Extension Status",
		Description: "Install state of the virtual camera extension with user guidance",
		Tags:        []string{"extension"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.ExtensionResponse, error) {
		return s.extensionResponse(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "install-extension",
		Method:        http.MethodPost,
		Path:          "/api/extension/install",
		Summary:       "Install Extension",
		Description:   "Start installing the extension. Progress is reported as install-status events.",
		Tags:          []string{"extension"},
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{401, 409, 503},
		Security:      withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.ExtensionResponse, error) {
		if err := s.options.Installer.RequestInstall(); err != nil {
			return nil, s.mapError(err)
		}
		return s.extensionResponse(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "uninstall-extension",
		Method:        http.MethodPost,
		Path:          "/api/extension/uninstall",
		Summary:       "Uninstall Extension",
		Description:   "Start removing the extension. Progress is reported as install-status events.",
		Tags:          []string{"extension"},
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{401, 409, 503},
		Security:      withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.ExtensionResponse, error) {
		if err := s.options.Installer.RequestUninstall(); err != nil {
			return nil, s.mapError(err)
		}
		return s.extensionResponse(), nil
	})
}

func (s *Server) extensionResponse() *models.ExtensionResponse {
	inst := s.options.Installer
	return &models.ExtensionResponse{
		Body: models.ExtensionData{
			Snapshot:     inst.Status(),
			Instructions: inst.Instructions(),
			Busy:         inst.Busy(),
		},
	}
}
