package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sceneit/vcam/internal/api/models"
	"github.com/sceneit/vcam/internal/settings"
)

// registerSettingsRoutes registers the user settings endpoints.
func (s *Server) registerSettingsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/api/settings",
		Summary:     "Get Settings",
		Description: "User settings persisted across restarts",
		Tags:        []string{"settings"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.SettingsResponse, error) {
		return &models.SettingsResponse{Body: settingsToAPI(s.options.Settings.Get())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPatch,
		Path:        "/api/settings",
		Summary:     "Update Settings",
		Description: "Update the name plate fields. Overlay and camera have their own endpoints.",
		Tags:        []string{"settings"},
		Errors:      []int{400, 401, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.SettingsUpdateRequest) (*models.SettingsResponse, error) {
		updated, err := s.options.Settings.Update(func(st *settings.Settings) {
			if input.Body.UserName != nil {
				st.UserName = *input.Body.UserName
			}
			if input.Body.UserJobTitle != nil {
				st.UserJobTitle = *input.Body.UserJobTitle
			}
		})
		if err != nil {
			return nil, s.mapError(err)
		}
		return &models.SettingsResponse{Body: settingsToAPI(updated)}, nil
	})
}

func settingsToAPI(st settings.Settings) models.SettingsData {
	return models.SettingsData{
		SelectedCameraID: st.SelectedCameraID,
		UserName:         st.UserName,
		UserJobTitle:     st.UserJobTitle,
		OverlayID:        st.OverlayID,
		Effect:           st.Effect,
	}
}
