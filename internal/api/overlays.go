package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sceneit/vcam/internal/api/models"
	"github.com/sceneit/vcam/internal/overlay"
)

// registerOverlayRoutes registers the overlay catalog and selection endpoints.
func (s *Server) registerOverlayRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-overlays",
		Method:      http.MethodGet,
		Path:        "/api/overlays",
		Summary:     "List Overlays",
		Description: "Available overlays and effects, with the current selection",
		Tags:        []string{"overlays"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.OverlayCatalogResponse, error) {
		catalog := overlay.Catalog()
		overlays := make([]models.OverlayInfo, len(catalog))
		for i, o := range catalog {
			overlays[i] = models.OverlayInfo{ID: o.ID, Name: o.Name, Description: o.Description}
		}
		effects := make([]string, 0, len(overlay.Effects()))
		for _, e := range overlay.Effects() {
			effects = append(effects, string(e))
		}

		st := s.options.Camera.Status()
		return &models.OverlayCatalogResponse{
			Body: models.OverlayCatalogData{
				Overlays: overlays,
				Effects:  effects,
				Selected: models.OverlaySelection{OverlayID: st.OverlayID, Effect: st.Effect},
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "select-overlay",
		Method:      http.MethodPut,
		Path:        "/api/overlays/selection",
		Summary:     "Select Overlay",
		Description: "Apply an overlay and effect to outgoing frames. The choice is saved to the settings file.",
		Tags:        []string{"overlays"},
		Errors:      []int{400, 401, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.OverlaySelectionRequest) (*models.OverlaySelectionResponse, error) {
		effect, err := overlay.ParseEffect(input.Body.Effect)
		if err != nil {
			return nil, s.mapError(err)
		}
		spec, err := s.options.Camera.SelectOverlay(input.Body.OverlayID, effect)
		if err != nil {
			return nil, s.mapError(err)
		}
		return &models.OverlaySelectionResponse{
			Body: models.OverlaySelection{OverlayID: spec.OverlayID, Effect: string(spec.Effect)},
		}, nil
	})
}
