package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sceneit/vcam/internal/core"
	"github.com/sceneit/vcam/internal/installer"
	"github.com/sceneit/vcam/internal/overlay"
)

var errInvalidAuthType = errors.New("invalid authentication type")

// mapError converts domain errors to HTTP errors.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, overlay.ErrUnknownOverlay), errors.Is(err, overlay.ErrUnknownEffect):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, installer.ErrInProgress):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, core.ErrNotOpen), errors.Is(err, installer.ErrClosed):
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		s.logger.Error("Request failed", "error", err)
		return huma.Error500InternalServerError("internal error", err)
	}
}
