// Package overlay holds the overlay and effect catalog and a reference
// frame transform that applies them to BGRA32 frames.
package overlay

import (
	"errors"
	"fmt"
)

// ErrUnknownOverlay is returned for an overlay ID outside the catalog.
var ErrUnknownOverlay = errors.New("unknown overlay")

// ErrUnknownEffect is returned for an effect name outside the catalog.
var ErrUnknownEffect = errors.New("unknown effect")

// Overlay is one selectable frame decoration.
type Overlay struct {
	ID          string `json:"id" example:"professional-frame" doc:"Overlay identifier"`
	Name        string `json:"name" example:"Professional Frame" doc:"Display name"`
	Description string `json:"description" doc:"Short description"`
}

// Overlay IDs.
const (
	ProfessionalFrame = "professional-frame"
	CasualBorder      = "casual-border"
	Minimalist        = "minimalist"
	Branded           = "branded"
)

var catalog = []Overlay{
	{ID: ProfessionalFrame, Name: "Professional Frame", Description: "Clean, modern frame for professional meetings"},
	{ID: CasualBorder, Name: "Casual Border", Description: "Friendly border for informal calls"},
	{ID: Minimalist, Name: "Minimalist", Description: "Subtle enhancement for any occasion"},
	{ID: Branded, Name: "Branded", Description: "Customizable overlay with logo placement"},
}

// Catalog returns the built-in overlays in display order.
func Catalog() []Overlay {
	out := make([]Overlay, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds an overlay by ID.
func Lookup(id string) (Overlay, bool) {
	for _, o := range catalog {
		if o.ID == id {
			return o, true
		}
	}
	return Overlay{}, false
}

// Effect is a whole-frame color treatment.
type Effect string

// Effects.
const (
	EffectNone       Effect = "none"
	EffectBlur       Effect = "blur"
	EffectMonochrome Effect = "monochrome"
	EffectVintage    Effect = "vintage"
)

// Effects returns every effect in display order.
func Effects() []Effect {
	return []Effect{EffectNone, EffectBlur, EffectMonochrome, EffectVintage}
}

// ParseEffect maps a name to an Effect. Empty means none.
func ParseEffect(s string) (Effect, error) {
	if s == "" {
		return EffectNone, nil
	}
	for _, e := range Effects() {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEffect, s)
}

// Spec is the decoration applied to every outgoing frame. An empty
// OverlayID means no overlay.
type Spec struct {
	OverlayID string
	Effect    Effect
	// Caption is drawn by overlays that carry a name plate.
	Caption string
}

// Validate checks that the overlay and effect exist.
func (s Spec) Validate() error {
	if s.OverlayID != "" {
		if _, ok := Lookup(s.OverlayID); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownOverlay, s.OverlayID)
		}
	}
	if _, err := ParseEffect(string(s.Effect)); err != nil {
		return err
	}
	return nil
}

// IsZero reports whether the spec leaves frames untouched.
func (s Spec) IsZero() bool {
	return s.OverlayID == "" && (s.Effect == "" || s.Effect == EffectNone)
}
