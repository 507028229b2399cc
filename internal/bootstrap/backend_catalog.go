package bootstrap

import (
	"github.com/dp-pcs/ttv-pipeline/internal/backend/runway"
	"github.com/dp-pcs/ttv-pipeline/internal/backend/veo"
	"github.com/dp-pcs/ttv-pipeline/internal/domain"
)

var backendCatalog = []domain.BackendPreset{
	{
		ID:           "veo3",
		Name:         "Google Veo 3",
		Model:        veo.DefaultModel,
		Description:  "API generation with text-to-video, image-to-video, and first-last-frame interpolation. Segments of 4, 6, or 8 seconds.",
		PerSecondUSD: 0.75,
		MaxDuration:  8,
		APIBased:     true,
	},
	{
		ID:           "veo3-fast",
		Name:         "Google Veo 3 Fast",
		Model:        "veo-3.0-fast-generate-001",
		Description:  "Cheaper, faster Veo variant with the same duration limits.",
		PerSecondUSD: 0.50,
		MaxDuration:  8,
		APIBased:     true,
	},
	{
		ID:           "runway",
		Name:         "Runway Gen-3 Turbo",
		Model:        runway.DefaultModel,
		Description:  "API image-to-video generation; every segment needs a keyframe image.",
		PerSecondUSD: 0.25,
		MaxDuration:  10,
		APIBased:     true,
	},
	{
		ID:          "wan21",
		Name:        "Wan 2.1 (local)",
		Description: "Local GPU inference via the reference script. Free per segment but needs model weights on disk.",
		MaxDuration: 10,
		RequiresGPU: true,
	},
}

// Backends returns the selectable backend presets, marking the ones whose
// registry entry is live.
func (a *App) Backends() []domain.BackendPreset {
	presets := make([]domain.BackendPreset, len(backendCatalog))
	copy(presets, backendCatalog)

	registered := map[string]bool{}
	if a.Registry != nil {
		for _, name := range a.Registry.Names() {
			registered[name] = true
		}
	}
	for i := range presets {
		presets[i].Configured = registered[presets[i].ID]
	}
	return presets
}
