package domain

// BackendPreset describes one selectable generation backend for catalog
// listings and pre-flight quotes.
type BackendPreset struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Model        string  `json:"model,omitempty"`
	Description  string  `json:"description,omitempty"`
	PerSecondUSD float64 `json:"perSecondUsd"`
	MaxDuration  float64 `json:"maxDuration"`
	RequiresGPU  bool    `json:"requiresGpu"`
	APIBased     bool    `json:"apiBased"`
	Configured   bool    `json:"configured"`
}
