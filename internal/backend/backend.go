// Package backend defines the capability contract every video generation
// backend implements, the typed error taxonomy shared across the pipeline,
// and the registry that resolves configured backend names.
package backend

import "context"

// CapabilityDescriptor is an immutable snapshot of a backend's declared
// limits and supported features. A plan that violates a declared capability
// is rejected before any external call is made.
type CapabilityDescriptor struct {
	MaxDuration             float64  `json:"maxDuration"`
	SupportedDurations      []int    `json:"supportedDurations,omitempty"`
	SupportedResolutions    []string `json:"supportedResolutions,omitempty"`
	SupportedAspectRatios   []string `json:"supportedAspectRatios,omitempty"`
	SupportsImageToVideo    bool     `json:"supportsImageToVideo"`
	SupportsTextToVideo     bool     `json:"supportsTextToVideo"`
	SupportsFirstLastFrame  bool     `json:"supportsFirstLastFrame"`
	SupportsVideoExtension  bool     `json:"supportsVideoExtension"`
	SupportsReferenceImages bool     `json:"supportsReferenceImages"`
	RequiresGPU             bool     `json:"requiresGpu"`
	APIBased                bool     `json:"apiBased"`

	// FLFRequiredDuration is the fixed interpolation duration the backend
	// coerces to when an end image is supplied. Zero when FLF is unsupported.
	FLFRequiredDuration float64 `json:"flfRequiredDuration,omitempty"`
}

// Options carries optional per-request generation parameters.
type Options struct {
	AspectRatio     string
	Resolution      string
	NegativePrompt  string
	ReferenceImages []string
}

// Request describes one segment generation call.
type Request struct {
	Prompt     string
	InputImage string
	OutputPath string
	Duration   float64
	EndImage   string
	Options    Options
}

// VideoGenerator is the contract every generation backend implements.
// GenerateVideo must fail with a typed *Error rather than return a partial
// or invalid locator.
type VideoGenerator interface {
	// Name returns the registry name of this backend.
	Name() string

	// Capabilities returns the declared limits; pure, no side effects.
	Capabilities() CapabilityDescriptor

	// EstimateCost is a pure function of declared pricing and a resolution
	// multiplier table, in USD.
	EstimateCost(duration float64, resolution string) float64

	// ValidateInputs returns human-readable violations; empty means valid.
	ValidateInputs(prompt, inputImage string, duration float64) []string

	// GenerateVideo performs the side-effecting generation call and returns
	// the local path of the produced clip.
	GenerateVideo(ctx context.Context, req Request) (string, error)

	// IsAvailable is a cheap liveness/config check; it never panics and
	// resolves to false on internal errors.
	IsAvailable(ctx context.Context) bool
}
