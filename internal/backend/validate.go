package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dp-pcs/ttv-pipeline/internal/domain"
)

// MaxImageSizeMB bounds input image uploads across all backends.
const MaxImageSizeMB = 10.0

var supportedImageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// ValidatePrompt checks prompt presence and length limit.
func ValidatePrompt(prompt string, maxLen int) []string {
	var violations []string
	if strings.TrimSpace(prompt) == "" {
		violations = append(violations, "prompt cannot be empty")
	} else if maxLen > 0 && len(prompt) > maxLen {
		violations = append(violations, fmt.Sprintf("prompt too long (max %d characters)", maxLen))
	}
	return violations
}

// ValidateDuration checks a requested duration against declared bounds.
func ValidateDuration(duration, maxDuration float64) []string {
	var violations []string
	if duration < 1 {
		violations = append(violations, "duration must be at least 1 second")
	} else if duration > maxDuration {
		violations = append(violations, fmt.Sprintf("duration %gs exceeds maximum %gs", duration, maxDuration))
	}
	return violations
}

// ValidateImage checks an optional input image path for existence, format,
// and size. An empty path is valid (text-to-video requests carry none).
func ValidateImage(path string, maxSizeMB float64) []string {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	var violations []string
	info, err := os.Stat(path)
	if err != nil {
		return append(violations, fmt.Sprintf("image file not found: %s", path))
	}

	sizeMB := float64(info.Size()) / (1024 * 1024)
	if sizeMB > maxSizeMB {
		violations = append(violations, fmt.Sprintf("image file too large: %.2fMB (max %.0fMB)", sizeMB, maxSizeMB))
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !supportedImageExts[ext] {
		violations = append(violations, fmt.Sprintf("unsupported image format: %s (supported: png, jpg, jpeg, webp)", ext))
	}
	return violations
}

// ValidatePlan checks every planned segment against a capability descriptor.
// Violations here reject the plan before any external call is made.
func ValidatePlan(caps CapabilityDescriptor, segments []domain.SegmentSpec) []string {
	var violations []string
	if len(segments) == 0 {
		return append(violations, "plan contains no segments")
	}

	for _, seg := range segments {
		for _, v := range ValidateDuration(seg.Duration, caps.MaxDuration) {
			violations = append(violations, fmt.Sprintf("segment %d: %s", seg.Index, v))
		}
		if strings.TrimSpace(seg.VideoPrompt) == "" {
			violations = append(violations, fmt.Sprintf("segment %d: prompt cannot be empty", seg.Index))
		}
	}
	return violations
}
