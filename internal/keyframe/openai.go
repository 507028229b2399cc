// Package keyframe produces segment conditioning images: stills rendered
// from text prompts via the OpenAI Images API, and last frames extracted
// from finished clips for visual continuity between segments.
package keyframe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
)

// OpenAIGenerator renders keyframe images through an OpenAI-compatible
// image generation endpoint.
type OpenAIGenerator struct {
	APIKey  string
	BaseURL string
	Model   string
	Size    string
	HTTP    *http.Client
}

// NewOpenAIGenerator builds a client with sane defaults.
func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-image-1"
	}
	return &OpenAIGenerator{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Size:    "1024x1024",
		HTTP:    &http.Client{Timeout: 5 * time.Minute},
	}
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageDatum struct {
	B64JSON string `json:"b64_json"`
}

type imageResponse struct {
	Data []imageDatum `json:"data"`
}

// Generate renders one image for the prompt and writes it to outputPath.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt, outputPath string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", backend.InvalidInput("keyframe prompt cannot be empty")
	}

	data, err := json.Marshal(imageRequest{Model: g.Model, Prompt: prompt, N: 1, Size: g.Size})
	if err != nil {
		return "", fmt.Errorf("marshal image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/images/generations", bytes.NewBuffer(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return "", backend.APIError(0, "keyframe generation request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", backend.QuotaExceeded("keyframe generation rate limited: %s", strings.TrimSpace(string(body)))
		}
		return "", backend.APIError(resp.StatusCode, "keyframe generation failed: %s", strings.TrimSpace(string(body)))
	}

	var out imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", backend.APIError(0, "decode image response: %v", err)
	}
	if len(out.Data) == 0 || out.Data[0].B64JSON == "" {
		return "", backend.APIError(0, "keyframe generation returned no image data")
	}

	image, err := base64.StdEncoding.DecodeString(out.Data[0].B64JSON)
	if err != nil {
		return "", backend.APIError(0, "decode image payload: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", backend.StorageFailure(err, "create keyframe dir for %s", outputPath)
	}
	if err := os.WriteFile(outputPath, image, 0o644); err != nil {
		return "", backend.StorageFailure(err, "write keyframe %s", outputPath)
	}
	return outputPath, nil
}
