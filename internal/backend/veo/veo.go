// Package veo implements the Google Veo API backend: submit a generation
// operation, poll it to completion, and download the produced clip.
package veo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
	"github.com/dp-pcs/ttv-pipeline/internal/progress"
)

const (
	// DefaultModel is the production Veo model identifier.
	DefaultModel = "veo-3.0-generate-001"

	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	maxPromptLen   = 1000
	maxDuration    = 8.0

	// flfDuration is the fixed duration Veo requires for first-last-frame
	// interpolation requests.
	flfDuration = 8.0
)

var supportedDurations = []int{4, 6, 8}

// perSecondUSD maps model families to their published per-second price.
var perSecondUSD = map[string]float64{
	"veo-3.0-generate-001":      0.75,
	"veo-3.0-fast-generate-001": 0.50,
}

// Generator calls the Veo long-running operations API.
type Generator struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	poller  *progress.Poller
}

// New builds a Veo backend with production polling cadence.
func New(apiKey, model string, pollInterval, budget time.Duration) *Generator {
	if model == "" {
		model = DefaultModel
	}
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	if budget <= 0 {
		budget = 10 * time.Minute
	}
	return &Generator{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   model,
		http:    &http.Client{Timeout: 2 * time.Minute},
		poller:  progress.NewPoller(pollInterval, budget),
	}
}

// NewForTests builds a Veo backend with injectable endpoint, client, and poller.
func NewForTests(apiKey, baseURL, model string, client *http.Client, poller *progress.Poller) *Generator {
	return &Generator{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    client,
		poller:  poller,
	}
}

// Name returns the registry name of this backend.
func (g *Generator) Name() string { return "veo3" }

// Capabilities returns Veo's declared limits.
func (g *Generator) Capabilities() backend.CapabilityDescriptor {
	return backend.CapabilityDescriptor{
		MaxDuration:            maxDuration,
		SupportedDurations:     append([]int(nil), supportedDurations...),
		SupportedResolutions:   []string{"720p", "1080p"},
		SupportedAspectRatios:  []string{"16:9", "9:16"},
		SupportsImageToVideo:   true,
		SupportsTextToVideo:    true,
		SupportsFirstLastFrame: true,
		APIBased:               true,
		FLFRequiredDuration:    flfDuration,
	}
}

// EstimateCost prices a segment from the model's per-second rate with a
// resolution multiplier for 1080p-class output.
func (g *Generator) EstimateCost(duration float64, resolution string) float64 {
	rate, ok := perSecondUSD[g.model]
	if !ok {
		rate = perSecondUSD[DefaultModel]
	}
	multiplier := 1.0
	if strings.Contains(resolution, "1080") {
		multiplier = 1.2
	}
	return duration * rate * multiplier
}

// ValidateInputs returns human-readable violations for one request.
func (g *Generator) ValidateInputs(prompt, inputImage string, duration float64) []string {
	violations := backend.ValidatePrompt(prompt, maxPromptLen)
	violations = append(violations, backend.ValidateDuration(duration, maxDuration)...)
	violations = append(violations, backend.ValidateImage(inputImage, backend.MaxImageSizeMB)...)
	if duration >= 1 && duration <= maxDuration && !isSupportedDuration(duration) {
		violations = append(violations, fmt.Sprintf("duration %gs not supported (supported: 4, 6, 8)", duration))
	}
	return violations
}

// IsAvailable reports whether the backend is configured for use.
func (g *Generator) IsAvailable(ctx context.Context) bool {
	return strings.TrimSpace(g.apiKey) != ""
}

type generateRequest struct {
	Prompt          string  `json:"prompt"`
	DurationSeconds float64 `json:"durationSeconds"`
	AspectRatio     string  `json:"aspectRatio,omitempty"`
	Resolution      string  `json:"resolution,omitempty"`
	NegativePrompt  string  `json:"negativePrompt,omitempty"`
	Image           string  `json:"image,omitempty"`
	LastFrame       string  `json:"lastFrame,omitempty"`
}

type generateResponse struct {
	Operation string `json:"operation"`
}

type operationStatus struct {
	Done     bool   `json:"done"`
	VideoURI string `json:"videoUri"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateVideo submits the operation, polls to completion, and downloads
// the produced clip to req.OutputPath.
func (g *Generator) GenerateVideo(ctx context.Context, req backend.Request) (string, error) {
	if violations := g.ValidateInputs(req.Prompt, req.InputImage, req.Duration); len(violations) > 0 {
		return "", backend.InvalidInput("%s", strings.Join(violations, "; "))
	}

	duration := req.Duration
	if req.EndImage != "" && duration != flfDuration {
		log.Printf("veo: first-last-frame request coerced from %gs to %gs", duration, flfDuration)
		duration = flfDuration
	}

	opName, err := g.submit(ctx, req, duration)
	if err != nil {
		return "", err
	}

	var videoURI string
	err = g.poller.Wait(ctx, func(ctx context.Context) (bool, error) {
		status, err := g.operation(ctx, opName)
		if err != nil {
			return false, err
		}
		if status.Error != nil {
			return false, backend.APIError(0, "veo operation failed: %s", status.Error.Message)
		}
		if status.Done {
			videoURI = status.VideoURI
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}
	if videoURI == "" {
		return "", backend.APIError(0, "veo operation finished without a video uri")
	}

	if err := g.download(ctx, videoURI, req.OutputPath); err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

// submit starts a long-running generation and returns the operation name.
func (g *Generator) submit(ctx context.Context, req backend.Request, duration float64) (string, error) {
	body := generateRequest{
		Prompt:          req.Prompt,
		DurationSeconds: duration,
		AspectRatio:     req.Options.AspectRatio,
		Resolution:      req.Options.Resolution,
		NegativePrompt:  req.Options.NegativePrompt,
	}
	if req.InputImage != "" {
		encoded, err := encodeImage(req.InputImage)
		if err != nil {
			return "", err
		}
		body.Image = encoded
	}
	if req.EndImage != "" {
		encoded, err := encodeImage(req.EndImage)
		if err != nil {
			return "", err
		}
		body.LastFrame = encoded
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal veo request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateVideo", g.baseURL, g.model)
	resp, err := g.post(ctx, url, data)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := g.checkStatus(resp); err != nil {
		return "", err
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", backend.APIError(0, "decode veo response: %v", err)
	}
	if out.Operation == "" {
		return "", backend.APIError(0, "veo accepted the request but returned no operation name")
	}
	return out.Operation, nil
}

// operation fetches the current state of a long-running operation.
func (g *Generator) operation(ctx context.Context, name string) (operationStatus, error) {
	url := fmt.Sprintf("%s/%s", g.baseURL, strings.TrimLeft(name, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return operationStatus{}, err
	}
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return operationStatus{}, backend.APIError(0, "veo poll request failed: %v", err)
	}
	defer resp.Body.Close()

	if err := g.checkStatus(resp); err != nil {
		return operationStatus{}, err
	}

	var status operationStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return operationStatus{}, backend.APIError(0, "decode veo operation: %v", err)
	}
	return status, nil
}

// download fetches the finished clip to localPath.
func (g *Generator) download(ctx context.Context, uri, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return backend.APIError(0, "veo video download failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return backend.APIError(resp.StatusCode, "veo video download failed")
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return backend.StorageFailure(err, "create output dir for %s", localPath)
	}
	file, err := os.Create(localPath)
	if err != nil {
		return backend.StorageFailure(err, "create %s", localPath)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		_ = file.Close()
		return backend.StorageFailure(err, "write %s", localPath)
	}
	return file.Close()
}

// post sends a JSON payload with the API key header.
func (g *Generator) post(ctx context.Context, url string, data []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, backend.APIError(0, "veo request failed: %v", err)
	}
	return resp, nil
}

// checkStatus maps non-2xx responses to typed errors.
func (g *Generator) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	msg := strings.TrimSpace(string(body))
	if resp.StatusCode == http.StatusTooManyRequests {
		return backend.QuotaExceeded("veo rate limited: %s", msg)
	}
	return backend.APIError(resp.StatusCode, "veo returned %d: %s", resp.StatusCode, msg)
}

// encodeImage base64-encodes a local image for inline transport.
func encodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", backend.InvalidInput("cannot read image %s: %v", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// isSupportedDuration checks against the discrete duration list.
func isSupportedDuration(duration float64) bool {
	for _, d := range supportedDurations {
		if duration == float64(d) {
			return true
		}
	}
	return false
}
