// Package runway implements the Runway ML image-to-video backend: create a
// task, poll its status, and download the produced clip. Runway offers no
// text-to-video mode, so every request needs an input image.
package runway

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
	"github.com/dp-pcs/ttv-pipeline/internal/progress"
)

const (
	// DefaultModel is the production Runway model identifier.
	DefaultModel = "gen3a_turbo"

	defaultBaseURL = "https://api.dev.runwayml.com/v1"
	apiVersion     = "2024-11-06"
	maxPromptLen   = 1000
	maxDuration    = 10.0
	perSecondUSD   = 0.25
)

// Generator calls the Runway task API.
type Generator struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	poller  *progress.Poller
}

// New builds a Runway backend with production polling cadence.
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

// NewForTests builds a Runway backend with injectable endpoint, client, and poller.
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
func (g *Generator) Name() string { return "runway" }

// Capabilities returns Runway's declared limits.
func (g *Generator) Capabilities() backend.CapabilityDescriptor {
	return backend.CapabilityDescriptor{
		MaxDuration:            maxDuration,
		SupportedDurations:     []int{5, 10},
		SupportedResolutions:   []string{"720p"},
		SupportedAspectRatios:  []string{"16:9", "9:16"},
		SupportsImageToVideo:   true,
		SupportsVideoExtension: true,
		APIBased:               true,
	}
}

// EstimateCost prices a segment at the flat per-second rate.
func (g *Generator) EstimateCost(duration float64, resolution string) float64 {
	return duration * perSecondUSD
}

// ValidateInputs returns human-readable violations for one request.
// An input image is mandatory: Runway cannot generate from text alone.
func (g *Generator) ValidateInputs(prompt, inputImage string, duration float64) []string {
	violations := backend.ValidatePrompt(prompt, maxPromptLen)
	violations = append(violations, backend.ValidateDuration(duration, maxDuration)...)
	if strings.TrimSpace(inputImage) == "" {
		violations = append(violations, "runway requires an input image (no text-to-video support)")
	} else {
		violations = append(violations, backend.ValidateImage(inputImage, backend.MaxImageSizeMB)...)
	}
	return violations
}

// IsAvailable reports whether the backend is configured for use.
func (g *Generator) IsAvailable(ctx context.Context) bool {
	return strings.TrimSpace(g.apiKey) != ""
}

type taskRequest struct {
	Model       string  `json:"model"`
	PromptImage string  `json:"promptImage"`
	PromptText  string  `json:"promptText"`
	Duration    float64 `json:"duration"`
	Ratio       string  `json:"ratio,omitempty"`
}

type taskResponse struct {
	ID string `json:"id"`
}

type taskStatus struct {
	Status        string   `json:"status"`
	Output        []string `json:"output"`
	FailureReason string   `json:"failure"`
}

// GenerateVideo creates the task, polls to completion, and downloads the
// produced clip to req.OutputPath.
func (g *Generator) GenerateVideo(ctx context.Context, req backend.Request) (string, error) {
	violations := g.ValidateInputs(req.Prompt, req.InputImage, req.Duration)
	if req.EndImage != "" {
		violations = append(violations, "end image not supported (runway has no first-last-frame mode)")
	}
	if len(violations) > 0 {
		return "", backend.InvalidInput("%s", strings.Join(violations, "; "))
	}

	taskID, err := g.createTask(ctx, req)
	if err != nil {
		return "", err
	}

	var outputURL string
	err = g.poller.Wait(ctx, func(ctx context.Context) (bool, error) {
		status, err := g.task(ctx, taskID)
		if err != nil {
			return false, err
		}
		switch status.Status {
		case "SUCCEEDED":
			if len(status.Output) == 0 {
				return false, backend.APIError(0, "runway task %s succeeded without output", taskID)
			}
			outputURL = status.Output[0]
			return true, nil
		case "FAILED":
			return false, backend.APIError(0, "runway task %s failed: %s", taskID, status.FailureReason)
		default:
			return false, nil
		}
	})
	if err != nil {
		return "", err
	}

	if err := g.download(ctx, outputURL, req.OutputPath); err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

// createTask submits an image-to-video task and returns its id.
func (g *Generator) createTask(ctx context.Context, req backend.Request) (string, error) {
	image, err := encodeImageDataURI(req.InputImage)
	if err != nil {
		return "", err
	}

	body := taskRequest{
		Model:       g.model,
		PromptImage: image,
		PromptText:  req.Prompt,
		Duration:    req.Duration,
		Ratio:       req.Options.AspectRatio,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal runway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/image_to_video", bytes.NewBuffer(data))
	if err != nil {
		return "", err
	}
	g.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return "", backend.APIError(0, "runway request failed: %v", err)
	}
	defer resp.Body.Close()

	if err := g.checkStatus(resp); err != nil {
		return "", err
	}

	var out taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", backend.APIError(0, "decode runway response: %v", err)
	}
	if out.ID == "" {
		return "", backend.APIError(0, "runway accepted the request but returned no task id")
	}
	return out.ID, nil
}

// task fetches the current state of a task.
func (g *Generator) task(ctx context.Context, id string) (taskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/tasks/"+id, nil)
	if err != nil {
		return taskStatus{}, err
	}
	g.setHeaders(req)

	resp, err := g.http.Do(req)
	if err != nil {
		return taskStatus{}, backend.APIError(0, "runway poll request failed: %v", err)
	}
	defer resp.Body.Close()

	if err := g.checkStatus(resp); err != nil {
		return taskStatus{}, err
	}

	var status taskStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return taskStatus{}, backend.APIError(0, "decode runway task: %v", err)
	}
	return status, nil
}

// download fetches the finished clip to localPath.
func (g *Generator) download(ctx context.Context, url, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return backend.APIError(0, "runway video download failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return backend.APIError(resp.StatusCode, "runway video download failed")
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

// setHeaders attaches authorization and API version headers.
func (g *Generator) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("X-Runway-Version", apiVersion)
}

// checkStatus maps non-2xx responses to typed errors.
func (g *Generator) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	msg := strings.TrimSpace(string(body))
	if resp.StatusCode == http.StatusTooManyRequests {
		return backend.QuotaExceeded("runway rate limited: %s", msg)
	}
	return backend.APIError(resp.StatusCode, "runway returned %d: %s", resp.StatusCode, msg)
}

// encodeImageDataURI inlines a local image as a data URI.
func encodeImageDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", backend.InvalidInput("cannot read image %s: %v", path, err)
	}

	mime := "image/png"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		mime = "image/jpeg"
	case ".webp":
		mime = "image/webp"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}
