// Package wan implements the Wan 2.1 backend, which runs generation locally
// through the reference inference script instead of a remote API. It costs
// nothing per segment but needs a GPU and the model weights on disk.
package wan

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
)

const (
	maxPromptLen = 1000
	maxDuration  = 10.0
	framesPerSec = 16
)

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Generator runs Wan 2.1 inference as a local subprocess.
type Generator struct {
	pythonPath string
	scriptPath string
	modelDir   string
	size       string
	runner     commandRunner
	stat       func(name string) (os.FileInfo, error)
	lookPath   func(file string) (string, error)
}

// New builds a Wan backend bound to a local script and model directory.
func New(pythonPath, scriptPath, modelDir, size string) *Generator {
	if pythonPath == "" {
		pythonPath = "python3"
	}
	if size == "" {
		size = "832*480"
	}
	return &Generator{
		pythonPath: pythonPath,
		scriptPath: scriptPath,
		modelDir:   modelDir,
		size:       size,
		runner:     &execRunner{},
		stat:       os.Stat,
		lookPath:   exec.LookPath,
	}
}

// NewForTests builds a Wan backend with injectable process and OS dependencies.
func NewForTests(
	pythonPath string,
	scriptPath string,
	modelDir string,
	runner commandRunner,
	stat func(name string) (os.FileInfo, error),
	lookPath func(file string) (string, error),
) *Generator {
	return &Generator{
		pythonPath: pythonPath,
		scriptPath: scriptPath,
		modelDir:   modelDir,
		size:       "832*480",
		runner:     runner,
		stat:       stat,
		lookPath:   lookPath,
	}
}

// Name returns the registry name of this backend.
func (g *Generator) Name() string { return "wan21" }

// Capabilities returns Wan's declared limits.
func (g *Generator) Capabilities() backend.CapabilityDescriptor {
	return backend.CapabilityDescriptor{
		MaxDuration:            maxDuration,
		SupportedResolutions:   []string{"480p", "720p"},
		SupportedAspectRatios:  []string{"16:9", "9:16", "1:1"},
		SupportsImageToVideo:   true,
		SupportsTextToVideo:    true,
		SupportsFirstLastFrame: true,
		RequiresGPU:            true,
	}
}

// EstimateCost is always zero: local generation has no per-call price.
func (g *Generator) EstimateCost(duration float64, resolution string) float64 {
	return 0
}

// ValidateInputs returns human-readable violations for one request.
func (g *Generator) ValidateInputs(prompt, inputImage string, duration float64) []string {
	violations := backend.ValidatePrompt(prompt, maxPromptLen)
	violations = append(violations, backend.ValidateDuration(duration, maxDuration)...)
	violations = append(violations, backend.ValidateImage(inputImage, backend.MaxImageSizeMB)...)
	return violations
}

// IsAvailable checks that the interpreter, script, and model weights exist.
func (g *Generator) IsAvailable(ctx context.Context) bool {
	if _, err := g.lookPath(g.pythonPath); err != nil {
		return false
	}
	if _, err := g.stat(g.scriptPath); err != nil {
		return false
	}
	if _, err := g.stat(g.modelDir); err != nil {
		return false
	}
	return true
}

// GenerateVideo runs the inference script and verifies the produced clip.
func (g *Generator) GenerateVideo(ctx context.Context, req backend.Request) (string, error) {
	violations := g.ValidateInputs(req.Prompt, req.InputImage, req.Duration)
	if req.EndImage != "" {
		if strings.TrimSpace(req.InputImage) == "" {
			violations = append(violations, "first-last-frame generation requires a first-frame input image")
		}
		violations = append(violations, backend.ValidateImage(req.EndImage, backend.MaxImageSizeMB)...)
	}
	if len(violations) > 0 {
		return "", backend.InvalidInput("%s", strings.Join(violations, "; "))
	}
	if !g.IsAvailable(ctx) {
		return "", backend.ConfigError("wan21 is not available: check python, script, and model paths")
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return "", backend.StorageFailure(err, "create output dir for %s", req.OutputPath)
	}

	args := buildInferenceArgs(g.scriptPath, g.modelDir, g.size, req)
	result, err := g.runner.Run(ctx, g.pythonPath, args...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", backend.APIError(0, "wan inference failed (exit=%d): %s",
			result.ExitCode, lastLine(result.Stderr))
	}

	if _, err := g.stat(req.OutputPath); err != nil {
		return "", backend.APIError(0, "wan inference completed but output file is missing: %s", req.OutputPath)
	}
	return req.OutputPath, nil
}

// buildInferenceArgs builds the generate.py CLI invocation for one segment.
func buildInferenceArgs(scriptPath, modelDir, size string, req backend.Request) []string {
	task := "t2v-14B"
	switch {
	case req.EndImage != "":
		task = "flf2v-14B"
	case req.InputImage != "":
		task = "i2v-14B"
	}

	frames := int(req.Duration * framesPerSec)
	args := []string{
		scriptPath,
		"--task", task,
		"--ckpt_dir", modelDir,
		"--size", size,
		"--frame_num", strconv.Itoa(frames),
		"--prompt", req.Prompt,
		"--save_file", req.OutputPath,
	}
	switch {
	case req.EndImage != "":
		args = append(args, "--first_frame", req.InputImage, "--last_frame", req.EndImage)
	case req.InputImage != "":
		args = append(args, "--image", req.InputImage)
	}
	if req.Options.NegativePrompt != "" {
		args = append(args, "--negative_prompt", req.Options.NegativePrompt)
	}
	return args
}

// lastLine extracts the final non-empty stderr line for compact errors.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "no output"
}
