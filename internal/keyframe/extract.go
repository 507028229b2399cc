package keyframe

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
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

// Extractor captures a clip's final frame with ffmpeg so the next segment
// can start from it.
type Extractor struct {
	ffmpegPath string
	runner     commandRunner
	stat       func(name string) (os.FileInfo, error)
}

// NewExtractor constructs the production extractor with OS dependencies.
func NewExtractor() *Extractor {
	return &Extractor{
		ffmpegPath: "ffmpeg",
		runner:     &execRunner{},
		stat:       os.Stat,
	}
}

// NewExtractorForTests constructs an extractor with injectable dependencies.
func NewExtractorForTests(ffmpegPath string, runner commandRunner, stat func(name string) (os.FileInfo, error)) *Extractor {
	return &Extractor{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		stat:       stat,
	}
}

// ExtractLastFrame writes the final frame of videoPath to outputPath.
func (e *Extractor) ExtractLastFrame(ctx context.Context, videoPath, outputPath string) error {
	if _, err := e.stat(videoPath); err != nil {
		return backend.StorageFailure(err, "clip missing before frame extraction: %s", videoPath)
	}

	args := buildExtractArgs(videoPath, outputPath)
	result, err := e.runner.Run(ctx, e.ffmpegPath, args...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return backend.StorageFailure(err, "ffmpeg frame extraction failed (exit=%d): %s",
			result.ExitCode, lastLine(result.Stderr))
	}

	if _, err := e.stat(outputPath); err != nil {
		return backend.StorageFailure(err, "ffmpeg completed but frame is missing: %s", outputPath)
	}
	return nil
}

// buildExtractArgs builds the ffmpeg CLI for a last-frame capture: seek to
// just before the end of the stream and emit one frame.
func buildExtractArgs(videoPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-sseof", "-0.1",
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		outputPath,
	}
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
