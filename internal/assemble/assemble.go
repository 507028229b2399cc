// Package assemble stitches per-segment clips into one continuous video
// using ffmpeg's concat demuxer. A single-clip job skips ffmpeg and copies
// the clip to the final path.
package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
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

// Assembler concatenates ordered segment clips into a final video.
type Assembler struct {
	ffmpegPath string
	runner     commandRunner
	stat       func(name string) (os.FileInfo, error)
	writeFile  func(name string, data []byte, perm os.FileMode) error
	remove     func(name string) error
}

// New constructs the production assembler with OS dependencies.
func New() *Assembler {
	return &Assembler{
		ffmpegPath: "ffmpeg",
		runner:     &execRunner{},
		stat:       os.Stat,
		writeFile:  os.WriteFile,
		remove:     os.Remove,
	}
}

// NewForTests constructs an assembler with injectable dependencies.
func NewForTests(
	ffmpegPath string,
	runner commandRunner,
	stat func(name string) (os.FileInfo, error),
	writeFile func(name string, data []byte, perm os.FileMode) error,
	remove func(name string) error,
) *Assembler {
	return &Assembler{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		stat:       stat,
		writeFile:  writeFile,
		remove:     remove,
	}
}

// Concat joins clipPaths, in order, into outputPath.
func (a *Assembler) Concat(ctx context.Context, clipPaths []string, outputPath string) error {
	if len(clipPaths) == 0 {
		return backend.InvalidInput("no clips to assemble")
	}
	for _, clip := range clipPaths {
		if _, err := a.stat(clip); err != nil {
			return backend.StorageFailure(err, "clip missing before assembly: %s", clip)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return backend.StorageFailure(err, "create output dir for %s", outputPath)
	}

	if len(clipPaths) == 1 {
		if err := copyFile(clipPaths[0], outputPath); err != nil {
			return backend.StorageFailure(err, "copy single clip to %s", outputPath)
		}
		return nil
	}

	listPath := outputPath + ".concat.txt"
	if err := a.writeFile(listPath, []byte(buildConcatList(clipPaths)), 0o644); err != nil {
		return backend.StorageFailure(err, "write concat list %s", listPath)
	}
	defer func() { _ = a.remove(listPath) }()

	args := buildConcatArgs(listPath, outputPath)
	result, err := a.runner.Run(ctx, a.ffmpegPath, args...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return backend.StorageFailure(err, "ffmpeg concat failed (exit=%d): %s",
			result.ExitCode, lastLine(result.Stderr))
	}

	if _, err := a.stat(outputPath); err != nil {
		return backend.StorageFailure(err, "ffmpeg completed but output file is missing: %s", outputPath)
	}
	return nil
}

// buildConcatList formats the concat demuxer input file. Single quotes in
// paths are escaped per ffmpeg's quoting rules.
func buildConcatList(clipPaths []string) string {
	var b strings.Builder
	for _, clip := range clipPaths {
		escaped := strings.ReplaceAll(clip, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	return b.String()
}

// buildConcatArgs builds the ffmpeg CLI for a stream-copy concat.
func buildConcatArgs(listPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
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

// copyFile duplicates src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
