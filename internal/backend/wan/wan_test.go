package wan

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
)

// fakeRunner records invocations and returns a configured response.
type fakeRunner struct {
	name   string
	args   []string
	result commandResult
	err    error
	onRun  func()
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	f.name = name
	f.args = args
	if f.onRun != nil {
		f.onRun()
	}
	return f.result, f.err
}

// statAll pretends every path exists.
func statAll(name string) (os.FileInfo, error) {
	return os.Stat(".")
}

// lookPathOK pretends every binary is on PATH.
func lookPathOK(file string) (string, error) {
	return "/usr/bin/" + file, nil
}

// TestGenerateVideoBuildsInferenceCommand checks the subprocess invocation.
func TestGenerateVideoBuildsInferenceCommand(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "segment_00.mp4")
	runner := &fakeRunner{}
	runner.onRun = func() {
		if err := os.WriteFile(outPath, []byte("wan-clip"), 0o644); err != nil {
			t.Fatalf("write output: %v", err)
		}
	}

	g := NewForTests("python3", "/opt/wan/generate.py", "/opt/wan/weights", runner, os.Stat, lookPathOK)
	// Stat must pass for script and model paths during availability check.
	g.stat = func(name string) (os.FileInfo, error) {
		if name == outPath {
			return os.Stat(outPath)
		}
		return os.Stat(".")
	}

	got, err := g.GenerateVideo(context.Background(), backend.Request{
		Prompt:     "a cat walks on a beach",
		OutputPath: outPath,
		Duration:   5,
	})
	if err != nil {
		t.Fatalf("GenerateVideo: %v", err)
	}
	if got != outPath {
		t.Fatalf("path = %q, want %q", got, outPath)
	}
	if runner.name != "python3" {
		t.Fatalf("command = %q, want python3", runner.name)
	}

	joined := strings.Join(runner.args, " ")
	for _, want := range []string{
		"/opt/wan/generate.py",
		"--task t2v-14B",
		"--ckpt_dir /opt/wan/weights",
		"--frame_num 80",
		"--save_file " + outPath,
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args = %q, missing %q", joined, want)
		}
	}
}

// TestGenerateVideoImageTask checks the image-to-video task switch.
func TestGenerateVideoImageTask(t *testing.T) {
	image := filepath.Join(t.TempDir(), "frame.png")
	if err := os.WriteFile(image, []byte("png"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	req := backend.Request{
		Prompt:     "the cat curls up",
		InputImage: image,
		OutputPath: "/tmp/out.mp4",
		Duration:   4,
	}
	args := buildInferenceArgs("/opt/wan/generate.py", "/opt/wan/weights", "832*480", req)
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--task i2v-14B") {
		t.Fatalf("args = %q, want i2v task", joined)
	}
	if !strings.Contains(joined, "--image "+image) {
		t.Fatalf("args = %q, missing image flag", joined)
	}
}

// TestGenerateVideoFirstLastFrameTask checks the flf2v task switch.
func TestGenerateVideoFirstLastFrameTask(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.png")
	last := filepath.Join(dir, "last.png")
	for _, path := range []string{first, last} {
		if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}

	req := backend.Request{
		Prompt:     "the cat curls up",
		InputImage: first,
		EndImage:   last,
		OutputPath: "/tmp/out.mp4",
		Duration:   4,
	}
	args := buildInferenceArgs("/opt/wan/generate.py", "/opt/wan/weights", "832*480", req)
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--task flf2v-14B") {
		t.Fatalf("args = %q, want flf2v task", joined)
	}
	if !strings.Contains(joined, "--first_frame "+first) {
		t.Fatalf("args = %q, missing first frame flag", joined)
	}
	if !strings.Contains(joined, "--last_frame "+last) {
		t.Fatalf("args = %q, missing last frame flag", joined)
	}
}

// TestGenerateVideoEndImageNeedsFirstFrame checks an end image without a
// first-frame input is rejected before any subprocess runs.
func TestGenerateVideoEndImageNeedsFirstFrame(t *testing.T) {
	last := filepath.Join(t.TempDir(), "last.png")
	if err := os.WriteFile(last, []byte("png"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	runner := &fakeRunner{}
	g := NewForTests("python3", "/opt/wan/generate.py", "/opt/wan/weights", runner, statAll, lookPathOK)

	_, err := g.GenerateVideo(context.Background(), backend.Request{
		Prompt:     "the cat curls up",
		EndImage:   last,
		OutputPath: "/tmp/out.mp4",
		Duration:   4,
	})
	if err == nil {
		t.Fatal("expected rejection without a first-frame image")
	}
	if backend.KindOf(err) != backend.KindInvalidInput {
		t.Fatalf("kind = %s, want invalid_input", backend.KindOf(err))
	}
	if runner.name != "" {
		t.Fatal("no subprocess should run for an invalid request")
	}
}

// TestGenerateVideoCommandFailure checks stderr surfaces in the error.
func TestGenerateVideoCommandFailure(t *testing.T) {
	runner := &fakeRunner{
		result: commandResult{ExitCode: 1, Stderr: "traceback\nCUDA out of memory"},
		err:    errors.New("exit status 1"),
	}
	g := NewForTests("python3", "/opt/wan/generate.py", "/opt/wan/weights", runner, statAll, lookPathOK)

	_, err := g.GenerateVideo(context.Background(), backend.Request{
		Prompt:     "a cat walks on a beach",
		OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
		Duration:   5,
	})
	if err == nil {
		t.Fatal("expected inference failure")
	}
	if backend.KindOf(err) != backend.KindAPIError {
		t.Fatalf("kind = %s, want api_error", backend.KindOf(err))
	}
	if !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Fatalf("error = %v, want last stderr line included", err)
	}
}

// TestIsAvailableRequiresAllPaths checks the availability probes.
func TestIsAvailableRequiresAllPaths(t *testing.T) {
	runner := &fakeRunner{}

	g := NewForTests("python3", "/opt/wan/generate.py", "/opt/wan/weights", runner, statAll, lookPathOK)
	if !g.IsAvailable(context.Background()) {
		t.Fatal("expected available with all probes passing")
	}

	noPython := NewForTests("python3", "/opt/wan/generate.py", "/opt/wan/weights", runner, statAll,
		func(string) (string, error) { return "", exec.ErrNotFound })
	if noPython.IsAvailable(context.Background()) {
		t.Fatal("expected unavailable without interpreter")
	}

	noModel := NewForTests("python3", "/opt/wan/generate.py", "/opt/wan/weights", runner,
		func(string) (os.FileInfo, error) { return nil, os.ErrNotExist }, lookPathOK)
	if noModel.IsAvailable(context.Background()) {
		t.Fatal("expected unavailable without model weights")
	}
}

// TestEstimateCostIsZero checks local generation pricing.
func TestEstimateCostIsZero(t *testing.T) {
	g := New("", "/opt/wan/generate.py", "/opt/wan/weights", "")
	if cost := g.EstimateCost(10, "720p"); cost != 0 {
		t.Fatalf("cost = %g, want 0", cost)
	}
	if !g.Capabilities().RequiresGPU {
		t.Fatal("gpu requirement should be declared")
	}
}
