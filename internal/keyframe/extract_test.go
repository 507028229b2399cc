package keyframe

import (
	"context"
	"errors"
	"os"
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

// TestExtractLastFrameBuildsCommand checks the ffmpeg invocation.
func TestExtractLastFrameBuildsCommand(t *testing.T) {
	runner := &fakeRunner{}
	e := NewExtractorForTests("ffmpeg", runner, statAll)

	if err := e.ExtractLastFrame(context.Background(), "/work/segment_00.mp4", "/work/frame_01.png"); err != nil {
		t.Fatalf("ExtractLastFrame: %v", err)
	}
	if runner.name != "ffmpeg" {
		t.Fatalf("command = %q, want ffmpeg", runner.name)
	}

	joined := strings.Join(runner.args, " ")
	for _, want := range []string{
		"-sseof -0.1",
		"-i /work/segment_00.mp4",
		"-frames:v 1",
		"/work/frame_01.png",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args = %q, missing %q", joined, want)
		}
	}
}

// TestExtractLastFrameMissingClip checks the pre-flight stat.
func TestExtractLastFrameMissingClip(t *testing.T) {
	runner := &fakeRunner{}
	e := NewExtractorForTests("ffmpeg", runner,
		func(string) (os.FileInfo, error) { return nil, os.ErrNotExist })

	err := e.ExtractLastFrame(context.Background(), "/work/missing.mp4", "/work/frame.png")
	if err == nil {
		t.Fatal("expected missing clip error")
	}
	if backend.KindOf(err) != backend.KindStorageFailure {
		t.Fatalf("kind = %s, want storage_failure", backend.KindOf(err))
	}
	if runner.name != "" {
		t.Fatal("ffmpeg should not run for a missing clip")
	}
}

// TestExtractLastFrameCommandFailure checks stderr surfaces in the error.
func TestExtractLastFrameCommandFailure(t *testing.T) {
	runner := &fakeRunner{
		result: commandResult{ExitCode: 1, Stderr: "header\nInvalid data found"},
		err:    errors.New("exit status 1"),
	}
	e := NewExtractorForTests("ffmpeg", runner, statAll)

	err := e.ExtractLastFrame(context.Background(), "/work/segment_00.mp4", "/work/frame.png")
	if err == nil {
		t.Fatal("expected extraction failure")
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("error = %v, want last stderr line included", err)
	}
}
