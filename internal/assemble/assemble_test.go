package assemble

import (
	"context"
	"errors"
	"os"
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

// writeClips creates n placeholder clip files.
func writeClips(t *testing.T, dir string, n int) []string {
	t.Helper()
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, "segment_0"+string(rune('0'+i))+".mp4")
		if err := os.WriteFile(path, []byte("clip"), 0o644); err != nil {
			t.Fatalf("write clip: %v", err)
		}
		paths = append(paths, path)
	}
	return paths
}

// TestConcatInvokesFFmpeg checks the concat demuxer invocation and list file.
func TestConcatInvokesFFmpeg(t *testing.T) {
	dir := t.TempDir()
	clips := writeClips(t, dir, 2)
	outPath := filepath.Join(dir, "final.mp4")

	var listContent string
	runner := &fakeRunner{}
	runner.onRun = func() {
		if err := os.WriteFile(outPath, []byte("joined"), 0o644); err != nil {
			t.Fatalf("write output: %v", err)
		}
	}

	a := NewForTests("ffmpeg", runner, os.Stat,
		func(name string, data []byte, perm os.FileMode) error {
			listContent = string(data)
			return os.WriteFile(name, data, perm)
		},
		os.Remove,
	)

	if err := a.Concat(context.Background(), clips, outPath); err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if runner.name != "ffmpeg" {
		t.Fatalf("command = %q, want ffmpeg", runner.name)
	}

	joined := strings.Join(runner.args, " ")
	for _, want := range []string{"-f concat", "-safe 0", "-c copy", outPath} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args = %q, missing %q", joined, want)
		}
	}
	wantList := "file '" + clips[0] + "'\nfile '" + clips[1] + "'\n"
	if listContent != wantList {
		t.Fatalf("list = %q, want %q", listContent, wantList)
	}
}

// TestConcatSingleClipCopies checks the single-segment fast path.
func TestConcatSingleClipCopies(t *testing.T) {
	dir := t.TempDir()
	clips := writeClips(t, dir, 1)
	outPath := filepath.Join(dir, "final.mp4")

	runner := &fakeRunner{}
	a := NewForTests("ffmpeg", runner, os.Stat, os.WriteFile, os.Remove)

	if err := a.Concat(context.Background(), clips, outPath); err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if runner.name != "" {
		t.Fatal("ffmpeg should not run for a single clip")
	}
	content, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(content) != "clip" {
		t.Fatalf("content = %q, want clip", content)
	}
}

// TestConcatMissingClip checks the pre-flight clip existence check.
func TestConcatMissingClip(t *testing.T) {
	a := NewForTests("ffmpeg", &fakeRunner{}, os.Stat, os.WriteFile, os.Remove)

	err := a.Concat(context.Background(), []string{filepath.Join(t.TempDir(), "missing.mp4")},
		filepath.Join(t.TempDir(), "final.mp4"))
	if err == nil {
		t.Fatal("expected error for missing clip")
	}
	if backend.KindOf(err) != backend.KindStorageFailure {
		t.Fatalf("kind = %s, want storage_failure", backend.KindOf(err))
	}
}

// TestConcatCommandFailure checks stderr surfaces in the error.
func TestConcatCommandFailure(t *testing.T) {
	dir := t.TempDir()
	clips := writeClips(t, dir, 2)

	runner := &fakeRunner{
		result: commandResult{ExitCode: 1, Stderr: "header\nInvalid data found when processing input"},
		err:    errors.New("exit status 1"),
	}
	a := NewForTests("ffmpeg", runner, os.Stat, os.WriteFile, os.Remove)

	err := a.Concat(context.Background(), clips, filepath.Join(dir, "final.mp4"))
	if err == nil {
		t.Fatal("expected concat failure")
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("error = %v, want last stderr line included", err)
	}
}

// TestConcatEmptyInput checks the no-clips edge case.
func TestConcatEmptyInput(t *testing.T) {
	a := New()
	err := a.Concat(context.Background(), nil, "/tmp/final.mp4")
	if backend.KindOf(err) != backend.KindInvalidInput {
		t.Fatalf("kind = %s, want invalid_input", backend.KindOf(err))
	}
}
