package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
)

// TestLocalStoreRoundTrip checks upload, download, and signed URL behavior.
func TestLocalStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(filepath.Join(root, "artifacts"))
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	srcPath := filepath.Join(root, "segment_01.mp4")
	if err := os.WriteFile(srcPath, []byte("clip-bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	uri, err := store.Upload(context.Background(), srcPath)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(uri, "file://") {
		t.Fatalf("uri = %q, want file:// scheme", uri)
	}

	destPath := filepath.Join(root, "restore", "clip.mp4")
	if err := store.Download(context.Background(), uri, destPath); err != nil {
		t.Fatalf("Download: %v", err)
	}
	content, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(content) != "clip-bytes" {
		t.Fatalf("content = %q, want clip-bytes", content)
	}

	signed, err := store.SignedURL(context.Background(), uri, time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if signed != uri {
		t.Fatalf("signed url = %q, want uri unchanged", signed)
	}
}

// TestLocalStoreRejectsForeignURI checks scheme validation.
func TestLocalStoreRejectsForeignURI(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	err = store.Download(context.Background(), "s3://bucket/key.mp4", filepath.Join(t.TempDir(), "out.mp4"))
	if err == nil {
		t.Fatal("expected error for non-local uri")
	}
	if backend.KindOf(err) != backend.KindStorageFailure {
		t.Fatalf("kind = %s, want storage_failure", backend.KindOf(err))
	}
}

// TestLocalStoreUploadMissingFile checks the failure path for a bad source.
func TestLocalStoreUploadMissingFile(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	_, err = store.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	if err == nil {
		t.Fatal("expected error for missing source file")
	}
	if backend.KindOf(err) != backend.KindStorageFailure {
		t.Fatalf("kind = %s, want storage_failure", backend.KindOf(err))
	}
}

// TestParseS3URI checks uri parsing edge cases.
func TestParseS3URI(t *testing.T) {
	bucket, key, err := parseS3URI("s3://outputs/videos/20250601/final.mp4")
	if err != nil {
		t.Fatalf("parseS3URI: %v", err)
	}
	if bucket != "outputs" || key != "videos/20250601/final.mp4" {
		t.Fatalf("parsed = %q/%q", bucket, key)
	}

	for _, bad := range []string{"file:///x.mp4", "s3://", "s3://bucket", "s3://bucket/"} {
		if _, _, err := parseS3URI(bad); err == nil {
			t.Fatalf("expected parse error for %q", bad)
		}
	}
}
