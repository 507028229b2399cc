package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
)

const localScheme = "file://"

// LocalStore keeps artifacts under a root directory and addresses them with
// file:// URIs. It is the default store for single-machine deployments and
// for tests.
type LocalStore struct {
	root string
	now  func() time.Time
}

// NewLocalStore creates a filesystem-backed store rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, backend.ConfigError("local storage root cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, backend.StorageFailure(err, "cannot create storage root %s", dir)
	}
	return &LocalStore{root: dir, now: time.Now}, nil
}

// Upload copies a local file into the store and returns its file:// URI.
func (s *LocalStore) Upload(ctx context.Context, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%d_%s", s.now().UnixNano(), filepath.Base(localPath))
	destPath := filepath.Join(s.root, name)
	if err := copyFile(localPath, destPath); err != nil {
		return "", backend.StorageFailure(err, "upload %s", localPath)
	}
	return localScheme + destPath, nil
}

// Download copies a stored object to localPath.
func (s *LocalStore) Download(ctx context.Context, uri, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcPath, err := localPathFromURI(uri)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return backend.StorageFailure(err, "create parent dir for %s", localPath)
	}
	if err := copyFile(srcPath, localPath); err != nil {
		return backend.StorageFailure(err, "download %s", uri)
	}
	return nil
}

// SignedURL returns the file URI unchanged; local files carry no expiry.
func (s *LocalStore) SignedURL(ctx context.Context, uri string, ttl time.Duration) (string, error) {
	if _, err := localPathFromURI(uri); err != nil {
		return "", err
	}
	return uri, nil
}

// localPathFromURI strips the file scheme and rejects foreign URIs.
func localPathFromURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, localScheme) {
		return "", backend.StorageFailure(nil, "not a local storage uri: %s", uri)
	}
	return strings.TrimPrefix(uri, localScheme), nil
}

// copyFile duplicates src into dst, creating or truncating dst.
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
