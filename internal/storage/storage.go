// Package storage provides the object-storage collaborator used for
// segment clips and final artifacts.
package storage

import (
	"context"
	"time"
)

// Store is the object-storage boundary: upload a local file and get back a
// stable URI, download a URI to a local path, and mint time-limited URLs
// for finished artifacts.
type Store interface {
	Upload(ctx context.Context, localPath string) (string, error)
	Download(ctx context.Context, uri, localPath string) error
	SignedURL(ctx context.Context, uri string, ttl time.Duration) (string, error)
}
