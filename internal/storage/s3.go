package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
)

const s3Scheme = "s3://"

// s3API is the subset of the S3 client the store uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// s3Presigner is the subset of the presign client the store uses.
type s3Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*s3PresignedRequest, error)
}

// s3PresignedRequest mirrors the presigned request fields the store reads.
type s3PresignedRequest struct {
	URL string
}

// S3Store persists artifacts in an S3-compatible bucket and addresses them
// with s3:// URIs.
type S3Store struct {
	bucket  string
	prefix  string
	client  s3API
	presign s3Presigner
	now     func() time.Time
}

// NewS3Store creates a store bound to one bucket using the ambient AWS
// credential chain.
func NewS3Store(ctx context.Context, bucket, prefix string) (*S3Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, backend.ConfigError("s3 storage bucket cannot be empty")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, backend.ConfigError("load aws config: %v", err)
	}

	client := s3.NewFromConfig(cfg)
	presigner := s3.NewPresignClient(client)
	return &S3Store{
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		client:  client,
		presign: presignAdapter{presigner},
		now:     time.Now,
	}, nil
}

// presignAdapter narrows the SDK presign client to s3Presigner.
type presignAdapter struct {
	client *s3.PresignClient
}

func (a presignAdapter) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*s3PresignedRequest, error) {
	req, err := a.client.PresignGetObject(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return &s3PresignedRequest{URL: req.URL}, nil
}

// Upload streams a local file into the bucket and returns its s3:// URI.
func (s *S3Store) Upload(ctx context.Context, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", backend.StorageFailure(err, "open %s", localPath)
	}
	defer file.Close()

	key := s.objectKey(filepath.Base(localPath))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return "", backend.StorageFailure(err, "put s3://%s/%s", s.bucket, key)
	}
	return fmt.Sprintf("%s%s/%s", s3Scheme, s.bucket, key), nil
}

// Download fetches a stored object to localPath.
func (s *S3Store) Download(ctx context.Context, uri, localPath string) error {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return backend.StorageFailure(err, "get %s", uri)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return backend.StorageFailure(err, "create parent dir for %s", localPath)
	}
	file, err := os.Create(localPath)
	if err != nil {
		return backend.StorageFailure(err, "create %s", localPath)
	}
	if _, err := io.Copy(file, out.Body); err != nil {
		_ = file.Close()
		return backend.StorageFailure(err, "write %s", localPath)
	}
	return file.Close()
}

// SignedURL mints a time-limited GET URL for a stored object.
func (s *S3Store) SignedURL(ctx context.Context, uri string, ttl time.Duration) (string, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return "", err
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)},
		func(opts *s3.PresignOptions) { opts.Expires = ttl })
	if err != nil {
		return "", backend.StorageFailure(err, "presign %s", uri)
	}
	return req.URL, nil
}

// objectKey builds a unique key under the configured prefix.
func (s *S3Store) objectKey(base string) string {
	stamp := s.now().UTC().Format("20060102T150405")
	if s.prefix == "" {
		return fmt.Sprintf("%s/%s", stamp, base)
	}
	return fmt.Sprintf("%s/%s/%s", s.prefix, stamp, base)
}

// parseS3URI splits s3://bucket/key into its parts.
func parseS3URI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, s3Scheme) {
		return "", "", backend.StorageFailure(nil, "not an s3 uri: %s", uri)
	}
	rest := strings.TrimPrefix(uri, s3Scheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", backend.StorageFailure(nil, "malformed s3 uri: %s", uri)
	}
	return parts[0], parts[1], nil
}
