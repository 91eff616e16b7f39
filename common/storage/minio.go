package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/initcodes20/releasegate/common/config"
	"github.com/initcodes20/releasegate/common/logger"
)

// BlobStore is the object-store collaborator used for release artifacts.
// Put streams an artifact to the store under the given key; ResolveURL
// returns a publicly fetchable download URL for a stored object.
// ResolveURL is fallible independently of Put (missing object,
// permissions), so callers can distinguish the two failure modes.
type BlobStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	ResolveURL(ctx context.Context, key string) (string, error)
}

// MinioStore implements BlobStore against any S3-compatible endpoint
type MinioStore struct {
	client     *minio.Client
	bucket     string
	publicBase string
	log        *logger.Logger
}

// New creates a MinioStore and ensures the configured bucket exists
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Storage.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Storage.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Storage.Bucket, minio.MakeBucketOptions{Region: cfg.Storage.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Storage.Bucket, err)
		}
		log.Info("bucket created", "bucket", cfg.Storage.Bucket)
	}

	log.Info("object store connected", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.Bucket)

	return &MinioStore{
		client:     client,
		bucket:     cfg.Storage.Bucket,
		publicBase: strings.TrimRight(cfg.Storage.PublicBaseURL, "/"),
		log:        log,
	}, nil
}

// Put uploads an object. An existing object under the same key is
// overwritten, so retried uploads of the same release replace rather
// than duplicate.
func (s *MinioStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	info, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}

	s.log.Debug("object stored", "key", key, "size", info.Size, "etag", info.ETag)
	return nil
}

// ResolveURL verifies the object is readable and returns its public
// download URL
func (s *MinioStore) ResolveURL(ctx context.Context, key string) (string, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return "", fmt.Errorf("stat object %s: %w", key, err)
	}

	if s.publicBase != "" {
		return fmt.Sprintf("%s/%s/%s", s.publicBase, s.bucket, key), nil
	}
	endpoint := s.client.EndpointURL()
	return fmt.Sprintf("%s://%s/%s/%s", endpoint.Scheme, endpoint.Host, s.bucket, key), nil
}
