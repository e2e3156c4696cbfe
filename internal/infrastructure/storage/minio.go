// Package storage keeps signed contract documents in an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/dealdesk/dealdesk/internal/config"
)

// MinioStore writes documents to MinIO and returns their public URL.
type MinioStore struct {
	client *minio.Client
	bucket string
	cfg    config.MinioConfig
	logger zerolog.Logger
}

func NewMinioStore(cfg config.MinioConfig, logger zerolog.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStore{
		client: client,
		bucket: cfg.Bucket,
		cfg:    cfg,
		logger: logger.With().Str("component", "storage").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	s.logger.Info().Msg("created document bucket")
	return nil
}

// Store uploads data under folder/ownerID/filename.
func (s *MinioStore) Store(ctx context.Context, data []byte, filename, contentType, folder, ownerID string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("refusing to store empty document %q", filename)
	}
	object := ObjectName(folder, ownerID, filename)
	_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"owner-id": ownerID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", object, err)
	}
	s.logger.Debug().Str("object", object).Int("size", len(data)).Msg("stored document")
	return s.PublicURL(object), nil
}

// PublicURL returns the URL of an object (if bucket policy allows reads).
func (s *MinioStore) PublicURL(object string) string {
	if s.cfg.PublicURL != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.PublicURL, "/"), s.bucket, object)
	}
	protocol := "http"
	if s.cfg.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, s.cfg.Endpoint, s.bucket, object)
}

// ObjectName joins the key parts, dropping empty ones and any directory
// component of filename.
func ObjectName(folder, ownerID, filename string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{folder, ownerID} {
		if p = strings.Trim(p, "/"); p != "" {
			parts = append(parts, p)
		}
	}
	return path.Join(append(parts, path.Base("/"+filename))...)
}
