package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// Config describes an S3-compatible bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL prefixes object URLs; defaults to the endpoint.
	PublicURL string
}

// Service stores submission files in a MinIO bucket.
type Service struct {
	client    *minio.Client
	bucket    string
	publicURL string
	logger    zerolog.Logger
}

// New builds the client and makes sure the bucket exists.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket must be provided")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check minio bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create minio bucket: %w", err)
		}
	}

	return &Service{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: publicBase(cfg),
		logger:    logger.With().Str("component", "minio").Logger(),
	}, nil
}

func (s *Service) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	key = strings.TrimLeft(key, "/")
	info, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	s.logger.Info().Str("key", info.Key).Int64("size", info.Size).Msg("file uploaded to minio")

	return objectURL(s.publicURL, s.bucket, key), nil
}

// Delete removes the object stored under key. Missing objects are not an error.
func (s *Service) Delete(ctx context.Context, key string) error {
	key = strings.TrimLeft(key, "/")
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func publicBase(cfg Config) string {
	if cfg.PublicURL != "" {
		return strings.TrimRight(cfg.PublicURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimRight(cfg.Endpoint, "/")
}

func objectURL(base, bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return base + "/" + bucket + "/" + strings.Join(segments, "/")
}
