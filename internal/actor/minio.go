package actor

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"kiln/internal/config"
)

const minioKeyPrefix = "actors/"

// MinIOStore uploads clips to an S3-compatible bucket.
type MinIOStore struct {
	client     *minio.Client
	bucket     string
	publicBase string
	presign    time.Duration

	bucketOnce sync.Once
	bucketErr  error
}

// NewMinIOStore connects to the configured endpoint. No request is made
// until the first Put.
func NewMinIOStore(cfg config.MinIO) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize minio client: %w", err)
	}
	return &MinIOStore{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: cfg.PublicBaseURL,
		presign:    time.Duration(cfg.PresignHours) * time.Hour,
	}, nil
}

// Put uploads path under actors/ and returns its public or presigned URL.
func (s *MinIOStore) Put(ctx context.Context, path string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open clip: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat clip: %w", err)
	}
	contentType := "video/mp4"
	if mt, err := mimetype.DetectFile(path); err == nil && mt.String() != "application/octet-stream" {
		contentType = mt.String()
	}

	key := minioKeyPrefix + uuid.NewString() + filepath.Ext(path)
	if _, err := s.client.PutObject(ctx, s.bucket, key, file, info.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}

	if s.publicBase != "" {
		return s.publicBase + "/" + s.bucket + "/" + key, nil
	}
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presign, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return presigned.String(), nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	s.bucketOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.bucketErr = fmt.Errorf("failed to check bucket existence: %w", err)
			return
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
				s.bucketErr = fmt.Errorf("failed to create bucket: %w", err)
			}
		}
	})
	return s.bucketErr
}
