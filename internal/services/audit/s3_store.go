package audit

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

const downloadURLTTL = 15 * time.Minute

// S3ArtifactStore uploads export files to object storage and presigns a
// download URL for each.
type S3ArtifactStore struct {
	client *minio.Client
	bucket string

	ensureOnce sync.Once
	ensureErr  error
}

func NewS3ArtifactStore(client *minio.Client, bucket string) *S3ArtifactStore {
	return &S3ArtifactStore{
		client: client,
		bucket: strings.TrimSpace(bucket),
	}
}

func (s *S3ArtifactStore) EnsureBucket(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("s3 client is nil")
	}
	if s.bucket == "" {
		return fmt.Errorf("s3 bucket is empty")
	}

	s.ensureOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.ensureErr = err
			return
		}
		if exists {
			return
		}
		s.ensureErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	})

	if s.ensureErr != nil {
		return fmt.Errorf("ensure s3 bucket %q: %w", s.bucket, s.ensureErr)
	}

	return nil
}

func (s *S3ArtifactStore) Put(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("s3 client is nil")
	}
	if filename == "" || len(data) == 0 {
		return "", ErrValidation
	}

	if err := s.EnsureBucket(ctx); err != nil {
		return "", err
	}

	key := "exports/" + uuid.NewString() + "/" + filename
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put export object to s3: %w", err)
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, downloadURLTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign export object: %w", err)
	}

	return presigned.String(), nil
}
