// Package storage keeps encrypted attachment files in an S3-compatible
// bucket
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/infrastructure/config"
	"github.com/planty/core/internal/ports"
)

// AttachmentStore implements ports.AttachmentStorage with minio-go
type AttachmentStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
	expiry    time.Duration
	maxBytes  int64
	clock     entities.Clock
}

// NewAttachmentStore creates a client for the configured bucket
func NewAttachmentStore(cfg config.StorageConfig, clock entities.Clock) (*AttachmentStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &AttachmentStore{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		expiry:    cfg.PresignExpiry,
		maxBytes:  cfg.MaxUploadBytes,
		clock:     clock,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet
func (s *AttachmentStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// HealthCheck reports whether the bucket is reachable
func (s *AttachmentStore) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

// PresignUpload returns a form POST that uploads one object under key
func (s *AttachmentStore) PresignUpload(ctx context.Context, key string) (*ports.UploadTicket, error) {
	expiresAt := s.clock.Now().Add(s.expiry)

	policy := minio.NewPostPolicy()
	if err := policy.SetBucket(s.bucket); err != nil {
		return nil, err
	}
	if err := policy.SetKey(key); err != nil {
		return nil, err
	}
	if err := policy.SetExpires(expiresAt); err != nil {
		return nil, err
	}
	if s.maxBytes > 0 {
		if err := policy.SetContentLengthRange(1, s.maxBytes); err != nil {
			return nil, err
		}
	}

	u, fields, err := s.client.PresignedPostPolicy(ctx, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to presign post policy: %w", err)
	}

	return &ports.UploadTicket{
		URL:       u.String(),
		Fields:    fields,
		ExpiresAt: expiresAt,
	}, nil
}

// Delete removes the object under key
func (s *AttachmentStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", key, err)
	}
	return nil
}

// URL returns the public address of the object under key
func (s *AttachmentStore) URL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, key)
}
