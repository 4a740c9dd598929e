package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	LinkTTL   time.Duration
}

// MinioArtifacts keeps exports in an S3-compatible bucket and returns
// presigned download links.
type MinioArtifacts struct {
	client  *minio.Client
	bucket  string
	linkTTL time.Duration
}

// NewMinioArtifacts connects and creates the bucket when missing.
func NewMinioArtifacts(ctx context.Context, cfg MinioConfig) (*MinioArtifacts, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	ttl := cfg.LinkTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MinioArtifacts{client: client, bucket: cfg.Bucket, linkTTL: ttl}, nil
}

func (m *MinioArtifacts) Put(ctx context.Context, key string, result *Result) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)),
		minio.PutObjectOptions{
			ContentType:        result.MimeType,
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", result.Filename),
		})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	link, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.linkTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return link.String(), nil
}
