package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"autoria-scraper/config"
)

// S3Archiver uploads dump files to an S3-compatible bucket.
type S3Archiver struct {
	client *minio.Client
	bucket string
}

func NewS3Archiver(cfg config.ArchiveConfig) (*S3Archiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return &S3Archiver{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (a *S3Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Archive uploads the file under dumps/<file name> and returns the key.
func (a *S3Archiver) Archive(ctx context.Context, localPath string) (string, error) {
	key := "dumps/" + filepath.Base(localPath)
	contentType := "application/sql"
	if filepath.Ext(localPath) == ".csv" {
		contentType = "text/csv"
	}

	info, err := a.client.FPutObject(ctx, a.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload dump: %w", err)
	}
	return info.Key, nil
}
