package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"go-kart-insurance/internal/config"
)

type minioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage connects to an S3 compatible endpoint. The bucket is
// created on first use if it does not exist.
func NewMinioStorage(ctx context.Context, cfg config.ArchiveConfig) (ObjectStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion})
		if err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinioBucket, err)
		}
	}

	return &minioStorage{client: client, bucket: cfg.MinioBucket}, nil
}

func (s *minioStorage) Name() string { return config.ArchiveMinio }

func (s *minioStorage) Put(ctx context.Context, obj Object) error {
	_, err := s.client.PutObject(ctx, s.bucket, obj.Key, bytes.NewReader(obj.Data), int64(len(obj.Data)),
		minio.PutObjectOptions{
			ContentType:  obj.ContentType,
			UserMetadata: obj.Metadata,
		})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}
