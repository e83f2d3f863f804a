package artifacts

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
	"github.com/tracelight-ai/codegraph-engine/pkg/config"
)

// s3Store keeps archives in an S3-compatible bucket via the MinIO client.
type s3Store struct {
	client *minio.Client
	bucket string
	region string

	initOnce sync.Once
	initErr  error
}

// NewS3Store creates an S3-backed archive store from the configured backend.
func NewS3Store(cfg *config.ArtifactsConfig) (Store, error) {
	endpoint := strings.TrimSpace(cfg.S3Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if strings.TrimSpace(cfg.S3AccessKey) == "" || strings.TrimSpace(cfg.S3SecretKey) == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.S3Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.S3Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init s3 client: %w", err)
	}

	return &s3Store{
		client: client,
		bucket: bucket,
		region: region,
	}, nil
}

// ensureBucket creates the bucket on first use.
func (s *s3Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *s3Store) Put(ctx context.Context, ref Ref, r io.Reader, size int64) error {
	if err := ref.validate(); err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure bucket: %w", err)
	}

	_, err := s.client.PutObject(ctx, s.bucket, ref.Key(), r, size, minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return fmt.Errorf("failed to store archive: %w", err)
	}
	return nil
}

func (s *s3Store) Get(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, ref.Key(), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// GetObject is lazy; surface NoSuchKey now rather than on first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	return obj, nil
}

func (s *s3Store) Exists(ctx context.Context, ref Ref) (bool, error) {
	if err := ref.validate(); err != nil {
		return false, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return false, fmt.Errorf("failed to ensure bucket: %w", err)
	}

	_, err := s.client.StatObject(ctx, s.bucket, ref.Key(), minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat archive: %w", err)
	}
	return true, nil
}

func (s *s3Store) List(ctx context.Context, tenant, sourceID string) ([]string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}

	prefix := tenant + "/" + sourceID + "/"
	keys := make([]string, 0, 8)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if obj.Key == "" {
			continue
		}
		keys = append(keys, obj.Key)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *s3Store) Delete(ctx context.Context, tenant, sourceID string) error {
	keys, err := s.List(ctx, tenant, sourceID)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to delete archive %s: %w", key, err)
		}
	}
	return nil
}

var _ Store = (*s3Store)(nil)
