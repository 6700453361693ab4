package data

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	"github.com/univora/sharebox-backend/internal/storage/biz"
	"go.uber.org/zap"
)

// MinioChannelStore maps storage channels onto MinIO buckets, one bucket
// per channel in replication order.
type MinioChannelStore struct {
	client  *minio.Client
	buckets []string
	logger  *logger.Logger
}

func NewMinioChannelStore(client *minio.Client, buckets []string, log *logger.Logger) *MinioChannelStore {
	return &MinioChannelStore{client: client, buckets: buckets, logger: log}
}

// EnsureBuckets creates any missing channel buckets
func (s *MinioChannelStore) EnsureBuckets(ctx context.Context) error {
	for _, b := range s.buckets {
		exists, err := s.client.BucketExists(ctx, b)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, b, minio.MakeBucketOptions{}); err != nil {
			return err
		}
		s.logger.Info("created storage bucket", zap.String("bucket", b))
	}
	return nil
}

func (s *MinioChannelStore) Channels() []string {
	out := make([]string, len(s.buckets))
	copy(out, s.buckets)
	return out
}

func (s *MinioChannelStore) Put(ctx context.Context, channel, ref string, content io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, channel, ref, content, size, opts)
	return err
}

func (s *MinioChannelStore) Fetch(ctx context.Context, loc biz.Locator) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, loc.Channel, loc.Ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; stat now so a missing copy fails here, not on the
	// first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

func (s *MinioChannelStore) Delete(ctx context.Context, loc biz.Locator) error {
	return s.client.RemoveObject(ctx, loc.Channel, loc.Ref, minio.RemoveObjectOptions{})
}
