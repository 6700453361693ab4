package data

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	retrievalbiz "github.com/univora/sharebox-backend/internal/retrieval/biz"
	"github.com/univora/sharebox-backend/internal/storage/biz"
)

// MinioDeliverer materializes requester-facing copies by server-side
// copying a stored object into a dedicated delivery bucket. The source
// copies stay untouched; scheduled cleanup removes only the delivered one.
type MinioDeliverer struct {
	client *minio.Client
	bucket string
}

func NewMinioDeliverer(client *minio.Client, deliveryBucket string) *MinioDeliverer {
	return &MinioDeliverer{client: client, bucket: deliveryBucket}
}

// EnsureBucket creates the delivery bucket if missing
func (d *MinioDeliverer) EnsureBucket(ctx context.Context) error {
	exists, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return d.client.MakeBucket(ctx, d.bucket, minio.MakeBucketOptions{})
}

func (d *MinioDeliverer) Deliver(ctx context.Context, requesterID int64, loc biz.Locator, entry biz.FileEntry) (retrievalbiz.DeliveredCopy, error) {
	ref := fmt.Sprintf("%d/%s", requesterID, loc.Ref)
	_, err := d.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: d.bucket, Object: ref},
		minio.CopySrcOptions{Bucket: loc.Channel, Object: loc.Ref},
	)
	if err != nil {
		return retrievalbiz.DeliveredCopy{}, err
	}
	return retrievalbiz.DeliveredCopy{
		Channel:  d.bucket,
		Ref:      ref,
		FileName: entry.Name,
	}, nil
}

func (d *MinioDeliverer) Remove(ctx context.Context, cp retrievalbiz.DeliveredCopy) error {
	return d.client.RemoveObject(ctx, cp.Channel, cp.Ref, minio.RemoveObjectOptions{})
}
