package biz

import (
	"context"
	"io"
	"time"
)

// ChannelStore is the physical storage behind locators. Each channel is an
// independent destination; a copy written to one channel survives the loss
// of the others.
type ChannelStore interface {
	// Channels lists the configured destinations in replication order.
	Channels() []string

	Put(ctx context.Context, channel, ref string, content io.Reader, size int64, contentType string) error
	Fetch(ctx context.Context, loc Locator) (io.ReadCloser, error)
	Delete(ctx context.Context, loc Locator) error
}

// DraftStore keeps in-progress upload sessions keyed by owner
type DraftStore interface {
	Get(ctx context.Context, ownerID int64) (*Draft, error)
	Save(ctx context.Context, d *Draft, ttl time.Duration) error
	Delete(ctx context.Context, ownerID int64) error
}
