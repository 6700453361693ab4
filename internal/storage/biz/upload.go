package biz

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/univora/sharebox-backend/internal/pkg/errors"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// InboundFile is a file handed to the coordinator for storage. Content must
// be seekable so the same bytes can be replayed to every channel.
type InboundFile struct {
	Name     string
	Size     int64
	Kind     string
	MimeType string
	Content  io.ReadSeeker
}

// UploadCoordinator replicates each inbound file across all configured
// channels. The first successful write becomes the primary copy; later
// successes become backups. Partial replication is accepted and logged;
// only zero successes fails the upload.
type UploadCoordinator struct {
	store  ChannelStore
	logger *logger.Logger
}

func NewUploadCoordinator(store ChannelStore, log *logger.Logger) *UploadCoordinator {
	return &UploadCoordinator{store: store, logger: log}
}

// Upload writes f to every channel and returns the resulting manifest entry
func (c *UploadCoordinator) Upload(ctx context.Context, f InboundFile) (FileEntry, error) {
	entry := FileEntry{
		Name:     f.Name,
		Size:     f.Size,
		Kind:     f.Kind,
		MimeType: f.MimeType,
	}

	channels := c.store.Channels()
	if len(channels) == 0 {
		return entry, apperrors.New(apperrors.ErrStorageUnavailable, "no storage channels configured")
	}

	ref := newRef(f.Name)
	var failed []string
	for _, ch := range channels {
		if _, err := f.Content.Seek(0, io.SeekStart); err != nil {
			return entry, err
		}
		if err := c.store.Put(ctx, ch, ref, f.Content, f.Size, f.MimeType); err != nil {
			failed = append(failed, ch)
			c.logger.Warn("channel write failed",
				zap.String("channel", ch),
				zap.String("ref", ref),
				zap.Error(err))
			continue
		}
		loc := Locator{Channel: ch, Ref: ref}
		if entry.Primary.Zero() {
			entry.Primary = loc
		} else {
			entry.Backups = append(entry.Backups, loc)
		}
	}

	if entry.Primary.Zero() {
		return entry, apperrors.New(apperrors.ErrStorageUnavailable,
			"all storage channels rejected the file")
	}

	if len(failed) > 0 {
		c.logger.Warn("file stored with degraded redundancy",
			zap.String("ref", ref),
			zap.Int("copies", 1+len(entry.Backups)),
			zap.Strings("failed_channels", failed))
	}

	return entry, nil
}

// Remove deletes every stored copy of entry, best effort. The first error
// is returned after all copies have been attempted.
func (c *UploadCoordinator) Remove(ctx context.Context, entry FileEntry) error {
	var firstErr error
	for _, loc := range entry.Copies() {
		if err := c.store.Delete(ctx, loc); err != nil {
			c.logger.Warn("copy delete failed",
				zap.String("channel", loc.Channel),
				zap.String("ref", loc.Ref),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// newRef builds a channel-scoped object reference that cannot collide and
// keeps the original name readable for operators.
func newRef(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		base = "file"
	}
	return uuid.NewString() + "/" + base
}
