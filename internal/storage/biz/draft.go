package biz

import (
	"context"
	"time"

	"github.com/univora/sharebox-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// DefaultDraftTTL bounds how long an abandoned upload session survives.
// Every mutation refreshes it.
const DefaultDraftTTL = time.Hour

// DraftFlow accumulates an owner's upload session file by file. Each file
// is replicated the moment it arrives, so finalizing a draft into a link
// needs no further storage work.
type DraftFlow struct {
	drafts  DraftStore
	uploads *UploadCoordinator
	ttl     time.Duration
	logger  *logger.Logger
}

func NewDraftFlow(drafts DraftStore, uploads *UploadCoordinator, log *logger.Logger) *DraftFlow {
	return &DraftFlow{
		drafts:  drafts,
		uploads: uploads,
		ttl:     DefaultDraftTTL,
		logger:  log,
	}
}

// Current returns the owner's open draft, nil when none exists
func (f *DraftFlow) Current(ctx context.Context, ownerID int64) (*Draft, error) {
	return f.drafts.Get(ctx, ownerID)
}

// Append stores one file and adds it to the owner's draft, starting a new
// draft when none is open.
func (f *DraftFlow) Append(ctx context.Context, ownerID int64, file InboundFile) (*Draft, error) {
	entry, err := f.uploads.Upload(ctx, file)
	if err != nil {
		return nil, err
	}

	d, err := f.drafts.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		d = &Draft{OwnerID: ownerID, StartedAt: time.Now().UTC()}
	}
	d.Files = append(d.Files, entry)

	if err := f.drafts.Save(ctx, d, f.ttl); err != nil {
		return nil, err
	}
	return d, nil
}

// SetCategory tags the owner's draft, starting one when none is open
func (f *DraftFlow) SetCategory(ctx context.Context, ownerID int64, category string) (*Draft, error) {
	d, err := f.drafts.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		d = &Draft{OwnerID: ownerID, StartedAt: time.Now().UTC()}
	}
	d.Category = category

	if err := f.drafts.Save(ctx, d, f.ttl); err != nil {
		return nil, err
	}
	return d, nil
}

// Discard drops the owner's draft and removes its stored copies, best
// effort. A missing draft is not an error.
func (f *DraftFlow) Discard(ctx context.Context, ownerID int64) error {
	d, err := f.drafts.Get(ctx, ownerID)
	if err != nil {
		return err
	}
	if d == nil {
		return nil
	}

	for _, entry := range d.Files {
		if err := f.uploads.Remove(ctx, entry); err != nil {
			f.logger.Warn("discarded draft copy removal failed",
				zap.Int64("owner_id", ownerID),
				zap.String("file", entry.Name),
				zap.Error(err))
		}
	}
	return f.drafts.Delete(ctx, ownerID)
}

// Clear drops the draft record without touching stored copies. Used after
// the draft's files have been handed over to a link.
func (f *DraftFlow) Clear(ctx context.Context, ownerID int64) error {
	return f.drafts.Delete(ctx, ownerID)
}
