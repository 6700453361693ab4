package biz

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	apperrors "github.com/univora/sharebox-backend/internal/pkg/errors"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	"github.com/univora/sharebox-backend/internal/plan"
	storagebiz "github.com/univora/sharebox-backend/internal/storage/biz"
	userbiz "github.com/univora/sharebox-backend/internal/user/biz"
	"go.uber.org/zap"
)

const (
	linkIDLen       = 8
	DefaultCategory = "Others"
)

// LinkUseCase owns link lifecycle and the quota decisions guarding it
type LinkUseCase struct {
	repo   LinkRepo
	users  *userbiz.UserUseCase
	logger *logger.Logger
}

func NewLinkUseCase(repo LinkRepo, users *userbiz.UserUseCase, log *logger.Logger) *LinkUseCase {
	return &LinkUseCase{repo: repo, users: users, logger: log}
}

// GenerateID produces a short URL-safe token, retrying until it does not
// collide with an existing link.
func (uc *LinkUseCase) GenerateID(ctx context.Context) (string, error) {
	for {
		buf := make([]byte, 6)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		id := base64.RawURLEncoding.EncodeToString(buf)[:linkIDLen]
		exists, err := uc.repo.Exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
}

// CreateParams carries a finished upload session into link creation.
// ExpiryDays == 0 means the plan default window.
type CreateParams struct {
	OwnerID    int64
	Files      []storagebiz.FileEntry
	Name       string
	Category   string
	Password   *string
	Protected  bool
	ExpiryDays int
}

// Create runs every quota check against the owner's freshly resolved plan
// and persists the link only when all of them pass. A refusal writes
// nothing: counters are touched strictly after the insert succeeds.
func (uc *LinkUseCase) Create(ctx context.Context, p CreateParams) (*Link, error) {
	if len(p.Files) == 0 {
		return nil, apperrors.New(apperrors.ErrLinkEmpty)
	}

	isAdmin := uc.users.IsAdmin(p.OwnerID)
	tier, err := uc.users.ResolvePlan(ctx, p.OwnerID)
	if err != nil {
		return nil, err
	}

	if !isAdmin {
		ok, err := uc.users.CheckMonthlyLimit(ctx, p.OwnerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.New(apperrors.ErrQuotaMonthlyLinks)
		}
	}

	if !plan.UnlimitedCount(tier.MaxFilesPerLink) && len(p.Files) > tier.MaxFilesPerLink {
		return nil, apperrors.New(apperrors.ErrQuotaFileCount)
	}

	if p.Password != nil && *p.Password != "" && !isAdmin && !plan.IsPremium(tier.ID) {
		return nil, apperrors.New(apperrors.ErrPasswordNotAllowed)
	}

	var total int64
	for _, f := range p.Files {
		if !isAdmin && !plan.UnlimitedBytes(tier.MaxFileSizeBytes) && f.Size > tier.MaxFileSizeBytes {
			return nil, apperrors.New(apperrors.ErrQuotaFileSize, f.Name)
		}
		total += f.Size
	}

	if !isAdmin && !plan.UnlimitedBytes(tier.StorageBytes) {
		owner, err := uc.users.Get(ctx, p.OwnerID)
		if err != nil {
			return nil, err
		}
		if owner.StorageUsed+total > tier.StorageBytes {
			return nil, apperrors.New(apperrors.ErrQuotaStorage)
		}
	}

	id, err := uc.GenerateID(ctx)
	if err != nil {
		return nil, err
	}

	name := p.Name
	if name == "" {
		name = "Untitled"
	}
	category := p.Category
	if category == "" {
		category = DefaultCategory
	}

	link := &Link{
		ID:                id,
		OwnerID:           p.OwnerID,
		Name:              name,
		Category:          category,
		Password:          p.Password,
		Files:             p.Files,
		TotalSize:         total,
		Active:            true,
		Protected:         p.Protected,
		PremiumAtCreation: isAdmin || plan.IsPremium(tier.ID),
		CreatedAt:         time.Now().UTC(),
		ExpiresAt:         computeExpiry(tier, p.ExpiryDays),
	}

	if err := uc.repo.Insert(ctx, link); err != nil {
		return nil, err
	}

	if !isAdmin {
		if _, err := uc.users.IncrementMonthlyLinkCount(ctx, p.OwnerID); err != nil {
			uc.logger.Error("monthly counter bump failed after insert",
				zap.String("link_id", id), zap.Error(err))
		}
	}
	if err := uc.users.AdjustStorage(ctx, p.OwnerID, total); err != nil {
		uc.logger.Error("storage credit failed after insert",
			zap.String("link_id", id), zap.Error(err))
	}
	if err := uc.users.IncrementTotals(ctx, p.OwnerID, 1, 0, 0); err != nil {
		uc.logger.Warn("total-links bump failed",
			zap.String("link_id", id), zap.Error(err))
	}

	return link, nil
}

// computeExpiry maps an explicit or plan-default window onto a timestamp.
// Windows past the never-expires sentinel map to nil.
func computeExpiry(tier plan.Tier, explicitDays int) *time.Time {
	days := explicitDays
	if days <= 0 {
		days = tier.LinkExpiryDays
	}
	if plan.UnlimitedDays(days) {
		return nil
	}
	at := time.Now().UTC().AddDate(0, 0, days)
	return &at
}

// Get returns an active, unexpired link. A stored link whose expiry has
// passed is soft-deleted here as a side effect and reads as not-found;
// requesters cannot tell an expired link from one that never existed.
func (uc *LinkUseCase) Get(ctx context.Context, id string) (*Link, error) {
	link, err := uc.repo.FindActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, apperrors.New(apperrors.ErrLinkNotFound)
	}

	if link.Expired(time.Now().UTC()) {
		if err := uc.SoftDelete(ctx, id); err != nil {
			uc.logger.Warn("expiry soft-delete failed",
				zap.String("link_id", id), zap.Error(err))
		}
		return nil, apperrors.New(apperrors.ErrLinkNotFound)
	}

	return link, nil
}

// AddFiles appends files to an active link, re-checking the plan caps, and
// credits the owner's storage by the same delta.
func (uc *LinkUseCase) AddFiles(ctx context.Context, id string, files []storagebiz.FileEntry) (*Link, error) {
	if len(files) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidParams, "no files to add")
	}

	link, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	isAdmin := uc.users.IsAdmin(link.OwnerID)
	tier, err := uc.users.ResolvePlan(ctx, link.OwnerID)
	if err != nil {
		return nil, err
	}

	if !plan.UnlimitedCount(tier.MaxFilesPerLink) && len(link.Files)+len(files) > tier.MaxFilesPerLink {
		return nil, apperrors.New(apperrors.ErrQuotaFileCount)
	}

	var delta int64
	for _, f := range files {
		if !isAdmin && !plan.UnlimitedBytes(tier.MaxFileSizeBytes) && f.Size > tier.MaxFileSizeBytes {
			return nil, apperrors.New(apperrors.ErrQuotaFileSize, f.Name)
		}
		delta += f.Size
	}

	if !isAdmin && !plan.UnlimitedBytes(tier.StorageBytes) {
		owner, err := uc.users.Get(ctx, link.OwnerID)
		if err != nil {
			return nil, err
		}
		if owner.StorageUsed+delta > tier.StorageBytes {
			return nil, apperrors.New(apperrors.ErrQuotaStorage)
		}
	}

	if err := uc.repo.AppendFiles(ctx, id, files, delta); err != nil {
		return nil, err
	}
	if err := uc.users.AdjustStorage(ctx, link.OwnerID, delta); err != nil {
		uc.logger.Error("storage credit failed after append",
			zap.String("link_id", id), zap.Error(err))
	}

	link.Files = append(link.Files, files...)
	link.TotalSize += delta
	return link, nil
}

// RemoveFile drops the file at index. Removing the last file cascades into
// a full soft-delete so an active link never holds an empty manifest.
func (uc *LinkUseCase) RemoveFile(ctx context.Context, id string, index int) error {
	link, err := uc.Get(ctx, id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(link.Files) {
		return apperrors.New(apperrors.ErrLinkFileIndex)
	}

	if len(link.Files) == 1 {
		return uc.SoftDelete(ctx, id)
	}

	removed := link.Files[index]
	files := make([]storagebiz.FileEntry, 0, len(link.Files)-1)
	files = append(files, link.Files[:index]...)
	files = append(files, link.Files[index+1:]...)

	if err := uc.repo.ReplaceFiles(ctx, id, files, link.TotalSize-removed.Size); err != nil {
		return err
	}
	if err := uc.users.AdjustStorage(ctx, link.OwnerID, -removed.Size); err != nil {
		uc.logger.Error("storage debit failed after remove",
			zap.String("link_id", id), zap.Error(err))
	}
	return nil
}

// SoftDelete marks the link inactive and releases the owner's storage by
// the link's aggregate size. Idempotent: only the call that actually flips
// the flag debits the counter.
func (uc *LinkUseCase) SoftDelete(ctx context.Context, id string) error {
	link, err := uc.repo.Find(ctx, id)
	if err != nil {
		return err
	}
	if link == nil {
		return apperrors.New(apperrors.ErrLinkNotFound)
	}

	flipped, err := uc.repo.Deactivate(ctx, id)
	if err != nil {
		return err
	}
	if !flipped {
		return nil
	}

	if err := uc.users.AdjustStorage(ctx, link.OwnerID, -link.TotalSize); err != nil {
		uc.logger.Error("storage debit failed on delete",
			zap.String("link_id", id), zap.Error(err))
	}
	return nil
}

// UpdateParams patches display fields only. Size-affecting state is out of
// reach here; it moves exclusively through AddFiles and RemoveFile.
type UpdateParams struct {
	Name          *string
	Category      *string
	Password      *string
	ClearPassword bool
	Protected     *bool
}

// Update applies a field patch to an active link
func (uc *LinkUseCase) Update(ctx context.Context, id string, p UpdateParams) error {
	if _, err := uc.Get(ctx, id); err != nil {
		return err
	}

	fields := map[string]interface{}{}
	if p.Name != nil {
		fields["name"] = *p.Name
	}
	if p.Category != nil {
		fields["category"] = *p.Category
	}
	if p.ClearPassword {
		fields["password"] = nil
	} else if p.Password != nil {
		fields["password"] = *p.Password
	}
	if p.Protected != nil {
		fields["protected"] = *p.Protected
	}
	if len(fields) == 0 {
		return nil
	}

	return uc.repo.UpdateFields(ctx, id, fields)
}

// HealLocators rewrites a link's manifest after delivery discovered a dead
// primary copy. Aggregate size is unchanged; failures only cost future
// failover time, so they are logged and swallowed.
func (uc *LinkUseCase) HealLocators(ctx context.Context, id string, files []storagebiz.FileEntry) {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	if err := uc.repo.ReplaceFiles(ctx, id, files, total); err != nil {
		uc.logger.Warn("manifest heal failed",
			zap.String("link_id", id), zap.Error(err))
	}
}

// IncrementViews bumps the link and owner view counters. Best effort: a
// vanished link is a silent no-op.
func (uc *LinkUseCase) IncrementViews(ctx context.Context, id string, ownerID int64) {
	bumped, err := uc.repo.IncrementViews(ctx, id)
	if err != nil {
		uc.logger.Warn("view counter bump failed",
			zap.String("link_id", id), zap.Error(err))
		return
	}
	if !bumped {
		return
	}
	if err := uc.users.IncrementTotals(ctx, ownerID, 0, 0, 1); err != nil {
		uc.logger.Warn("owner view counter bump failed",
			zap.String("link_id", id), zap.Error(err))
	}
}

// IncrementDownloads bumps the link and owner download counters once per
// redemption batch. Best effort like IncrementViews.
func (uc *LinkUseCase) IncrementDownloads(ctx context.Context, id string, ownerID int64) {
	bumped, err := uc.repo.IncrementDownloads(ctx, id)
	if err != nil {
		uc.logger.Warn("download counter bump failed",
			zap.String("link_id", id), zap.Error(err))
		return
	}
	if !bumped {
		return
	}
	if err := uc.users.IncrementTotals(ctx, ownerID, 0, 1, 0); err != nil {
		uc.logger.Warn("owner download counter bump failed",
			zap.String("link_id", id), zap.Error(err))
	}
}

// ListByOwner pages through an owner's active links, newest first. An empty
// category matches everything.
func (uc *LinkUseCase) ListByOwner(ctx context.Context, ownerID int64, category string, offset, limit int) ([]*Link, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return uc.repo.ListByOwner(ctx, ownerID, category, offset, limit)
}

// RequireOwner rejects mutating calls from anyone but the link's owner.
// Administrators pass.
func (uc *LinkUseCase) RequireOwner(ctx context.Context, id string, userID int64) (*Link, error) {
	link, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if link.OwnerID != userID && !uc.users.IsAdmin(userID) {
		return nil, apperrors.New(apperrors.ErrNotOwner)
	}
	return link, nil
}

// StatsByOwner aggregates the owner's active links
func (uc *LinkUseCase) StatsByOwner(ctx context.Context, ownerID int64) (OwnerStats, error) {
	return uc.repo.StatsByOwner(ctx, ownerID)
}

// CategoriesByOwner breaks an owner's active links down by category
func (uc *LinkUseCase) CategoriesByOwner(ctx context.Context, ownerID int64) (map[string]int64, error) {
	return uc.repo.CategoryCountsByOwner(ctx, ownerID)
}

// Stats aggregates every link
func (uc *LinkUseCase) Stats(ctx context.Context) (GlobalStats, error) {
	return uc.repo.Stats(ctx)
}
