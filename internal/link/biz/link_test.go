package biz

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/univora/sharebox-backend/internal/pkg/errors"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	"github.com/univora/sharebox-backend/internal/plan"
	storagebiz "github.com/univora/sharebox-backend/internal/storage/biz"
	userbiz "github.com/univora/sharebox-backend/internal/user/biz"
)

// fakeLinkRepo is an in-memory biz.LinkRepo
type fakeLinkRepo struct {
	links       map[string]*Link
	existsCalls int
	// collideFirst makes the first Exists call report a collision.
	collideFirst bool
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{links: make(map[string]*Link)}
}

func (r *fakeLinkRepo) Insert(_ context.Context, link *Link) error {
	stored := *link
	files := make([]storagebiz.FileEntry, len(link.Files))
	copy(files, link.Files)
	stored.Files = files
	r.links[link.ID] = &stored
	return nil
}

func (r *fakeLinkRepo) Find(_ context.Context, id string) (*Link, error) {
	link, ok := r.links[id]
	if !ok {
		return nil, nil
	}
	cp := *link
	return &cp, nil
}

func (r *fakeLinkRepo) FindActive(ctx context.Context, id string) (*Link, error) {
	link, ok := r.links[id]
	if !ok || !link.Active {
		return nil, nil
	}
	cp := *link
	return &cp, nil
}

func (r *fakeLinkRepo) Exists(_ context.Context, id string) (bool, error) {
	r.existsCalls++
	if r.collideFirst && r.existsCalls == 1 {
		return true, nil
	}
	_, ok := r.links[id]
	return ok, nil
}

func (r *fakeLinkRepo) AppendFiles(_ context.Context, id string, files []storagebiz.FileEntry, sizeDelta int64) error {
	link := r.links[id]
	link.Files = append(link.Files, files...)
	link.TotalSize += sizeDelta
	return nil
}

func (r *fakeLinkRepo) ReplaceFiles(_ context.Context, id string, files []storagebiz.FileEntry, totalSize int64) error {
	link := r.links[id]
	link.Files = files
	link.TotalSize = totalSize
	return nil
}

func (r *fakeLinkRepo) Deactivate(_ context.Context, id string) (bool, error) {
	link, ok := r.links[id]
	if !ok || !link.Active {
		return false, nil
	}
	link.Active = false
	return true, nil
}

func (r *fakeLinkRepo) UpdateFields(_ context.Context, id string, fields map[string]interface{}) error {
	link := r.links[id]
	if v, ok := fields["name"]; ok {
		link.Name = v.(string)
	}
	if v, ok := fields["category"]; ok {
		link.Category = v.(string)
	}
	if v, ok := fields["password"]; ok {
		if v == nil {
			link.Password = nil
		} else {
			pw := v.(string)
			link.Password = &pw
		}
	}
	if v, ok := fields["protected"]; ok {
		link.Protected = v.(bool)
	}
	return nil
}

func (r *fakeLinkRepo) IncrementViews(_ context.Context, id string) (bool, error) {
	link, ok := r.links[id]
	if !ok || !link.Active {
		return false, nil
	}
	link.Views++
	return true, nil
}

func (r *fakeLinkRepo) IncrementDownloads(_ context.Context, id string) (bool, error) {
	link, ok := r.links[id]
	if !ok || !link.Active {
		return false, nil
	}
	link.Downloads++
	return true, nil
}

func (r *fakeLinkRepo) ListByOwner(_ context.Context, ownerID int64, category string, offset, limit int) ([]*Link, error) {
	var out []*Link
	for _, link := range r.links {
		if link.OwnerID != ownerID || !link.Active {
			continue
		}
		if category != "" && link.Category != category {
			continue
		}
		cp := *link
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset > len(out) {
		offset = len(out)
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (r *fakeLinkRepo) CountActiveByOwner(_ context.Context, ownerID int64) (int64, error) {
	var count int64
	for _, link := range r.links {
		if link.OwnerID == ownerID && link.Active {
			count++
		}
	}
	return count, nil
}

func (r *fakeLinkRepo) StatsByOwner(_ context.Context, ownerID int64) (OwnerStats, error) {
	var stats OwnerStats
	for _, link := range r.links {
		if link.OwnerID != ownerID || !link.Active {
			continue
		}
		stats.Links++
		stats.Views += link.Views
		stats.Downloads += link.Downloads
		stats.Bytes += link.TotalSize
	}
	return stats, nil
}

func (r *fakeLinkRepo) CategoryCountsByOwner(_ context.Context, ownerID int64) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, link := range r.links {
		if link.OwnerID == ownerID && link.Active {
			out[link.Category]++
		}
	}
	return out, nil
}

func (r *fakeLinkRepo) Stats(_ context.Context) (GlobalStats, error) {
	var stats GlobalStats
	for _, link := range r.links {
		stats.TotalLinks++
		stats.Views += link.Views
		stats.Downloads += link.Downloads
		if link.Active {
			stats.ActiveLinks++
			stats.ActiveBytes += link.TotalSize
		}
	}
	return stats, nil
}

// fakeAccountRepo is a minimal in-memory userbiz.UserRepo
type fakeAccountRepo struct {
	users map[int64]*userbiz.User
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{users: make(map[int64]*userbiz.User)}
}

func (r *fakeAccountRepo) add(id int64, planID string) *userbiz.User {
	u := &userbiz.User{ID: id, PlanID: planID, ReferralCode: "CODE"}
	r.users[id] = u
	return u
}

func (r *fakeAccountRepo) Upsert(_ context.Context, id int64, username, firstName, referralCode string) (*userbiz.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	u := &userbiz.User{ID: id, PlanID: plan.Free, ReferralCode: referralCode}
	r.users[id] = u
	return u, nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id int64) (*userbiz.User, error) {
	return r.users[id], nil
}

func (r *fakeAccountRepo) GetByReferralCode(_ context.Context, code string) (*userbiz.User, error) {
	for _, u := range r.users {
		if u.ReferralCode == code {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) ReferralCodeExists(_ context.Context, code string) (bool, error) {
	return false, nil
}

func (r *fakeAccountRepo) SetPlan(_ context.Context, id int64, planID string, expiry *time.Time) error {
	u := r.users[id]
	u.PlanID = planID
	u.PlanExpiry = expiry
	return nil
}

func (r *fakeAccountRepo) DowngradeToFree(_ context.Context, id int64) error {
	u := r.users[id]
	u.PlanID = plan.Free
	u.PlanExpiry = nil
	return nil
}

func (r *fakeAccountRepo) AdjustStorage(_ context.Context, id int64, delta int64) (int64, error) {
	u := r.users[id]
	u.StorageUsed += delta
	return u.StorageUsed, nil
}

func (r *fakeAccountRepo) ResetMonthlyCount(_ context.Context, id int64, at time.Time) error {
	u := r.users[id]
	u.MonthlyLinkCount = 1
	u.LastLinkReset = &at
	return nil
}

func (r *fakeAccountRepo) IncrementMonthlyCount(_ context.Context, id int64) (int, error) {
	u := r.users[id]
	u.MonthlyLinkCount++
	return u.MonthlyLinkCount, nil
}

func (r *fakeAccountRepo) IncrementTotals(_ context.Context, id int64, links, downloads, views int64) error {
	u := r.users[id]
	u.TotalLinks += links
	u.TotalDownloads += downloads
	u.TotalViews += views
	return nil
}

func (r *fakeAccountRepo) SetBlocked(_ context.Context, id int64, blocked bool) error {
	r.users[id].Blocked = blocked
	return nil
}

func (r *fakeAccountRepo) SetReferredBy(_ context.Context, id int64, referrerID int64) error {
	u := r.users[id]
	if u.ReferredBy == nil {
		u.ReferredBy = &referrerID
	}
	return nil
}

func (r *fakeAccountRepo) AppendMilestone(_ context.Context, id int64, threshold int) error {
	u := r.users[id]
	u.Milestones = append(u.Milestones, threshold)
	return nil
}

func (r *fakeAccountRepo) UpdateSettings(_ context.Context, id int64, settings map[string]string) error {
	return nil
}

func (r *fakeAccountRepo) CountUsers(_ context.Context) (int64, int64, error) {
	return int64(len(r.users)), 0, nil
}

func newTestLinkUseCase(t *testing.T) (*LinkUseCase, *fakeLinkRepo, *fakeAccountRepo) {
	t.Helper()
	linkRepo := newFakeLinkRepo()
	accountRepo := newFakeAccountRepo()
	users := userbiz.NewUserUseCase(accountRepo, nil, logger.L())
	return NewLinkUseCase(linkRepo, users, logger.L()), linkRepo, accountRepo
}

func entries(sizes ...int64) []storagebiz.FileEntry {
	out := make([]storagebiz.FileEntry, len(sizes))
	for i, size := range sizes {
		out[i] = storagebiz.FileEntry{
			Name:    "file",
			Size:    size,
			Kind:    storagebiz.KindDocument,
			Primary: storagebiz.Locator{Channel: "a", Ref: "r"},
		}
	}
	return out
}

// activeAggregate sums the aggregate sizes of an owner's active links
func activeAggregate(repo *fakeLinkRepo, ownerID int64) int64 {
	var sum int64
	for _, link := range repo.links {
		if link.OwnerID == ownerID && link.Active {
			sum += link.TotalSize
		}
	}
	return sum
}

func TestCreateRejectsFileCountOverCap(t *testing.T) {
	uc, linkRepo, accountRepo := newTestLinkUseCase(t)
	accountRepo.add(1, plan.Free)

	// Free tier caps at 20 files per link.
	_, err := uc.Create(context.Background(), CreateParams{
		OwnerID: 1,
		Files:   entries(make([]int64, 21)...),
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrQuotaFileCount))
	assert.Empty(t, linkRepo.links)
	assert.Zero(t, accountRepo.users[1].StorageUsed)
	assert.Zero(t, accountRepo.users[1].MonthlyLinkCount)
}

func TestCreateRejectsPasswordOnFreePlan(t *testing.T) {
	uc, _, accountRepo := newTestLinkUseCase(t)
	accountRepo.add(1, plan.Free)

	pw := "secret"
	_, err := uc.Create(context.Background(), CreateParams{
		OwnerID:  1,
		Files:    entries(10),
		Password: &pw,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrPasswordNotAllowed))
}

func TestCreateRejectsOverMonthlyLimit(t *testing.T) {
	uc, _, accountRepo := newTestLinkUseCase(t)
	u := accountRepo.add(1, plan.Free)
	now := time.Now().UTC()
	u.MonthlyLinkCount = plan.Get(plan.Free).MaxLinksPerMonth
	u.LastLinkReset = &now

	_, err := uc.Create(context.Background(), CreateParams{OwnerID: 1, Files: entries(10)})
	assert.True(t, apperrors.Is(err, apperrors.ErrQuotaMonthlyLinks))
}

func TestCreateRejectsOverStorageQuota(t *testing.T) {
	uc, _, accountRepo := newTestLinkUseCase(t)
	u := accountRepo.add(1, plan.Free)
	u.StorageUsed = plan.Get(plan.Free).StorageBytes - 10

	_, err := uc.Create(context.Background(), CreateParams{OwnerID: 1, Files: entries(11)})
	assert.True(t, apperrors.Is(err, apperrors.ErrQuotaStorage))
}

func TestCreateRejectsOversizedFile(t *testing.T) {
	uc, _, accountRepo := newTestLinkUseCase(t)
	accountRepo.add(1, plan.Free)

	_, err := uc.Create(context.Background(), CreateParams{
		OwnerID: 1,
		Files:   entries(plan.Get(plan.Free).MaxFileSizeBytes + 1),
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrQuotaFileSize))
}

func TestCreateSideEffects(t *testing.T) {
	uc, linkRepo, accountRepo := newTestLinkUseCase(t)
	accountRepo.add(1, plan.Free)

	link, err := uc.Create(context.Background(), CreateParams{
		OwnerID: 1,
		Files:   entries(100, 200),
	})
	require.NoError(t, err)
	assert.Len(t, link.ID, 8)
	assert.EqualValues(t, 300, link.TotalSize)
	assert.EqualValues(t, 300, accountRepo.users[1].StorageUsed)
	assert.Equal(t, 1, accountRepo.users[1].MonthlyLinkCount)
	assert.EqualValues(t, 1, accountRepo.users[1].TotalLinks)
	require.NotNil(t, link.ExpiresAt)

	// Free tier links expire after 60 days.
	wantExpiry := time.Now().UTC().AddDate(0, 0, 60)
	assert.WithinDuration(t, wantExpiry, *link.ExpiresAt, time.Minute)

	stored := linkRepo.links[link.ID]
	require.NotNil(t, stored)
	assert.True(t, stored.Active)
}

func TestCreateLifetimeNeverExpires(t *testing.T) {
	uc, _, accountRepo := newTestLinkUseCase(t)
	accountRepo.add(1, plan.Lifetime)

	link, err := uc.Create(context.Background(), CreateParams{OwnerID: 1, Files: entries(10)})
	require.NoError(t, err)
	assert.Nil(t, link.ExpiresAt)
}

func TestGenerateIDRetriesOnCollision(t *testing.T) {
	uc, linkRepo, _ := newTestLinkUseCase(t)
	linkRepo.collideFirst = true

	id, err := uc.GenerateID(context.Background())
	require.NoError(t, err)
	assert.Len(t, id, 8)
	assert.Equal(t, 2, linkRepo.existsCalls)
}

func TestStorageInvariantAcrossLifecycle(t *testing.T) {
	uc, linkRepo, accountRepo := newTestLinkUseCase(t)
	accountRepo.add(1, plan.Free)
	ctx := context.Background()

	first, err := uc.Create(ctx, CreateParams{OwnerID: 1, Files: entries(100, 200)})
	require.NoError(t, err)
	second, err := uc.Create(ctx, CreateParams{OwnerID: 1, Files: entries(50)})
	require.NoError(t, err)

	assert.Equal(t, activeAggregate(linkRepo, 1), accountRepo.users[1].StorageUsed)

	_, err = uc.AddFiles(ctx, first.ID, entries(25))
	require.NoError(t, err)
	assert.Equal(t, activeAggregate(linkRepo, 1), accountRepo.users[1].StorageUsed)

	require.NoError(t, uc.RemoveFile(ctx, first.ID, 1))
	assert.Equal(t, activeAggregate(linkRepo, 1), accountRepo.users[1].StorageUsed)

	require.NoError(t, uc.SoftDelete(ctx, second.ID))
	assert.Equal(t, activeAggregate(linkRepo, 1), accountRepo.users[1].StorageUsed)

	require.NoError(t, uc.SoftDelete(ctx, first.ID))
	assert.Zero(t, accountRepo.users[1].StorageUsed)
}

func TestSoftDeleteIdempotent(t *testing.T) {
	uc, _, accountRepo := newTestLinkUseCase(t)
	accountRepo.add(1, plan.Free)
	ctx := context.Background()

	link, err := uc.Create(ctx, CreateParams{OwnerID: 1, Files: entries(100)})
	require.NoError(t, err)
	require.EqualValues(t, 100, accountRepo.users[1].StorageUsed)

	require.NoError(t, uc.SoftDelete(ctx, link.ID))
	assert.Zero(t, accountRepo.users[1].StorageUsed)

	// Second delete must not double-debit.
	require.NoError(t, uc.SoftDelete(ctx, link.ID))
	assert.Zero(t, accountRepo.users[1].StorageUsed)
}

func TestRemoveLastFileCascades(t *testing.T) {
	uc, linkRepo, accountRepo := newTestLinkUseCase(t)
	accountRepo.add(1, plan.Free)
	ctx := context.Background()

	link, err := uc.Create(ctx, CreateParams{OwnerID: 1, Files: entries(100)})
	require.NoError(t, err)

	require.NoError(t, uc.RemoveFile(ctx, link.ID, 0))
	assert.False(t, linkRepo.links[link.ID].Active)
	assert.Zero(t, accountRepo.users[1].StorageUsed)
}

func TestRemoveFileOutOfRange(t *testing.T) {
	uc, _, accountRepo := newTestLinkUseCase(t)
	accountRepo.add(1, plan.Free)
	ctx := context.Background()

	link, err := uc.Create(ctx, CreateParams{OwnerID: 1, Files: entries(100)})
	require.NoError(t, err)

	err = uc.RemoveFile(ctx, link.ID, 5)
	assert.True(t, apperrors.Is(err, apperrors.ErrLinkFileIndex))
}

func TestExpiryOnReadDebitsOnce(t *testing.T) {
	uc, linkRepo, accountRepo := newTestLinkUseCase(t)
	accountRepo.add(1, plan.Free)
	ctx := context.Background()

	link, err := uc.Create(ctx, CreateParams{OwnerID: 1, Files: entries(100)})
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	linkRepo.links[link.ID].ExpiresAt = &past

	_, err = uc.Get(ctx, link.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrLinkNotFound))
	assert.False(t, linkRepo.links[link.ID].Active)
	assert.Zero(t, accountRepo.users[1].StorageUsed)

	// A second read stays not-found without re-debiting.
	_, err = uc.Get(ctx, link.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrLinkNotFound))
	assert.Zero(t, accountRepo.users[1].StorageUsed)
}

func TestRequireOwner(t *testing.T) {
	uc, _, accountRepo := newTestLinkUseCase(t)
	accountRepo.add(1, plan.Free)
	accountRepo.add(2, plan.Free)
	ctx := context.Background()

	link, err := uc.Create(ctx, CreateParams{OwnerID: 1, Files: entries(100)})
	require.NoError(t, err)

	_, err = uc.RequireOwner(ctx, link.ID, 1)
	assert.NoError(t, err)
	_, err = uc.RequireOwner(ctx, link.ID, 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotOwner))
}

func TestUpdatePatchesDisplayFields(t *testing.T) {
	uc, linkRepo, accountRepo := newTestLinkUseCase(t)
	accountRepo.add(1, plan.Yearly)
	ctx := context.Background()

	link, err := uc.Create(ctx, CreateParams{OwnerID: 1, Files: entries(100)})
	require.NoError(t, err)

	name := "Holiday photos"
	pw := "abc123"
	protected := true
	require.NoError(t, uc.Update(ctx, link.ID, UpdateParams{
		Name:      &name,
		Password:  &pw,
		Protected: &protected,
	}))

	stored := linkRepo.links[link.ID]
	assert.Equal(t, "Holiday photos", stored.Name)
	require.NotNil(t, stored.Password)
	assert.Equal(t, "abc123", *stored.Password)
	assert.True(t, stored.Protected)

	require.NoError(t, uc.Update(ctx, link.ID, UpdateParams{ClearPassword: true}))
	assert.Nil(t, linkRepo.links[link.ID].Password)
}
