package biz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/univora/sharebox-backend/internal/pkg/errors"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	"github.com/univora/sharebox-backend/internal/plan"
)

type fakeUserRepo struct {
	users map[int64]*User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*User)}
}

func (r *fakeUserRepo) Upsert(_ context.Context, id int64, username, firstName, referralCode string) (*User, error) {
	if u, ok := r.users[id]; ok {
		u.Username = username
		u.FirstName = firstName
		u.LastSeen = time.Now().UTC()
		return u, nil
	}
	u := &User{
		ID:           id,
		Username:     username,
		FirstName:    firstName,
		PlanID:       plan.Free,
		ReferralCode: referralCode,
		Settings:     map[string]string{},
		JoinedAt:     time.Now().UTC(),
		LastSeen:     time.Now().UTC(),
	}
	r.users[id] = u
	return u, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int64) (*User, error) {
	return r.users[id], nil
}

func (r *fakeUserRepo) GetByReferralCode(_ context.Context, code string) (*User, error) {
	for _, u := range r.users {
		if u.ReferralCode == code {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) ReferralCodeExists(_ context.Context, code string) (bool, error) {
	for _, u := range r.users {
		if u.ReferralCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeUserRepo) SetPlan(_ context.Context, id int64, planID string, expiry *time.Time) error {
	u := r.users[id]
	u.PlanID = planID
	u.PlanExpiry = expiry
	u.MonthlyLinkCount = 0
	now := time.Now().UTC()
	u.LastLinkReset = &now
	return nil
}

func (r *fakeUserRepo) DowngradeToFree(_ context.Context, id int64) error {
	u := r.users[id]
	u.PlanID = plan.Free
	u.PlanExpiry = nil
	return nil
}

func (r *fakeUserRepo) AdjustStorage(_ context.Context, id int64, delta int64) (int64, error) {
	u := r.users[id]
	u.StorageUsed += delta
	return u.StorageUsed, nil
}

func (r *fakeUserRepo) ResetMonthlyCount(_ context.Context, id int64, at time.Time) error {
	u := r.users[id]
	u.MonthlyLinkCount = 1
	u.LastLinkReset = &at
	return nil
}

func (r *fakeUserRepo) IncrementMonthlyCount(_ context.Context, id int64) (int, error) {
	u := r.users[id]
	u.MonthlyLinkCount++
	return u.MonthlyLinkCount, nil
}

func (r *fakeUserRepo) IncrementTotals(_ context.Context, id int64, links, downloads, views int64) error {
	u := r.users[id]
	u.TotalLinks += links
	u.TotalDownloads += downloads
	u.TotalViews += views
	return nil
}

func (r *fakeUserRepo) SetBlocked(_ context.Context, id int64, blocked bool) error {
	r.users[id].Blocked = blocked
	return nil
}

func (r *fakeUserRepo) SetReferredBy(_ context.Context, id int64, referrerID int64) error {
	u := r.users[id]
	if u.ReferredBy == nil {
		u.ReferredBy = &referrerID
	}
	return nil
}

func (r *fakeUserRepo) AppendMilestone(_ context.Context, id int64, threshold int) error {
	u := r.users[id]
	u.Milestones = append(u.Milestones, threshold)
	return nil
}

func (r *fakeUserRepo) UpdateSettings(_ context.Context, id int64, settings map[string]string) error {
	u := r.users[id]
	if u.Settings == nil {
		u.Settings = map[string]string{}
	}
	for k, v := range settings {
		u.Settings[k] = v
	}
	return nil
}

func (r *fakeUserRepo) CountUsers(_ context.Context) (int64, int64, error) {
	var total, premium int64
	for _, u := range r.users {
		total++
		if u.PlanID != plan.Free {
			premium++
		}
	}
	return total, premium, nil
}

func newTestUseCase(admins ...int64) (*UserUseCase, *fakeUserRepo) {
	repo := newFakeUserRepo()
	return NewUserUseCase(repo, admins, logger.L()), repo
}

func TestUpsertGeneratesReferralCode(t *testing.T) {
	uc, _ := newTestUseCase()

	u, err := uc.Upsert(context.Background(), 100, "alice", "Alice")
	require.NoError(t, err)
	assert.Len(t, u.ReferralCode, 10)
	assert.Equal(t, plan.Free, u.PlanID)

	// Second upsert keeps the original code.
	again, err := uc.Upsert(context.Background(), 100, "alice2", "Alice")
	require.NoError(t, err)
	assert.Equal(t, u.ReferralCode, again.ReferralCode)
	assert.Equal(t, "alice2", again.Username)
}

func TestResolvePlanAdminIsLifetime(t *testing.T) {
	uc, _ := newTestUseCase(42)

	tier, err := uc.ResolvePlan(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, plan.Lifetime, tier.ID)
}

func TestResolvePlanLazyDowngrade(t *testing.T) {
	uc, repo := newTestUseCase()
	_, err := uc.Upsert(context.Background(), 1, "bob", "Bob")
	require.NoError(t, err)

	expired := time.Now().UTC().Add(-time.Hour)
	repo.users[1].PlanID = plan.Monthly
	repo.users[1].PlanExpiry = &expired

	tier, err := uc.ResolvePlan(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, plan.Free, tier.ID)
	assert.Equal(t, plan.Free, repo.users[1].PlanID)
	assert.Nil(t, repo.users[1].PlanExpiry)
}

func TestResolvePlanActivePremiumKept(t *testing.T) {
	uc, repo := newTestUseCase()
	_, err := uc.Upsert(context.Background(), 1, "bob", "Bob")
	require.NoError(t, err)

	future := time.Now().UTC().Add(24 * time.Hour)
	repo.users[1].PlanID = plan.Yearly
	repo.users[1].PlanExpiry = &future

	tier, err := uc.ResolvePlan(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, plan.Yearly, tier.ID)
}

func TestIncrementMonthlyLinkCountResetsOnNewMonth(t *testing.T) {
	uc, repo := newTestUseCase()
	_, err := uc.Upsert(context.Background(), 1, "bob", "Bob")
	require.NoError(t, err)

	count, err := uc.IncrementMonthlyLinkCount(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = uc.IncrementMonthlyLinkCount(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Pretend the last reset happened in a previous month.
	stale := time.Now().UTC().AddDate(0, -1, 0)
	repo.users[1].LastLinkReset = &stale

	count, err = uc.IncrementMonthlyLinkCount(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCheckMonthlyLimit(t *testing.T) {
	uc, repo := newTestUseCase()
	_, err := uc.Upsert(context.Background(), 1, "bob", "Bob")
	require.NoError(t, err)

	now := time.Now().UTC()
	repo.users[1].MonthlyLinkCount = plan.Get(plan.Free).MaxLinksPerMonth
	repo.users[1].LastLinkReset = &now

	ok, err := uc.CheckMonthlyLimit(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// A counter from a previous month reads as zero.
	stale := now.AddDate(0, -1, 0)
	repo.users[1].LastLinkReset = &stale

	ok, err = uc.CheckMonthlyLimit(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuards(t *testing.T) {
	uc, repo := newTestUseCase(42)
	_, err := uc.Upsert(context.Background(), 1, "bob", "Bob")
	require.NoError(t, err)

	assert.NoError(t, uc.RequireAdmin(42))
	assert.True(t, apperrors.Is(uc.RequireAdmin(1), apperrors.ErrAdminOnly))

	assert.NoError(t, uc.RequireNotBlocked(context.Background(), 1))
	repo.users[1].Blocked = true
	assert.True(t, apperrors.Is(uc.RequireNotBlocked(context.Background(), 1), apperrors.ErrUserBlocked))
	// Unknown accounts pass; they are created on first interaction.
	assert.NoError(t, uc.RequireNotBlocked(context.Background(), 999))

	repo.users[1].Blocked = false
	assert.True(t, apperrors.Is(uc.RequirePremium(context.Background(), 1), apperrors.ErrPremiumOnly))
	future := time.Now().UTC().Add(time.Hour)
	repo.users[1].PlanID = plan.Daily
	repo.users[1].PlanExpiry = &future
	assert.NoError(t, uc.RequirePremium(context.Background(), 1))
	assert.NoError(t, uc.RequirePremium(context.Background(), 42))
}
