package biz

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	apperrors "github.com/univora/sharebox-backend/internal/pkg/errors"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	"github.com/univora/sharebox-backend/internal/plan"
	"go.uber.org/zap"
)

// User is the domain model for one bot account. The numeric identity is
// assigned by the chat platform; accounts are never hard-deleted.
type User struct {
	ID        int64
	Username  string
	FirstName string

	PlanID     string
	PlanExpiry *time.Time

	StorageUsed      int64
	MonthlyLinkCount int
	LastLinkReset    *time.Time

	Blocked      bool
	ReferralCode string
	ReferredBy   *int64
	Milestones   []int

	TotalLinks     int64
	TotalDownloads int64
	TotalViews     int64

	Settings map[string]string

	JoinedAt time.Time
	LastSeen time.Time
}

// UserRepo defines the persistence contract. Counter mutations are atomic
// deltas applied by the store, never read-modify-write in caller memory.
type UserRepo interface {
	// Upsert creates the user on first sight (counters zeroed, referral
	// code as given) and only refreshes display fields afterwards.
	Upsert(ctx context.Context, id int64, username, firstName, referralCode string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByReferralCode(ctx context.Context, code string) (*User, error)
	ReferralCodeExists(ctx context.Context, code string) (bool, error)

	SetPlan(ctx context.Context, id int64, planID string, expiry *time.Time) error
	DowngradeToFree(ctx context.Context, id int64) error

	// AdjustStorage applies delta atomically and returns the new value.
	AdjustStorage(ctx context.Context, id int64, delta int64) (int64, error)

	ResetMonthlyCount(ctx context.Context, id int64, at time.Time) error
	IncrementMonthlyCount(ctx context.Context, id int64) (int, error)

	IncrementTotals(ctx context.Context, id int64, links, downloads, views int64) error

	SetBlocked(ctx context.Context, id int64, blocked bool) error
	SetReferredBy(ctx context.Context, id int64, referrerID int64) error
	AppendMilestone(ctx context.Context, id int64, threshold int) error
	UpdateSettings(ctx context.Context, id int64, settings map[string]string) error

	CountUsers(ctx context.Context) (total, premium int64, err error)
}

// UserUseCase contains account, plan and quota-counter logic
type UserUseCase struct {
	repo     UserRepo
	adminIDs map[int64]struct{}
	logger   *logger.Logger
}

func NewUserUseCase(repo UserRepo, adminIDs []int64, log *logger.Logger) *UserUseCase {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &UserUseCase{repo: repo, adminIDs: admins, logger: log}
}

// IsAdmin reports whether id is a configured administrator
func (uc *UserUseCase) IsAdmin(id int64) bool {
	_, ok := uc.adminIDs[id]
	return ok
}

// Upsert creates the account on first interaction and refreshes display
// fields on every later one. Safe under concurrent calls for the same id.
func (uc *UserUseCase) Upsert(ctx context.Context, id int64, username, firstName string) (*User, error) {
	code, err := uc.generateReferralCode(ctx)
	if err != nil {
		return nil, err
	}
	return uc.repo.Upsert(ctx, id, username, firstName, code)
}

// generateReferralCode produces a unique 10-char upper URL-safe token
func (uc *UserUseCase) generateReferralCode(ctx context.Context) (string, error) {
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		code := strings.ToUpper(base64.RawURLEncoding.EncodeToString(buf))
		if len(code) > 10 {
			code = code[:10]
		}
		exists, err := uc.repo.ReferralCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
}

// Get returns the stored account
func (uc *UserUseCase) Get(ctx context.Context, id int64) (*User, error) {
	u, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperrors.New(apperrors.ErrUserNotFound)
	}
	return u, nil
}

// GetByReferralCode resolves a referral code to its owner, nil if unknown
func (uc *UserUseCase) GetByReferralCode(ctx context.Context, code string) (*User, error) {
	return uc.repo.GetByReferralCode(ctx, code)
}

// ResolvePlan returns the user's effective tier. Administrators always
// resolve to lifetime. An expired non-free plan is lazily downgraded to
// free as a side effect; this runs on every quota decision.
func (uc *UserUseCase) ResolvePlan(ctx context.Context, id int64) (plan.Tier, error) {
	if uc.IsAdmin(id) {
		return plan.Get(plan.Lifetime), nil
	}

	u, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return plan.Get(plan.Free), err
	}
	if u == nil {
		return plan.Get(plan.Free), nil
	}

	if u.PlanID != plan.Free && u.PlanID != plan.Lifetime && u.PlanExpiry != nil {
		if time.Now().UTC().After(*u.PlanExpiry) {
			if err := uc.repo.DowngradeToFree(ctx, id); err != nil {
				uc.logger.Warn("plan downgrade failed",
					zap.Int64("user_id", id), zap.Error(err))
			}
			return plan.Get(plan.Free), nil
		}
	}

	return plan.Get(u.PlanID), nil
}

// SetPlan assigns a tier, recomputes expiry from the tier duration and
// resets the monthly link counter.
func (uc *UserUseCase) SetPlan(ctx context.Context, id int64, planID string) error {
	if !plan.Exists(planID) {
		return apperrors.New(apperrors.ErrInvalidParams, "unknown plan: "+planID)
	}

	tier := plan.Get(planID)
	expiry := time.Now().UTC().AddDate(0, 0, tier.DurationDays)
	return uc.repo.SetPlan(ctx, id, planID, &expiry)
}

// AdjustStorage applies an atomic storage delta. A negative steady-state
// value means a caller debited more than it credited; that is a bug, so it
// is logged loudly rather than coerced.
func (uc *UserUseCase) AdjustStorage(ctx context.Context, id int64, delta int64) error {
	newValue, err := uc.repo.AdjustStorage(ctx, id, delta)
	if err != nil {
		return err
	}
	if newValue < 0 {
		uc.logger.Error("storage counter underflow",
			zap.Int64("user_id", id),
			zap.Int64("delta", delta),
			zap.Int64("storage_used", newValue))
	}
	return nil
}

// IncrementMonthlyLinkCount bumps the month-window counter, resetting it
// to 1 when the calendar month has changed since the stored reset stamp.
func (uc *UserUseCase) IncrementMonthlyLinkCount(ctx context.Context, id int64) (int, error) {
	u, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if u == nil {
		return 0, apperrors.New(apperrors.ErrUserNotFound)
	}

	now := time.Now().UTC()
	if u.LastLinkReset == nil || !sameMonth(now, *u.LastLinkReset) {
		if err := uc.repo.ResetMonthlyCount(ctx, id, now); err != nil {
			return 0, err
		}
		return 1, nil
	}

	return uc.repo.IncrementMonthlyCount(ctx, id)
}

// CheckMonthlyLimit reports whether the user may create another link this
// month. Read-only: a stale counter from a previous month counts as zero
// but is not reset here.
func (uc *UserUseCase) CheckMonthlyLimit(ctx context.Context, id int64) (bool, error) {
	tier, err := uc.ResolvePlan(ctx, id)
	if err != nil {
		return false, err
	}
	if plan.UnlimitedCount(tier.MaxLinksPerMonth) {
		return true, nil
	}

	u, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if u == nil {
		return true, nil
	}

	count := u.MonthlyLinkCount
	if u.LastLinkReset == nil || !sameMonth(time.Now().UTC(), *u.LastLinkReset) {
		count = 0
	}

	return count < tier.MaxLinksPerMonth, nil
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// IncrementTotals mirrors per-link counter bumps into the owner aggregates
func (uc *UserUseCase) IncrementTotals(ctx context.Context, id int64, links, downloads, views int64) error {
	return uc.repo.IncrementTotals(ctx, id, links, downloads, views)
}

// Block marks the account blocked
func (uc *UserUseCase) Block(ctx context.Context, id int64) error {
	return uc.repo.SetBlocked(ctx, id, true)
}

// Unblock clears the blocked flag
func (uc *UserUseCase) Unblock(ctx context.Context, id int64) error {
	return uc.repo.SetBlocked(ctx, id, false)
}

// SetReferredBy records the referrer back-reference, set at most once
func (uc *UserUseCase) SetReferredBy(ctx context.Context, id, referrerID int64) error {
	return uc.repo.SetReferredBy(ctx, id, referrerID)
}

// ClaimMilestone appends a claimed referral threshold
func (uc *UserUseCase) ClaimMilestone(ctx context.Context, id int64, threshold int) error {
	return uc.repo.AppendMilestone(ctx, id, threshold)
}

// UpdateSettings merges the given keys into the settings bag
func (uc *UserUseCase) UpdateSettings(ctx context.Context, id int64, settings map[string]string) error {
	return uc.repo.UpdateSettings(ctx, id, settings)
}

// CountUsers returns total and premium account counts
func (uc *UserUseCase) CountUsers(ctx context.Context) (total, premium int64, err error) {
	return uc.repo.CountUsers(ctx)
}
