package biz

import (
	"context"
	"time"

	apperrors "github.com/univora/sharebox-backend/internal/pkg/errors"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	"github.com/univora/sharebox-backend/internal/plan"
	userbiz "github.com/univora/sharebox-backend/internal/user/biz"
	"go.uber.org/zap"
)

// StatusCompleted is the only record status: a referral completes the
// moment the code is redeemed, with no pending window.
const StatusCompleted = "completed"

// Record is one referrer/referred relationship. Records are append-only.
type Record struct {
	ID         int64
	ReferrerID int64
	ReferredID int64
	Status     string
	CreatedAt  time.Time
}

// Milestone pairs a completed-referral threshold with the plan it unlocks
type Milestone struct {
	Threshold int
	PlanID    string
}

// DefaultMilestones in ascending threshold order
var DefaultMilestones = []Milestone{
	{Threshold: 10, PlanID: plan.Monthly},
	{Threshold: 30, PlanID: plan.Bimonthly},
	{Threshold: 100, PlanID: plan.Yearly},
}

// Stats summarizes one referrer's progress
type Stats struct {
	Completed int64
	Claimed   []int
}

// ReferralRepo persists referral records
type ReferralRepo interface {
	Insert(ctx context.Context, rec *Record) error
	CountCompleted(ctx context.Context, referrerID int64) (int64, error)
	ListByReferrer(ctx context.Context, referrerID int64, limit int) ([]*Record, error)
}

// ReferralUseCase applies referral codes and grants milestone rewards
type ReferralUseCase struct {
	repo       ReferralRepo
	users      *userbiz.UserUseCase
	milestones []Milestone
	logger     *logger.Logger
}

func NewReferralUseCase(repo ReferralRepo, users *userbiz.UserUseCase, log *logger.Logger) *ReferralUseCase {
	return &ReferralUseCase{
		repo:       repo,
		users:      users,
		milestones: DefaultMilestones,
		logger:     log,
	}
}

// Redeem applies a referral code for a freshly joined account. The record
// is written in completed status immediately; afterwards the lowest
// unclaimed crossed milestone, if any, grants its plan to the referrer.
// Returns the granted milestone, nil when none was crossed this pass.
func (uc *ReferralUseCase) Redeem(ctx context.Context, code string, referredID int64) (*Milestone, error) {
	referrer, err := uc.users.GetByReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if referrer == nil {
		return nil, apperrors.New(apperrors.ErrReferralUnknownCode)
	}
	if referrer.ID == referredID {
		return nil, apperrors.New(apperrors.ErrReferralSelf)
	}

	referred, err := uc.users.Get(ctx, referredID)
	if err != nil {
		return nil, err
	}
	if referred.ReferredBy != nil {
		return nil, apperrors.New(apperrors.ErrReferralAlreadyApplied)
	}

	if err := uc.users.SetReferredBy(ctx, referredID, referrer.ID); err != nil {
		return nil, err
	}
	if err := uc.repo.Insert(ctx, &Record{
		ReferrerID: referrer.ID,
		ReferredID: referredID,
		Status:     StatusCompleted,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	granted, err := uc.grantMilestone(ctx, referrer)
	if err != nil {
		// The referral itself succeeded; a failed grant retries on the
		// referrer's next completed referral.
		uc.logger.Error("milestone grant failed",
			zap.Int64("referrer_id", referrer.ID), zap.Error(err))
		return nil, nil
	}
	return granted, nil
}

// grantMilestone grants the lowest unclaimed threshold the referrer's
// completed count has reached. At most one grant per pass; each threshold
// fires at most once per referrer.
func (uc *ReferralUseCase) grantMilestone(ctx context.Context, referrer *userbiz.User) (*Milestone, error) {
	count, err := uc.repo.CountCompleted(ctx, referrer.ID)
	if err != nil {
		return nil, err
	}

	claimed := make(map[int]struct{}, len(referrer.Milestones))
	for _, t := range referrer.Milestones {
		claimed[t] = struct{}{}
	}

	for _, m := range uc.milestones {
		if _, ok := claimed[m.Threshold]; ok {
			continue
		}
		if count < int64(m.Threshold) {
			return nil, nil
		}

		if err := uc.users.SetPlan(ctx, referrer.ID, m.PlanID); err != nil {
			return nil, err
		}
		if err := uc.users.ClaimMilestone(ctx, referrer.ID, m.Threshold); err != nil {
			return nil, err
		}
		uc.logger.Info("referral milestone granted",
			zap.Int64("referrer_id", referrer.ID),
			zap.Int("threshold", m.Threshold),
			zap.String("plan", m.PlanID))
		return &m, nil
	}
	return nil, nil
}

// Stats returns a referrer's completed count and claimed thresholds
func (uc *ReferralUseCase) Stats(ctx context.Context, referrerID int64) (Stats, error) {
	count, err := uc.repo.CountCompleted(ctx, referrerID)
	if err != nil {
		return Stats{}, err
	}
	u, err := uc.users.Get(ctx, referrerID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Completed: count, Claimed: u.Milestones}, nil
}

// Milestones exposes the configured ladder
func (uc *ReferralUseCase) Milestones() []Milestone {
	return uc.milestones
}
