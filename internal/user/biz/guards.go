package biz

import (
	"context"

	apperrors "github.com/univora/sharebox-backend/internal/pkg/errors"
	"github.com/univora/sharebox-backend/internal/plan"
)

// Guard helpers composed at the call site before invoking a core
// operation. They return typed permission results the caller renders.

// RequireAdmin passes only for configured administrator identities
func (uc *UserUseCase) RequireAdmin(id int64) error {
	if !uc.IsAdmin(id) {
		return apperrors.New(apperrors.ErrAdminOnly)
	}
	return nil
}

// RequireNotBlocked rejects blocked accounts. Unknown accounts pass; they
// are created on first interaction.
func (uc *UserUseCase) RequireNotBlocked(ctx context.Context, id int64) error {
	u, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u != nil && u.Blocked {
		return apperrors.New(apperrors.ErrUserBlocked)
	}
	return nil
}

// RequirePremium passes for administrators and any active paid tier
func (uc *UserUseCase) RequirePremium(ctx context.Context, id int64) error {
	if uc.IsAdmin(id) {
		return nil
	}
	tier, err := uc.ResolvePlan(ctx, id)
	if err != nil {
		return err
	}
	if !plan.IsPremium(tier.ID) {
		return apperrors.New(apperrors.ErrPremiumOnly)
	}
	return nil
}
