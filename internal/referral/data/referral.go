package data

import (
	"context"
	"time"

	"github.com/univora/sharebox-backend/internal/referral/biz"
	"gorm.io/gorm"
)

// ReferralPO represents the database model
type ReferralPO struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	ReferrerID int64  `gorm:"not null;index"`
	ReferredID int64  `gorm:"not null;index"`
	Status     string `gorm:"size:16;not null"`
	CreatedAt  time.Time
}

func (ReferralPO) TableName() string {
	return "referrals"
}

// ReferralRepo implements biz.ReferralRepo
type ReferralRepo struct {
	db *gorm.DB
}

func NewReferralRepo(db *gorm.DB) biz.ReferralRepo {
	return &ReferralRepo{db: db}
}

func (r *ReferralRepo) Insert(ctx context.Context, rec *biz.Record) error {
	po := &ReferralPO{
		ReferrerID: rec.ReferrerID,
		ReferredID: rec.ReferredID,
		Status:     rec.Status,
		CreatedAt:  rec.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		return err
	}
	rec.ID = po.ID
	return nil
}

func (r *ReferralRepo) CountCompleted(ctx context.Context, referrerID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ReferralPO{}).
		Where("referrer_id = ? AND status = ?", referrerID, biz.StatusCompleted).
		Count(&count).Error
	return count, err
}

func (r *ReferralRepo) ListByReferrer(ctx context.Context, referrerID int64, limit int) ([]*biz.Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var pos []ReferralPO
	err := r.db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC").Limit(limit).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	recs := make([]*biz.Record, len(pos))
	for i, po := range pos {
		recs[i] = &biz.Record{
			ID:         po.ID,
			ReferrerID: po.ReferrerID,
			ReferredID: po.ReferredID,
			Status:     po.Status,
			CreatedAt:  po.CreatedAt,
		}
	}
	return recs, nil
}
