package data

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/univora/sharebox-backend/internal/user/biz"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IntSliceJSON stores claimed milestone thresholds as a jsonb array
type IntSliceJSON []int

func (j *IntSliceJSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j IntSliceJSON) Value() (driver.Value, error) {
	if j == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(j)
}

// StringMapJSON stores the free-form settings bag as jsonb
type StringMapJSON map[string]string

func (j *StringMapJSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j StringMapJSON) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// UserPO represents the database model
type UserPO struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"`
	Username  string `gorm:"size:255;index"`
	FirstName string `gorm:"size:255"`

	PlanID     string `gorm:"size:32;not null;default:'free'"`
	PlanExpiry *time.Time

	StorageUsed      int64 `gorm:"not null;default:0"`
	MonthlyLinkCount int   `gorm:"not null;default:0"`
	LastLinkReset    *time.Time

	Blocked      bool   `gorm:"not null;default:false"`
	ReferralCode string `gorm:"size:16;uniqueIndex"`
	ReferredBy   *int64
	Milestones   IntSliceJSON `gorm:"type:jsonb"`

	TotalLinks     int64 `gorm:"not null;default:0"`
	TotalDownloads int64 `gorm:"not null;default:0"`
	TotalViews     int64 `gorm:"not null;default:0"`

	Settings StringMapJSON `gorm:"type:jsonb"`

	JoinedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	LastSeen  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserPO) TableName() string {
	return "users"
}

// UserRepo implements biz.UserRepo
type UserRepo struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) biz.UserRepo {
	return &UserRepo{db: db}
}

var defaultSettings = StringMapJSON{
	"language":         "en",
	"notifications":    "on",
	"default_category": "Others",
	"auto_delete":      "on",
}

func (r *UserRepo) Upsert(ctx context.Context, id int64, username, firstName, referralCode string) (*biz.User, error) {
	now := time.Now().UTC()
	po := &UserPO{
		ID:           id,
		Username:     username,
		FirstName:    firstName,
		PlanID:       "free",
		ReferralCode: referralCode,
		Milestones:   IntSliceJSON{},
		Settings:     defaultSettings,
		JoinedAt:     now,
		LastSeen:     now,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"username":   username,
			"first_name": firstName,
			"last_seen":  now,
		}),
	}).Create(po).Error
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*biz.User, error) {
	var po UserPO
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toUser(&po), nil
}

func (r *UserRepo) GetByReferralCode(ctx context.Context, code string) (*biz.User, error) {
	var po UserPO
	err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toUser(&po), nil
}

func (r *UserRepo) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&UserPO{}).
		Where("referral_code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r *UserRepo) SetPlan(ctx context.Context, id int64, planID string, expiry *time.Time) error {
	return r.db.WithContext(ctx).Model(&UserPO{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"plan_id":            planID,
			"plan_expiry":        expiry,
			"monthly_link_count": 0,
			"last_link_reset":    time.Now().UTC(),
		}).Error
}

func (r *UserRepo) DowngradeToFree(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&UserPO{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"plan_id":     "free",
			"plan_expiry": nil,
		}).Error
}

func (r *UserRepo) AdjustStorage(ctx context.Context, id int64, delta int64) (int64, error) {
	po := UserPO{ID: id}
	err := r.db.WithContext(ctx).Model(&po).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "storage_used"}}}).
		Update("storage_used", gorm.Expr("storage_used + ?", delta)).Error
	return po.StorageUsed, err
}

func (r *UserRepo) ResetMonthlyCount(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&UserPO{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"monthly_link_count": 1,
			"last_link_reset":    at,
		}).Error
}

func (r *UserRepo) IncrementMonthlyCount(ctx context.Context, id int64) (int, error) {
	po := UserPO{ID: id}
	err := r.db.WithContext(ctx).Model(&po).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "monthly_link_count"}}}).
		Update("monthly_link_count", gorm.Expr("monthly_link_count + 1")).Error
	return po.MonthlyLinkCount, err
}

func (r *UserRepo) IncrementTotals(ctx context.Context, id int64, links, downloads, views int64) error {
	updates := map[string]interface{}{}
	if links != 0 {
		updates["total_links"] = gorm.Expr("total_links + ?", links)
	}
	if downloads != 0 {
		updates["total_downloads"] = gorm.Expr("total_downloads + ?", downloads)
	}
	if views != 0 {
		updates["total_views"] = gorm.Expr("total_views + ?", views)
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&UserPO{}).Where("id = ?", id).
		Updates(updates).Error
}

func (r *UserRepo) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	return r.db.WithContext(ctx).Model(&UserPO{}).Where("id = ?", id).
		Update("blocked", blocked).Error
}

func (r *UserRepo) SetReferredBy(ctx context.Context, id int64, referrerID int64) error {
	return r.db.WithContext(ctx).Model(&UserPO{}).
		Where("id = ? AND referred_by IS NULL", id).
		Update("referred_by", referrerID).Error
}

func (r *UserRepo) AppendMilestone(ctx context.Context, id int64, threshold int) error {
	return r.db.WithContext(ctx).Model(&UserPO{}).Where("id = ?", id).
		Update("milestones", gorm.Expr("COALESCE(milestones, '[]'::jsonb) || ?::jsonb",
			fmt.Sprintf("[%d]", threshold))).Error
}

func (r *UserRepo) UpdateSettings(ctx context.Context, id int64, settings map[string]string) error {
	patch, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&UserPO{}).Where("id = ?", id).
		Update("settings", gorm.Expr("COALESCE(settings, '{}'::jsonb) || ?::jsonb", string(patch))).Error
}

func (r *UserRepo) CountUsers(ctx context.Context) (total, premium int64, err error) {
	if err = r.db.WithContext(ctx).Model(&UserPO{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	err = r.db.WithContext(ctx).Model(&UserPO{}).
		Where("plan_id <> ?", "free").Count(&premium).Error
	return total, premium, err
}

func toUser(po *UserPO) *biz.User {
	return &biz.User{
		ID:               po.ID,
		Username:         po.Username,
		FirstName:        po.FirstName,
		PlanID:           po.PlanID,
		PlanExpiry:       po.PlanExpiry,
		StorageUsed:      po.StorageUsed,
		MonthlyLinkCount: po.MonthlyLinkCount,
		LastLinkReset:    po.LastLinkReset,
		Blocked:          po.Blocked,
		ReferralCode:     po.ReferralCode,
		ReferredBy:       po.ReferredBy,
		Milestones:       po.Milestones,
		TotalLinks:       po.TotalLinks,
		TotalDownloads:   po.TotalDownloads,
		TotalViews:       po.TotalViews,
		Settings:         po.Settings,
		JoinedAt:         po.JoinedAt,
		LastSeen:         po.LastSeen,
	}
}
