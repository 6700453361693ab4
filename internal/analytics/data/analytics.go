package data

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/univora/sharebox-backend/internal/analytics/biz"
	"gorm.io/gorm"
)

// MetaJSON stores the free-form metadata bag as jsonb
type MetaJSON map[string]string

func (j *MetaJSON) Scan(value interface{}) error {
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

func (j MetaJSON) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// EventPO represents the database model
type EventPO struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Kind      string    `gorm:"size:64;not null;index"`
	UserID    int64     `gorm:"index"`
	LinkID    string    `gorm:"size:16;index"`
	Meta      MetaJSON  `gorm:"type:jsonb"`
	CreatedAt time.Time `gorm:"index"`
}

func (EventPO) TableName() string {
	return "analytics_events"
}

// EventRepo implements biz.EventRepo
type EventRepo struct {
	db *gorm.DB
}

func NewEventRepo(db *gorm.DB) biz.EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) Insert(ctx context.Context, e *biz.Event) error {
	po := &EventPO{
		ID:        e.ID,
		Kind:      e.Kind,
		UserID:    e.UserID,
		LinkID:    e.LinkID,
		Meta:      e.Meta,
		CreatedAt: e.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(po).Error
}

func (r *EventRepo) CountByKind(ctx context.Context, kind string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&EventPO{}).
		Where("kind = ? AND created_at >= ?", kind, since).
		Count(&count).Error
	return count, err
}

func (r *EventRepo) ListRecent(ctx context.Context, limit int) ([]*biz.Event, error) {
	var pos []EventPO
	err := r.db.WithContext(ctx).
		Order("created_at DESC").Limit(limit).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	events := make([]*biz.Event, len(pos))
	for i, po := range pos {
		events[i] = &biz.Event{
			ID:        po.ID,
			Kind:      po.Kind,
			UserID:    po.UserID,
			LinkID:    po.LinkID,
			Meta:      po.Meta,
			CreatedAt: po.CreatedAt,
		}
	}
	return events, nil
}
