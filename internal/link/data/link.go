package data

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/univora/sharebox-backend/internal/link/biz"
	storagebiz "github.com/univora/sharebox-backend/internal/storage/biz"
	"gorm.io/gorm"
)

// FileEntriesJSON stores a link's file manifest as a jsonb array
type FileEntriesJSON []storagebiz.FileEntry

func (j *FileEntriesJSON) Scan(value interface{}) error {
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

func (j FileEntriesJSON) Value() (driver.Value, error) {
	if j == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(j)
}

// LinkPO represents the database model
type LinkPO struct {
	ID      string `gorm:"primaryKey;size:16"`
	OwnerID int64  `gorm:"not null;index:idx_links_owner_active,priority:1"`

	Name     string `gorm:"size:255;not null"`
	Category string `gorm:"size:64;not null;index"`
	Password *string

	FileEntries FileEntriesJSON `gorm:"type:jsonb"`
	TotalSize   int64           `gorm:"not null;default:0"`

	Views        int64 `gorm:"not null;default:0"`
	Downloads    int64 `gorm:"not null;default:0"`
	LastAccessed *time.Time

	Active            bool `gorm:"not null;default:true;index:idx_links_owner_active,priority:2"`
	Protected         bool `gorm:"not null;default:false"`
	PremiumAtCreation bool `gorm:"not null;default:false"`

	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (LinkPO) TableName() string {
	return "links"
}

// LinkRepo implements biz.LinkRepo
type LinkRepo struct {
	db *gorm.DB
}

func NewLinkRepo(db *gorm.DB) biz.LinkRepo {
	return &LinkRepo{db: db}
}

func (r *LinkRepo) Insert(ctx context.Context, link *biz.Link) error {
	return r.db.WithContext(ctx).Create(toPO(link)).Error
}

func (r *LinkRepo) Find(ctx context.Context, id string) (*biz.Link, error) {
	var po LinkPO
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toLink(&po), nil
}

func (r *LinkRepo) FindActive(ctx context.Context, id string) (*biz.Link, error) {
	var po LinkPO
	err := r.db.WithContext(ctx).Where("id = ? AND active", id).First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toLink(&po), nil
}

func (r *LinkRepo) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&LinkPO{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *LinkRepo) AppendFiles(ctx context.Context, id string, files []storagebiz.FileEntry, sizeDelta int64) error {
	patch, err := json.Marshal(files)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&LinkPO{}).
		Where("id = ? AND active", id).
		Updates(map[string]interface{}{
			"file_entries": gorm.Expr("COALESCE(file_entries, '[]'::jsonb) || ?::jsonb", string(patch)),
			"total_size":   gorm.Expr("total_size + ?", sizeDelta),
		}).Error
}

func (r *LinkRepo) ReplaceFiles(ctx context.Context, id string, files []storagebiz.FileEntry, totalSize int64) error {
	return r.db.WithContext(ctx).Model(&LinkPO{}).
		Where("id = ? AND active", id).
		Updates(map[string]interface{}{
			"file_entries": FileEntriesJSON(files),
			"total_size":   totalSize,
		}).Error
}

func (r *LinkRepo) Deactivate(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&LinkPO{}).
		Where("id = ? AND active", id).
		Update("active", false)
	return res.RowsAffected == 1, res.Error
}

func (r *LinkRepo) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&LinkPO{}).
		Where("id = ? AND active", id).
		Updates(fields).Error
}

func (r *LinkRepo) IncrementViews(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&LinkPO{}).
		Where("id = ? AND active", id).
		Updates(map[string]interface{}{
			"views":         gorm.Expr("views + 1"),
			"last_accessed": time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *LinkRepo) IncrementDownloads(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&LinkPO{}).
		Where("id = ? AND active", id).
		Updates(map[string]interface{}{
			"downloads":     gorm.Expr("downloads + 1"),
			"last_accessed": time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *LinkRepo) ListByOwner(ctx context.Context, ownerID int64, category string, offset, limit int) ([]*biz.Link, error) {
	q := r.db.WithContext(ctx).Where("owner_id = ? AND active", ownerID)
	if category != "" {
		q = q.Where("category = ?", category)
	}

	var pos []LinkPO
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&pos).Error
	if err != nil {
		return nil, err
	}

	links := make([]*biz.Link, len(pos))
	for i := range pos {
		links[i] = toLink(&pos[i])
	}
	return links, nil
}

func (r *LinkRepo) CountActiveByOwner(ctx context.Context, ownerID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&LinkPO{}).
		Where("owner_id = ? AND active", ownerID).Count(&count).Error
	return count, err
}

func (r *LinkRepo) StatsByOwner(ctx context.Context, ownerID int64) (biz.OwnerStats, error) {
	var row struct {
		Links     int64
		Views     int64
		Downloads int64
		Bytes     int64
	}
	err := r.db.WithContext(ctx).Model(&LinkPO{}).
		Select("COUNT(*) AS links, COALESCE(SUM(views),0) AS views, COALESCE(SUM(downloads),0) AS downloads, COALESCE(SUM(total_size),0) AS bytes").
		Where("owner_id = ? AND active", ownerID).
		Scan(&row).Error
	if err != nil {
		return biz.OwnerStats{}, err
	}
	return biz.OwnerStats{
		Links:     row.Links,
		Views:     row.Views,
		Downloads: row.Downloads,
		Bytes:     row.Bytes,
	}, nil
}

func (r *LinkRepo) CategoryCountsByOwner(ctx context.Context, ownerID int64) (map[string]int64, error) {
	var rows []struct {
		Category string
		Count    int64
	}
	err := r.db.WithContext(ctx).Model(&LinkPO{}).
		Select("category, COUNT(*) AS count").
		Where("owner_id = ? AND active", ownerID).
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Category] = row.Count
	}
	return out, nil
}

func (r *LinkRepo) Stats(ctx context.Context) (biz.GlobalStats, error) {
	var row struct {
		TotalLinks  int64
		ActiveLinks int64
		Views       int64
		Downloads   int64
		ActiveBytes int64
	}
	err := r.db.WithContext(ctx).Model(&LinkPO{}).
		Select("COUNT(*) AS total_links, " +
			"COUNT(*) FILTER (WHERE active) AS active_links, " +
			"COALESCE(SUM(views),0) AS views, " +
			"COALESCE(SUM(downloads),0) AS downloads, " +
			"COALESCE(SUM(total_size) FILTER (WHERE active),0) AS active_bytes").
		Scan(&row).Error
	if err != nil {
		return biz.GlobalStats{}, err
	}
	return biz.GlobalStats{
		TotalLinks:  row.TotalLinks,
		ActiveLinks: row.ActiveLinks,
		Views:       row.Views,
		Downloads:   row.Downloads,
		ActiveBytes: row.ActiveBytes,
	}, nil
}

func toPO(link *biz.Link) *LinkPO {
	return &LinkPO{
		ID:                link.ID,
		OwnerID:           link.OwnerID,
		Name:              link.Name,
		Category:          link.Category,
		Password:          link.Password,
		FileEntries:       FileEntriesJSON(link.Files),
		TotalSize:         link.TotalSize,
		Views:             link.Views,
		Downloads:         link.Downloads,
		LastAccessed:      link.LastAccessed,
		Active:            link.Active,
		Protected:         link.Protected,
		PremiumAtCreation: link.PremiumAtCreation,
		ExpiresAt:         link.ExpiresAt,
		CreatedAt:         link.CreatedAt,
	}
}

func toLink(po *LinkPO) *biz.Link {
	return &biz.Link{
		ID:                po.ID,
		OwnerID:           po.OwnerID,
		Name:              po.Name,
		Category:          po.Category,
		Password:          po.Password,
		Files:             po.FileEntries,
		TotalSize:         po.TotalSize,
		Views:             po.Views,
		Downloads:         po.Downloads,
		LastAccessed:      po.LastAccessed,
		Active:            po.Active,
		Protected:         po.Protected,
		PremiumAtCreation: po.PremiumAtCreation,
		CreatedAt:         po.CreatedAt,
		ExpiresAt:         po.ExpiresAt,
	}
}
