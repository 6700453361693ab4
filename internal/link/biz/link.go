package biz

import (
	"context"
	"time"

	storagebiz "github.com/univora/sharebox-backend/internal/storage/biz"
)

// Link is the shareable entity bundling one or more files under one short
// identifier. TotalSize is denormalized and kept in lockstep with the file
// manifest and the owner's storage counter.
type Link struct {
	ID      string
	OwnerID int64

	Name     string
	Category string
	Password *string

	Files     []storagebiz.FileEntry
	TotalSize int64

	Views        int64
	Downloads    int64
	LastAccessed *time.Time

	Active            bool
	Protected         bool
	PremiumAtCreation bool

	CreatedAt time.Time
	ExpiresAt *time.Time
}

// HasPassword reports whether redemption is password-gated
func (l *Link) HasPassword() bool {
	return l.Password != nil && *l.Password != ""
}

// CheckPassword compares the candidate against the stored password,
// case-sensitively.
func (l *Link) CheckPassword(candidate string) bool {
	return l.Password != nil && *l.Password == candidate
}

// Expired reports whether the expiry stamp has passed
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// OwnerStats aggregates an owner's active links
type OwnerStats struct {
	Links     int64
	Views     int64
	Downloads int64
	Bytes     int64
}

// GlobalStats aggregates every link ever created
type GlobalStats struct {
	TotalLinks  int64
	ActiveLinks int64
	Views       int64
	Downloads   int64
	ActiveBytes int64
}

// LinkRepo defines link persistence. Counter mutations are atomic deltas
// applied by the store.
type LinkRepo interface {
	Insert(ctx context.Context, link *Link) error

	// Find returns the link regardless of its active flag, nil if absent.
	Find(ctx context.Context, id string) (*Link, error)
	// FindActive returns the link only while active, nil otherwise.
	FindActive(ctx context.Context, id string) (*Link, error)
	Exists(ctx context.Context, id string) (bool, error)

	// AppendFiles appends to the manifest and bumps the aggregate size as
	// one atomic statement.
	AppendFiles(ctx context.Context, id string, files []storagebiz.FileEntry, sizeDelta int64) error
	// ReplaceFiles rewrites the manifest and sets the aggregate size.
	ReplaceFiles(ctx context.Context, id string, files []storagebiz.FileEntry, totalSize int64) error

	// Deactivate flips active to false and reports whether this call was
	// the one that flipped it.
	Deactivate(ctx context.Context, id string) (bool, error)

	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error

	IncrementViews(ctx context.Context, id string) (bool, error)
	IncrementDownloads(ctx context.Context, id string) (bool, error)

	ListByOwner(ctx context.Context, ownerID int64, category string, offset, limit int) ([]*Link, error)
	CountActiveByOwner(ctx context.Context, ownerID int64) (int64, error)
	StatsByOwner(ctx context.Context, ownerID int64) (OwnerStats, error)
	CategoryCountsByOwner(ctx context.Context, ownerID int64) (map[string]int64, error)
	Stats(ctx context.Context) (GlobalStats, error)
}
