package biz

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// Event kinds emitted across the service
const (
	KindLinkCreated     = "link_created"
	KindLinkDeleted     = "link_deleted"
	KindLinkView        = "link_view"
	KindLinkDownload    = "link_download"
	KindFileUploaded    = "file_uploaded"
	KindReferralApplied = "referral_applied"
	KindPlanChanged     = "plan_changed"
)

// Event is one observational record. The log is append-only; nothing in
// the system reads it back on a hot path.
type Event struct {
	ID        string
	Kind      string
	UserID    int64
	LinkID    string
	Meta      map[string]string
	CreatedAt time.Time
}

// EventRepo persists the append-only event log
type EventRepo interface {
	Insert(ctx context.Context, e *Event) error
	CountByKind(ctx context.Context, kind string, since time.Time) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]*Event, error)
}

// AnalyticsUseCase is the write side of the event log plus the few
// aggregate reads the dashboard needs.
type AnalyticsUseCase struct {
	repo   EventRepo
	logger *logger.Logger
}

func NewAnalyticsUseCase(repo EventRepo, log *logger.Logger) *AnalyticsUseCase {
	return &AnalyticsUseCase{repo: repo, logger: log}
}

// Record appends one event. Recording never fails the action that emitted
// it; write errors are logged and dropped.
func (uc *AnalyticsUseCase) Record(ctx context.Context, kind string, userID int64, linkID string, meta map[string]string) {
	e := &Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		LinkID:    linkID,
		Meta:      meta,
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.repo.Insert(ctx, e); err != nil {
		uc.logger.Warn("analytics event dropped",
			zap.String("kind", kind), zap.Error(err))
	}
}

// CountByKind counts events of one kind since the given time
func (uc *AnalyticsUseCase) CountByKind(ctx context.Context, kind string, since time.Time) (int64, error) {
	return uc.repo.CountByKind(ctx, kind, since)
}

// ListRecent returns the newest events for the admin dashboard
func (uc *AnalyticsUseCase) ListRecent(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return uc.repo.ListRecent(ctx, limit)
}
