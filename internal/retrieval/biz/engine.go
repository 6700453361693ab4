package biz

import (
	"context"
	"strconv"
	"time"

	linkbiz "github.com/univora/sharebox-backend/internal/link/biz"
	apperrors "github.com/univora/sharebox-backend/internal/pkg/errors"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	storagebiz "github.com/univora/sharebox-backend/internal/storage/biz"
	"go.uber.org/zap"
)

// Deliverer produces a requester-facing copy from one stored copy
type Deliverer interface {
	Deliver(ctx context.Context, requesterID int64, loc storagebiz.Locator, entry storagebiz.FileEntry) (DeliveredCopy, error)
	Remove(ctx context.Context, copy DeliveredCopy) error
}

// SessionRepo tracks per-requester password state: which link is awaiting
// a password, and which links this requester has already proven.
type SessionRepo interface {
	SetPending(ctx context.Context, requesterID int64, linkID string) error
	GetPending(ctx context.Context, requesterID int64) (string, error)
	ClearPending(ctx context.Context, requesterID int64) error

	MarkVerified(ctx context.Context, requesterID int64, linkID string) error
	IsVerified(ctx context.Context, requesterID int64, linkID string) (bool, error)
}

// Scheduler runs detached units of work. Failures inside a unit never
// propagate to its siblings.
type Scheduler interface {
	Submit(task func()) error
	SubmitAfter(delay time.Duration, task func()) error
}

// Recorder is the analytics sink for redemption transitions
type Recorder interface {
	Record(ctx context.Context, kind string, userID int64, linkID string, meta map[string]string)
}

// Engine redeems links: expiry and password checks, per-file failover
// across stored copies, batch download accounting and scheduled cleanup of
// delivered copies.
type Engine struct {
	links      *linkbiz.LinkUseCase
	deliverer  Deliverer
	sessions   SessionRepo
	scheduler  Scheduler
	analytics  Recorder
	cleanupTTL time.Duration
	logger     *logger.Logger
}

func NewEngine(
	links *linkbiz.LinkUseCase,
	deliverer Deliverer,
	sessions SessionRepo,
	scheduler Scheduler,
	analytics Recorder,
	cleanupTTL time.Duration,
	log *logger.Logger,
) *Engine {
	return &Engine{
		links:      links,
		deliverer:  deliverer,
		sessions:   sessions,
		scheduler:  scheduler,
		analytics:  analytics,
		cleanupTTL: cleanupTTL,
		logger:     log,
	}
}

// Redeem starts one redemption attempt. The returned channel streams step
// outcomes and is closed when the attempt ends; delivery itself runs as a
// detached unit so the caller is not held open for the whole batch.
// Cancelling ctx stops delivery cooperatively between files.
//
// A not-found, inactive or expired link is reported as an error before any
// channel is returned; the view counter is bumped for every resolvable
// link regardless of what happens afterwards.
func (e *Engine) Redeem(ctx context.Context, requesterID int64, linkID string) (<-chan Event, error) {
	link, err := e.links.Get(ctx, linkID)
	if err != nil {
		return nil, err
	}

	e.links.IncrementViews(ctx, linkID, link.OwnerID)
	e.analytics.Record(ctx, "link_view", requesterID, linkID, nil)

	if link.HasPassword() {
		verified, err := e.sessions.IsVerified(ctx, requesterID, linkID)
		if err != nil {
			return nil, err
		}
		if !verified {
			if err := e.sessions.SetPending(ctx, requesterID, linkID); err != nil {
				return nil, err
			}
			events := make(chan Event, 1)
			events <- Event{Kind: EventAwaitPassword, LinkID: linkID}
			close(events)
			return events, nil
		}
	}

	return e.startDelivery(ctx, requesterID, link)
}

// SubmitPassword resolves a pending password challenge for requesterID. A
// correct candidate marks the session verified and re-enters delivery; a
// wrong one re-prompts and keeps the challenge pending.
func (e *Engine) SubmitPassword(ctx context.Context, requesterID int64, candidate string) (<-chan Event, error) {
	linkID, err := e.sessions.GetPending(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if linkID == "" {
		return nil, apperrors.New(apperrors.ErrLinkNotFound)
	}

	link, err := e.links.Get(ctx, linkID)
	if err != nil {
		// The link expired while the challenge was pending.
		if clearErr := e.sessions.ClearPending(ctx, requesterID); clearErr != nil {
			e.logger.Warn("pending challenge clear failed",
				zap.Int64("requester_id", requesterID), zap.Error(clearErr))
		}
		return nil, err
	}

	if !link.CheckPassword(candidate) {
		events := make(chan Event, 1)
		events <- Event{Kind: EventWrongPassword, LinkID: linkID}
		close(events)
		return events, nil
	}

	if err := e.sessions.MarkVerified(ctx, requesterID, linkID); err != nil {
		return nil, err
	}
	if err := e.sessions.ClearPending(ctx, requesterID); err != nil {
		e.logger.Warn("pending challenge clear failed",
			zap.Int64("requester_id", requesterID), zap.Error(err))
	}

	return e.startDelivery(ctx, requesterID, link)
}

func (e *Engine) startDelivery(ctx context.Context, requesterID int64, link *linkbiz.Link) (<-chan Event, error) {
	events := make(chan Event, len(link.Files)+2)
	err := e.scheduler.Submit(func() {
		defer close(events)
		e.deliver(ctx, requesterID, link, events)
	})
	if err != nil {
		close(events)
		return nil, err
	}
	return events, nil
}

// deliver walks the manifest in stored order. Each file tries its primary
// copy first, then each backup; the file fails only once every copy has
// been tried. Cancellation is checked between files, never mid-file, and
// never rolls back copies already delivered.
func (e *Engine) deliver(ctx context.Context, requesterID int64, link *linkbiz.Link, events chan<- Event) {
	var (
		delivered []DeliveredCopy
		healed    bool
		cancelled bool
	)
	files := link.Files

	for i := range files {
		if ctx.Err() != nil {
			cancelled = true
			events <- Event{Kind: EventCancelled, LinkID: link.ID,
				Delivered: len(delivered), Total: len(files)}
			break
		}

		cp, servedBy, err := e.deliverFile(ctx, requesterID, files[i])
		if err != nil {
			e.logger.Warn("every copy failed for file",
				zap.String("link_id", link.ID),
				zap.String("file", files[i].Name),
				zap.Error(err))
			events <- Event{Kind: EventFileFailed, LinkID: link.ID,
				FileIndex: i, FileName: files[i].Name, Total: len(files)}
			continue
		}

		delivered = append(delivered, cp)
		events <- Event{Kind: EventFileDelivered, LinkID: link.ID,
			FileIndex: i, FileName: files[i].Name,
			Delivered: len(delivered), Total: len(files)}

		if servedBy != files[i].Primary {
			files[i] = promote(files[i], servedBy)
			healed = true
		}
	}

	// Accounting survives cancellation of the delivery context.
	bg := context.WithoutCancel(ctx)

	// A batch counts as one download when at least one file reached the
	// requester, cancelled or not.
	if len(delivered) > 0 {
		e.links.IncrementDownloads(bg, link.ID, link.OwnerID)
		e.analytics.Record(bg, "link_download", requesterID, link.ID, map[string]string{
			"files_delivered": strconv.Itoa(len(delivered)),
		})
	}

	if healed {
		e.links.HealLocators(bg, link.ID, files)
	}

	e.scheduleCleanup(bg, delivered)

	if !cancelled {
		events <- Event{Kind: EventCompleted, LinkID: link.ID,
			Delivered: len(delivered), Total: len(files)}
	}
}

// deliverFile tries each stored copy in order and returns the copy handed
// to the requester plus the locator that served it.
func (e *Engine) deliverFile(ctx context.Context, requesterID int64, entry storagebiz.FileEntry) (DeliveredCopy, storagebiz.Locator, error) {
	var lastErr error
	for _, loc := range entry.Copies() {
		cp, err := e.deliverer.Deliver(ctx, requesterID, loc, entry)
		if err != nil {
			lastErr = err
			e.logger.Debug("copy unreachable, trying next",
				zap.String("channel", loc.Channel),
				zap.String("ref", loc.Ref),
				zap.Error(err))
			continue
		}
		return cp, loc, nil
	}
	if lastErr == nil {
		lastErr = apperrors.New(apperrors.ErrStorageUnavailable, "file has no stored copies")
	}
	return DeliveredCopy{}, storagebiz.Locator{}, lastErr
}

// scheduleCleanup removes every delivered copy after the configured TTL.
// Each removal is its own unit; failures are logged and swallowed.
func (e *Engine) scheduleCleanup(ctx context.Context, delivered []DeliveredCopy) {
	for _, cp := range delivered {
		cp := cp
		err := e.scheduler.SubmitAfter(e.cleanupTTL, func() {
			if err := e.deliverer.Remove(ctx, cp); err != nil {
				e.logger.Warn("delivered copy cleanup failed",
					zap.String("channel", cp.Channel),
					zap.String("ref", cp.Ref),
					zap.Error(err))
			}
		})
		if err != nil {
			e.logger.Warn("cleanup scheduling failed",
				zap.String("ref", cp.Ref), zap.Error(err))
		}
	}
}

// promote reorders a manifest entry so the copy that actually served
// becomes primary and the dead primary drops to the back of the fallbacks.
func promote(entry storagebiz.FileEntry, servedBy storagebiz.Locator) storagebiz.FileEntry {
	rest := make([]storagebiz.Locator, 0, len(entry.Backups))
	for _, b := range entry.Backups {
		if b != servedBy {
			rest = append(rest, b)
		}
	}
	if !entry.Primary.Zero() {
		rest = append(rest, entry.Primary)
	}
	entry.Primary = servedBy
	entry.Backups = rest
	return entry
}
