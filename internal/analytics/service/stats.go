package service

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/univora/sharebox-backend/internal/analytics/biz"
	linkbiz "github.com/univora/sharebox-backend/internal/link/biz"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	"github.com/univora/sharebox-backend/internal/pkg/response"
	userbiz "github.com/univora/sharebox-backend/internal/user/biz"
)

// StatsService serves the admin dashboard aggregates
type StatsService struct {
	analytics *biz.AnalyticsUseCase
	links     *linkbiz.LinkUseCase
	users     *userbiz.UserUseCase
	logger    *logger.Logger
}

func NewStatsService(
	analytics *biz.AnalyticsUseCase,
	links *linkbiz.LinkUseCase,
	users *userbiz.UserUseCase,
	log *logger.Logger,
) *StatsService {
	return &StatsService{
		analytics: analytics,
		links:     links,
		users:     users,
		logger:    log,
	}
}

// RegisterAdminRoutes wires the dashboard endpoints; the group must carry
// the admin auth middleware.
func (s *StatsService) RegisterAdminRoutes(g *gin.RouterGroup) {
	g.GET("/stats", s.Overview)
	g.GET("/events", s.RecentEvents)
}

type OverviewResponse struct {
	TotalUsers       int64  `json:"total_users"`
	PremiumUsers     int64  `json:"premium_users"`
	TotalLinks       int64  `json:"total_links"`
	ActiveLinks      int64  `json:"active_links"`
	TotalViews       int64  `json:"total_views"`
	TotalDownloads   int64  `json:"total_downloads"`
	ActiveBytes      int64  `json:"active_bytes"`
	ActiveBytesHuman string `json:"active_bytes_human"`
	Views24h         int64  `json:"views_24h"`
	Downloads24h     int64  `json:"downloads_24h"`
}

// Overview composes user, link and event aggregates into one snapshot
func (s *StatsService) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	totalUsers, premiumUsers, err := s.users.CountUsers(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	linkStats, err := s.links.Stats(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	views24h, err := s.analytics.CountByKind(ctx, biz.KindLinkView, since)
	if err != nil {
		response.Error(c, err)
		return
	}
	downloads24h, err := s.analytics.CountByKind(ctx, biz.KindLinkDownload, since)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, &OverviewResponse{
		TotalUsers:       totalUsers,
		PremiumUsers:     premiumUsers,
		TotalLinks:       linkStats.TotalLinks,
		ActiveLinks:      linkStats.ActiveLinks,
		TotalViews:       linkStats.Views,
		TotalDownloads:   linkStats.Downloads,
		ActiveBytes:      linkStats.ActiveBytes,
		ActiveBytesHuman: humanize.IBytes(uint64(linkStats.ActiveBytes)),
		Views24h:         views24h,
		Downloads24h:     downloads24h,
	})
}

type EventResponse struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	UserID    int64             `json:"user_id,omitempty"`
	LinkID    string            `json:"link_id,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt string            `json:"created_at"`
}

// RecentEvents lists the newest analytics events
func (s *StatsService) RecentEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, err := s.analytics.ListRecent(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]EventResponse, len(events))
	for i, e := range events {
		out[i] = EventResponse{
			ID:        e.ID,
			Kind:      e.Kind,
			UserID:    e.UserID,
			LinkID:    e.LinkID,
			Meta:      e.Meta,
			CreatedAt: e.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}
	response.Success(c, gin.H{"events": out})
}
