package service

import (
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	analyticsbiz "github.com/univora/sharebox-backend/internal/analytics/biz"
	linkbiz "github.com/univora/sharebox-backend/internal/link/biz"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	"github.com/univora/sharebox-backend/internal/pkg/response"
	"github.com/univora/sharebox-backend/internal/plan"
	referralbiz "github.com/univora/sharebox-backend/internal/referral/biz"
	"github.com/univora/sharebox-backend/internal/user/biz"
)

// UserService exposes account, plan and referral operations
type UserService struct {
	users     *biz.UserUseCase
	links     *linkbiz.LinkUseCase
	referrals *referralbiz.ReferralUseCase
	analytics *analyticsbiz.AnalyticsUseCase
	logger    *logger.Logger
}

func NewUserService(
	users *biz.UserUseCase,
	links *linkbiz.LinkUseCase,
	referrals *referralbiz.ReferralUseCase,
	analytics *analyticsbiz.AnalyticsUseCase,
	log *logger.Logger,
) *UserService {
	return &UserService{
		users:     users,
		links:     links,
		referrals: referrals,
		analytics: analytics,
		logger:    log,
	}
}

// RegisterRoutes wires the public user endpoints
func (s *UserService) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("/users", s.UpsertUser)
	g.GET("/users/:id", s.GetUser)
	g.PATCH("/users/:id/settings", s.UpdateSettings)
	g.GET("/users/:id/referrals", s.ReferralStats)
	g.POST("/referrals/redeem", s.RedeemReferral)
	g.GET("/plans", s.ListPlans)
}

// RegisterAdminRoutes wires the admin-only endpoints; the group must carry
// the admin auth middleware.
func (s *UserService) RegisterAdminRoutes(g *gin.RouterGroup) {
	g.POST("/users/:id/plan", s.SetPlan)
	g.POST("/users/:id/block", s.BlockUser)
	g.POST("/users/:id/unblock", s.UnblockUser)
}

type UpsertUserRequest struct {
	ID        int64  `json:"id" binding:"required"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

type UserResponse struct {
	ID               int64             `json:"id"`
	Username         string            `json:"username"`
	FirstName        string            `json:"first_name"`
	Plan             string            `json:"plan"`
	PlanExpiry       string            `json:"plan_expiry,omitempty"`
	StorageUsed      int64             `json:"storage_used"`
	StorageUsedHuman string            `json:"storage_used_human"`
	StorageQuota     int64             `json:"storage_quota"`
	ActiveLinks      int64             `json:"active_links"`
	Categories       map[string]int64  `json:"categories,omitempty"`
	TotalViews       int64             `json:"total_views"`
	Downloads        int64             `json:"total_downloads"`
	ReferralCode     string            `json:"referral_code"`
	Blocked          bool              `json:"blocked"`
	Settings         map[string]string `json:"settings"`
}

// UpsertUser registers the account on first sight and refreshes display
// fields afterwards
func (s *UserService) UpsertUser(c *gin.Context) {
	var req UpsertUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.users.Upsert(c.Request.Context(), req.ID, req.Username, req.FirstName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"id":            user.ID,
		"referral_code": user.ReferralCode,
	})
}

// GetUser returns the profile with its effective plan resolved
func (s *UserService) GetUser(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}

	user, err := s.users.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	tier, err := s.users.ResolvePlan(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	active, err := s.links.StatsByOwner(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	categories, err := s.links.CategoriesByOwner(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := &UserResponse{
		ID:               user.ID,
		Username:         user.Username,
		FirstName:        user.FirstName,
		Plan:             tier.ID,
		StorageUsed:      user.StorageUsed,
		StorageUsedHuman: humanize.IBytes(uint64(user.StorageUsed)),
		StorageQuota:     tier.StorageBytes,
		ActiveLinks:      active.Links,
		Categories:       categories,
		TotalViews:       user.TotalViews,
		Downloads:        user.TotalDownloads,
		ReferralCode:     user.ReferralCode,
		Blocked:          user.Blocked,
		Settings:         user.Settings,
	}
	if user.PlanExpiry != nil {
		resp.PlanExpiry = user.PlanExpiry.Format("2006-01-02T15:04:05Z")
	}
	response.Success(c, resp)
}

// UpdateSettings merges keys into the settings bag
func (s *UserService) UpdateSettings(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}

	var settings map[string]string
	if err := c.ShouldBindJSON(&settings); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.users.UpdateSettings(c.Request.Context(), id, settings); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

type RedeemReferralRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// RedeemReferral applies a referral code to a fresh account
func (s *UserService) RedeemReferral(c *gin.Context) {
	var req RedeemReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	granted, err := s.referrals.Redeem(c.Request.Context(), req.Code, req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	s.analytics.Record(c.Request.Context(), analyticsbiz.KindReferralApplied, req.UserID, "",
		map[string]string{"code": req.Code})

	data := gin.H{"applied": true}
	if granted != nil {
		data["milestone"] = granted.Threshold
		data["reward_plan"] = granted.PlanID
	}
	response.Success(c, data)
}

// ReferralStats returns a referrer's progress along the milestone ladder
func (s *UserService) ReferralStats(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}

	stats, err := s.referrals.Stats(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"completed":  stats.Completed,
		"claimed":    stats.Claimed,
		"milestones": s.referrals.Milestones(),
	})
}

type PlanResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Price            int    `json:"price"`
	DurationDays     int    `json:"duration_days"`
	StorageBytes     int64  `json:"storage_bytes"`
	MaxLinksPerMonth int    `json:"max_links_per_month"`
	LinkExpiryDays   int    `json:"link_expiry_days"`
	MaxFilesPerLink  int    `json:"max_files_per_link"`
	MaxFileSizeBytes int64  `json:"max_file_size_bytes"`
}

// ListPlans returns the static tier catalog
func (s *UserService) ListPlans(c *gin.Context) {
	tiers := plan.All()
	out := make([]PlanResponse, len(tiers))
	for i, t := range tiers {
		out[i] = PlanResponse{
			ID:               t.ID,
			Name:             t.Name,
			Price:            t.Price,
			DurationDays:     t.DurationDays,
			StorageBytes:     t.StorageBytes,
			MaxLinksPerMonth: t.MaxLinksPerMonth,
			LinkExpiryDays:   t.LinkExpiryDays,
			MaxFilesPerLink:  t.MaxFilesPerLink,
			MaxFileSizeBytes: t.MaxFileSizeBytes,
		}
	}
	response.Success(c, gin.H{"plans": out})
}

type SetPlanRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

// SetPlan assigns a tier directly (admin)
func (s *UserService) SetPlan(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}

	var req SetPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.users.SetPlan(c.Request.Context(), id, req.PlanID); err != nil {
		response.Error(c, err)
		return
	}
	s.analytics.Record(c.Request.Context(), analyticsbiz.KindPlanChanged, id, "",
		map[string]string{"plan": req.PlanID})
	response.Success(c, nil)
}

// BlockUser blocks the account (admin)
func (s *UserService) BlockUser(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}
	if err := s.users.Block(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// UnblockUser clears the blocked flag (admin)
func (s *UserService) UnblockUser(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}
	if err := s.users.Unblock(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func pathUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}
