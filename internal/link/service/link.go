package service

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	analyticsbiz "github.com/univora/sharebox-backend/internal/analytics/biz"
	"github.com/univora/sharebox-backend/internal/link/biz"
	apperrors "github.com/univora/sharebox-backend/internal/pkg/errors"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	"github.com/univora/sharebox-backend/internal/pkg/qrcode"
	"github.com/univora/sharebox-backend/internal/pkg/response"
	retrievalbiz "github.com/univora/sharebox-backend/internal/retrieval/biz"
	storagebiz "github.com/univora/sharebox-backend/internal/storage/biz"
	"go.uber.org/zap"
)

// LinkService exposes the link lifecycle over HTTP. The chat transport is
// a separate consumer of the same use cases; this surface serves the web
// dashboard.
type LinkService struct {
	links       *biz.LinkUseCase
	uploads     *storagebiz.UploadCoordinator
	drafts      *storagebiz.DraftFlow
	engine      *retrievalbiz.Engine
	analytics   *analyticsbiz.AnalyticsUseCase
	botUsername string
	logger      *logger.Logger
}

func NewLinkService(
	links *biz.LinkUseCase,
	uploads *storagebiz.UploadCoordinator,
	drafts *storagebiz.DraftFlow,
	engine *retrievalbiz.Engine,
	analytics *analyticsbiz.AnalyticsUseCase,
	botUsername string,
	log *logger.Logger,
) *LinkService {
	return &LinkService{
		links:       links,
		uploads:     uploads,
		drafts:      drafts,
		engine:      engine,
		analytics:   analytics,
		botUsername: botUsername,
		logger:      log,
	}
}

// RegisterRoutes wires the link endpoints onto the given group
func (s *LinkService) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("/links", s.CreateLink)
	g.GET("/links/:id", s.GetLink)
	g.GET("/links/:id/qr", s.GetLinkQR)
	g.PATCH("/links/:id", s.UpdateLink)
	g.DELETE("/links/:id", s.DeleteLink)
	g.POST("/links/:id/files", s.AddFiles)
	g.DELETE("/links/:id/files/:index", s.RemoveFile)
	g.POST("/links/:id/redeem", s.RedeemLink)
	g.POST("/redeem/password", s.SubmitPassword)
	g.GET("/users/:id/links", s.ListLinks)

	g.GET("/drafts", s.GetDraft)
	g.PATCH("/drafts", s.UpdateDraft)
	g.POST("/drafts/files", s.AddDraftFiles)
	g.POST("/drafts/finalize", s.FinalizeDraft)
	g.DELETE("/drafts", s.DiscardDraft)
}

// FileEntryResponse is a manifest entry without its storage locators
type FileEntryResponse struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Kind     string `json:"kind"`
	MimeType string `json:"mime_type"`
	Copies   int    `json:"copies"`
}

type LinkResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Category    string              `json:"category"`
	Files       []FileEntryResponse `json:"files"`
	TotalSize   int64               `json:"total_size"`
	Views       int64               `json:"views"`
	Downloads   int64               `json:"downloads"`
	HasPassword bool                `json:"has_password"`
	Protected   bool                `json:"protected"`
	CreatedAt   string              `json:"created_at"`
	ExpiresAt   string              `json:"expires_at,omitempty"`
	ShareURL    string              `json:"share_url"`
}

func (s *LinkService) toResponse(link *biz.Link) *LinkResponse {
	files := make([]FileEntryResponse, len(link.Files))
	for i, f := range link.Files {
		files[i] = FileEntryResponse{
			Name:     f.Name,
			Size:     f.Size,
			Kind:     f.Kind,
			MimeType: f.MimeType,
			Copies:   len(f.Copies()),
		}
	}

	resp := &LinkResponse{
		ID:          link.ID,
		Name:        link.Name,
		Category:    link.Category,
		Files:       files,
		TotalSize:   link.TotalSize,
		Views:       link.Views,
		Downloads:   link.Downloads,
		HasPassword: link.HasPassword(),
		Protected:   link.Protected,
		CreatedAt:   link.CreatedAt.Format("2006-01-02T15:04:05Z"),
		ShareURL:    s.ShareURL(link.ID),
	}
	if link.ExpiresAt != nil {
		resp.ExpiresAt = link.ExpiresAt.Format("2006-01-02T15:04:05Z")
	}
	return resp
}

// ShareURL builds the deep link a requester opens in the chat client
func (s *LinkService) ShareURL(linkID string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", s.botUsername, linkID)
}

// CreateLink ingests a multipart upload and finalizes it into a link in
// one request. Each part is replicated across every storage channel before
// the quota-checked create runs.
func (s *LinkService) CreateLink(c *gin.Context) {
	ownerID, ok := requesterID(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "multipart form required")
		return
	}
	parts := form.File["files"]
	if len(parts) == 0 {
		response.Error(c, apperrors.New(apperrors.ErrLinkEmpty))
		return
	}

	files := make([]storagebiz.FileEntry, 0, len(parts))
	for _, part := range parts {
		entry, err := s.ingestPart(c, ownerID, part)
		if err != nil {
			response.Error(c, err)
			return
		}
		files = append(files, entry)
	}

	params := biz.CreateParams{
		OwnerID:  ownerID,
		Files:    files,
		Name:     c.PostForm("name"),
		Category: c.PostForm("category"),
	}
	if pw := c.PostForm("password"); pw != "" {
		params.Password = &pw
	}
	if days := c.PostForm("expiry_days"); days != "" {
		params.ExpiryDays, _ = strconv.Atoi(days)
	}
	params.Protected = c.PostForm("protected") == "true"

	link, err := s.links.Create(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	s.analytics.Record(c.Request.Context(), analyticsbiz.KindLinkCreated, ownerID, link.ID,
		map[string]string{"files": strconv.Itoa(len(files))})
	response.Created(c, s.toResponse(link))
}

func (s *LinkService) ingestPart(c *gin.Context, ownerID int64, part *multipart.FileHeader) (storagebiz.FileEntry, error) {
	f, err := part.Open()
	if err != nil {
		return storagebiz.FileEntry{}, err
	}
	defer f.Close()

	contentType := part.Header.Get("Content-Type")
	entry, err := s.uploads.Upload(c.Request.Context(), storagebiz.InboundFile{
		Name:     part.Filename,
		Size:     part.Size,
		Kind:     kindOf(contentType),
		MimeType: contentType,
		Content:  f,
	})
	if err != nil {
		s.logger.Error("file ingestion failed",
			zap.Int64("owner_id", ownerID),
			zap.String("file", part.Filename),
			zap.Error(err))
		return storagebiz.FileEntry{}, err
	}
	s.analytics.Record(c.Request.Context(), analyticsbiz.KindFileUploaded, ownerID, "",
		map[string]string{"file": part.Filename, "size": strconv.FormatInt(part.Size, 10)})
	return entry, nil
}

func kindOf(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "video/"):
		return storagebiz.KindVideo
	case strings.HasPrefix(contentType, "image/"):
		return storagebiz.KindPhoto
	case strings.HasPrefix(contentType, "audio/"):
		return storagebiz.KindAudio
	default:
		return storagebiz.KindDocument
	}
}

// GetLink returns public link info. Expired links read as not found.
func (s *LinkService) GetLink(c *gin.Context) {
	link, err := s.links.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, s.toResponse(link))
}

// GetLinkQR renders the share URL as a QR PNG
func (s *LinkService) GetLinkQR(c *gin.Context) {
	link, err := s.links.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	size, _ := strconv.Atoi(c.DefaultQuery("size", "0"))
	png, err := qrcode.GeneratePNG(s.ShareURL(link.ID), size)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

type UpdateLinkRequest struct {
	Name          *string `json:"name"`
	Category      *string `json:"category"`
	Password      *string `json:"password"`
	ClearPassword bool    `json:"clear_password"`
	Protected     *bool   `json:"protected"`
}

// UpdateLink patches display fields of an owned link
func (s *LinkService) UpdateLink(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	var req UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	id := c.Param("id")
	if _, err := s.links.RequireOwner(c.Request.Context(), id, userID); err != nil {
		response.Error(c, err)
		return
	}

	err := s.links.Update(c.Request.Context(), id, biz.UpdateParams{
		Name:          req.Name,
		Category:      req.Category,
		Password:      req.Password,
		ClearPassword: req.ClearPassword,
		Protected:     req.Protected,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// DeleteLink soft-deletes an owned link
func (s *LinkService) DeleteLink(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if _, err := s.links.RequireOwner(c.Request.Context(), id, userID); err != nil {
		response.Error(c, err)
		return
	}

	if err := s.links.SoftDelete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	s.analytics.Record(c.Request.Context(), analyticsbiz.KindLinkDeleted, userID, id, nil)
	response.Success(c, nil)
}

// AddFiles appends uploaded parts to an owned link
func (s *LinkService) AddFiles(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if _, err := s.links.RequireOwner(c.Request.Context(), id, userID); err != nil {
		response.Error(c, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "multipart form required")
		return
	}

	files := make([]storagebiz.FileEntry, 0, len(form.File["files"]))
	for _, part := range form.File["files"] {
		entry, err := s.ingestPart(c, userID, part)
		if err != nil {
			response.Error(c, err)
			return
		}
		files = append(files, entry)
	}

	link, err := s.links.AddFiles(c.Request.Context(), id, files)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, s.toResponse(link))
}

// RemoveFile drops one file by manifest index
func (s *LinkService) RemoveFile(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Error(c, apperrors.New(apperrors.ErrLinkFileIndex))
		return
	}

	if _, err := s.links.RequireOwner(c.Request.Context(), id, userID); err != nil {
		response.Error(c, err)
		return
	}

	if err := s.links.RemoveFile(c.Request.Context(), id, index); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// RedemptionResponse aggregates the streamed step outcomes for the HTTP
// surface; the chat transport consumes the event stream directly.
type RedemptionResponse struct {
	Status    string `json:"status"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
}

// RedeemLink runs one redemption attempt to completion
func (s *LinkService) RedeemLink(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	events, err := s.engine.Redeem(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, drainEvents(events))
}

type SubmitPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// SubmitPassword answers a pending password challenge
func (s *LinkService) SubmitPassword(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	var req SubmitPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	events, err := s.engine.SubmitPassword(c.Request.Context(), userID, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, drainEvents(events))
}

func drainEvents(events <-chan retrievalbiz.Event) *RedemptionResponse {
	resp := &RedemptionResponse{Status: "completed"}
	for e := range events {
		switch e.Kind {
		case retrievalbiz.EventAwaitPassword:
			resp.Status = "await_password"
		case retrievalbiz.EventWrongPassword:
			resp.Status = "wrong_password"
		case retrievalbiz.EventCancelled:
			resp.Status = "cancelled"
		case retrievalbiz.EventFileDelivered:
			resp.Delivered++
		case retrievalbiz.EventFileFailed:
			resp.Failed++
		case retrievalbiz.EventCompleted:
			resp.Total = e.Total
		}
	}
	return resp
}

// ListLinks pages through an owner's active links
func (s *LinkService) ListLinks(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid user id")
		return
	}

	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	links, err := s.links.ListByOwner(c.Request.Context(), ownerID,
		c.Query("category"), offset, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]*LinkResponse, len(links))
	for i, link := range links {
		out[i] = s.toResponse(link)
	}
	response.Success(c, gin.H{"links": out})
}

// DraftResponse mirrors an open upload session
type DraftResponse struct {
	Category  string              `json:"category,omitempty"`
	Files     []FileEntryResponse `json:"files"`
	TotalSize int64               `json:"total_size"`
	StartedAt string              `json:"started_at"`
}

func toDraftResponse(d *storagebiz.Draft) *DraftResponse {
	resp := &DraftResponse{
		Category:  d.Category,
		Files:     make([]FileEntryResponse, len(d.Files)),
		StartedAt: d.StartedAt.Format("2006-01-02T15:04:05Z"),
	}
	for i, f := range d.Files {
		resp.Files[i] = FileEntryResponse{
			Name:     f.Name,
			Size:     f.Size,
			Kind:     f.Kind,
			MimeType: f.MimeType,
			Copies:   len(f.Copies()),
		}
		resp.TotalSize += f.Size
	}
	return resp
}

// GetDraft returns the requester's open upload session
func (s *LinkService) GetDraft(c *gin.Context) {
	ownerID, ok := requesterID(c)
	if !ok {
		return
	}

	d, err := s.drafts.Current(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if d == nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "no open draft")
		return
	}
	response.Success(c, toDraftResponse(d))
}

type UpdateDraftRequest struct {
	Category string `json:"category" binding:"required"`
}

// UpdateDraft tags the open draft with a category, opening one if needed
func (s *LinkService) UpdateDraft(c *gin.Context) {
	ownerID, ok := requesterID(c)
	if !ok {
		return
	}

	var req UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.drafts.SetCategory(c.Request.Context(), ownerID, req.Category)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toDraftResponse(d))
}

// AddDraftFiles replicates uploaded parts and appends them to the
// requester's draft, starting one on first use.
func (s *LinkService) AddDraftFiles(c *gin.Context) {
	ownerID, ok := requesterID(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "multipart form required")
		return
	}
	parts := form.File["files"]
	if len(parts) == 0 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "no files in request")
		return
	}

	var d *storagebiz.Draft
	for _, part := range parts {
		f, err := part.Open()
		if err != nil {
			response.Error(c, err)
			return
		}
		contentType := part.Header.Get("Content-Type")
		d, err = s.drafts.Append(c.Request.Context(), ownerID, storagebiz.InboundFile{
			Name:     part.Filename,
			Size:     part.Size,
			Kind:     kindOf(contentType),
			MimeType: contentType,
			Content:  f,
		})
		f.Close()
		if err != nil {
			response.Error(c, err)
			return
		}
		s.analytics.Record(c.Request.Context(), analyticsbiz.KindFileUploaded, ownerID, "",
			map[string]string{"file": part.Filename, "size": strconv.FormatInt(part.Size, 10)})
	}
	response.Success(c, toDraftResponse(d))
}

type FinalizeDraftRequest struct {
	Name       string  `json:"name"`
	Password   *string `json:"password"`
	ExpiryDays int     `json:"expiry_days"`
	Protected  bool    `json:"protected"`
}

// FinalizeDraft turns the open draft into a link. The draft record is
// dropped only after the quota-checked create succeeds, so a refused
// create leaves the session intact.
func (s *LinkService) FinalizeDraft(c *gin.Context) {
	ownerID, ok := requesterID(c)
	if !ok {
		return
	}

	var req FinalizeDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.drafts.Current(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if d == nil || len(d.Files) == 0 {
		response.Error(c, apperrors.New(apperrors.ErrLinkEmpty))
		return
	}

	link, err := s.links.Create(c.Request.Context(), biz.CreateParams{
		OwnerID:    ownerID,
		Files:      d.Files,
		Name:       req.Name,
		Category:   d.Category,
		Password:   req.Password,
		ExpiryDays: req.ExpiryDays,
		Protected:  req.Protected,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := s.drafts.Clear(c.Request.Context(), ownerID); err != nil {
		s.logger.Warn("draft clear after finalize failed",
			zap.Int64("owner_id", ownerID), zap.Error(err))
	}
	s.analytics.Record(c.Request.Context(), analyticsbiz.KindLinkCreated, ownerID, link.ID,
		map[string]string{"files": strconv.Itoa(len(d.Files))})
	response.Created(c, s.toResponse(link))
}

// DiscardDraft drops the open draft and its stored copies
func (s *LinkService) DiscardDraft(c *gin.Context) {
	ownerID, ok := requesterID(c)
	if !ok {
		return
	}

	if err := s.drafts.Discard(c.Request.Context(), ownerID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// requesterID reads the authenticated requester identity injected by the
// auth middleware, falling back to the X-User-ID header.
func requesterID(c *gin.Context) (int64, bool) {
	if v, ok := c.Get("user_id"); ok {
		if id, ok := v.(int64); ok {
			return id, true
		}
	}
	id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil || id == 0 {
		response.ErrorWithStatus(c, http.StatusUnauthorized, "missing requester identity")
		return 0, false
	}
	return id, true
}
