// Package ads manages the ad slots that ad_insertion and full_process jobs read.
package ads

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/media"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/middleware"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/response"
)

// Store persists ad slots.
type Store interface {
	Create(ctx context.Context, s *models.AdSlot) error
	ListByMedia(ctx context.Context, mediaFileID uuid.UUID) ([]models.AdSlot, error)
	Delete(ctx context.Context, id, mediaFileID uuid.UUID) error
}

// MediaFiles resolves a media file owned by a user.
type MediaFiles interface {
	Get(ctx context.Context, id, userID uuid.UUID) (*models.MediaFile, error)
}

// CreateRequest is the body for POST /media/:id/ad-slots.
type CreateRequest struct {
	PositionSeconds float64 `json:"position_seconds" binding:"gte=0"`
	AdFileURL       string  `json:"ad_file_url" binding:"required,url"`
	DurationSeconds float64 `json:"duration_seconds" binding:"gt=0"`
}

// Handler handles ad slot HTTP endpoints.
type Handler struct {
	store  Store
	files  MediaFiles
	logger *zap.Logger
}

// NewHandler creates an ad slot handler.
func NewHandler(store Store, files MediaFiles, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, files: files, logger: logger}
}

// Create handles POST /media/:id/ad-slots.
func (h *Handler) Create(c *gin.Context) {
	mediaFileID, ok := h.ownedMedia(c)
	if !ok {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s := &models.AdSlot{
		MediaFileID:     mediaFileID,
		PositionSeconds: req.PositionSeconds,
		AdFileURL:       req.AdFileURL,
		DurationSeconds: req.DurationSeconds,
	}
	if err := h.store.Create(c.Request.Context(), s); err != nil {
		h.logger.Error("create ad slot failed", zap.Error(err), zap.String("media_file_id", mediaFileID.String()))
		response.Internal(c, "failed to create ad slot")
		return
	}
	response.Created(c, s)
}

// List handles GET /media/:id/ad-slots.
func (h *Handler) List(c *gin.Context) {
	mediaFileID, ok := h.ownedMedia(c)
	if !ok {
		return
	}
	list, err := h.store.ListByMedia(c.Request.Context(), mediaFileID)
	if err != nil {
		response.Internal(c, "failed to list ad slots")
		return
	}
	response.OK(c, list)
}

// Delete handles DELETE /media/:id/ad-slots/:slotId.
func (h *Handler) Delete(c *gin.Context) {
	mediaFileID, ok := h.ownedMedia(c)
	if !ok {
		return
	}
	slotID, err := uuid.Parse(c.Param("slotId"))
	if err != nil {
		response.BadRequest(c, "invalid ad slot id")
		return
	}
	if err := h.store.Delete(c.Request.Context(), slotID, mediaFileID); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "ad slot not found")
			return
		}
		response.Internal(c, "failed to delete ad slot")
		return
	}
	response.NoContent(c)
}

func (h *Handler) ownedMedia(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid media file id")
		return uuid.Nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if _, err := h.files.Get(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, media.ErrNotFound) {
			response.NotFound(c, "media file not found")
			return uuid.Nil, false
		}
		response.Internal(c, "failed to load media file")
		return uuid.Nil, false
	}
	return id, true
}
