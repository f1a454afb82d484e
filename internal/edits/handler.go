// Package edits manages the edit instructions that ai_edit and full_process jobs read.
package edits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/media"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/middleware"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/response"
)

// MaxInstructions caps one replace request.
const MaxInstructions = 500

// Store persists edit instructions.
type Store interface {
	Replace(ctx context.Context, mediaFileID uuid.UUID, list []models.EditInstruction) error
	List(ctx context.Context, mediaFileID uuid.UUID) ([]models.EditInstruction, error)
}

// MediaFiles resolves a media file owned by a user.
type MediaFiles interface {
	Get(ctx context.Context, id, userID uuid.UUID) (*models.MediaFile, error)
}

// Instruction is one entry of a replace request.
type Instruction struct {
	Kind         string          `json:"kind" binding:"required"`
	StartSeconds float64         `json:"start_seconds" binding:"gte=0"`
	EndSeconds   float64         `json:"end_seconds" binding:"gte=0"`
	Params       json.RawMessage `json:"params"`
}

// ReplaceRequest is the body for PUT /media/:id/edit-instructions.
type ReplaceRequest struct {
	Instructions []Instruction `json:"instructions" binding:"dive"`
}

// Handler handles edit instruction HTTP endpoints.
type Handler struct {
	store  Store
	files  MediaFiles
	logger *zap.Logger
}

// NewHandler creates an edit instruction handler.
func NewHandler(store Store, files MediaFiles, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, files: files, logger: logger}
}

// Replace handles PUT /media/:id/edit-instructions. The list order is the apply order.
func (h *Handler) Replace(c *gin.Context) {
	mediaFileID, ok := h.ownedMedia(c)
	if !ok {
		return
	}
	var req ReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if len(req.Instructions) > MaxInstructions {
		response.BadRequest(c, fmt.Sprintf("at most %d instructions", MaxInstructions))
		return
	}
	list := make([]models.EditInstruction, 0, len(req.Instructions))
	for i, in := range req.Instructions {
		if in.EndSeconds < in.StartSeconds {
			response.BadRequest(c, fmt.Sprintf("instruction %d: end_seconds before start_seconds", i))
			return
		}
		list = append(list, models.EditInstruction{
			MediaFileID:  mediaFileID,
			Position:     i,
			Kind:         in.Kind,
			StartSeconds: in.StartSeconds,
			EndSeconds:   in.EndSeconds,
			Params:       in.Params,
		})
	}
	if err := h.store.Replace(c.Request.Context(), mediaFileID, list); err != nil {
		h.logger.Error("replace edit instructions failed", zap.Error(err), zap.String("media_file_id", mediaFileID.String()))
		response.Internal(c, "failed to save edit instructions")
		return
	}
	response.OK(c, list)
}

// List handles GET /media/:id/edit-instructions.
func (h *Handler) List(c *gin.Context) {
	mediaFileID, ok := h.ownedMedia(c)
	if !ok {
		return
	}
	list, err := h.store.List(c.Request.Context(), mediaFileID)
	if err != nil {
		response.Internal(c, "failed to list edit instructions")
		return
	}
	response.OK(c, list)
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
