package capture

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/auth"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/response"
)

// Handler exposes browser capture sessions over HTTP.
type Handler struct {
	manager  *Manager
	sessions auth.SessionProvider
	logger   *zap.Logger
}

// NewHandler creates a capture handler. A nil sessions reads the caller from
// the request context.
func NewHandler(manager *Manager, sessions auth.SessionProvider, logger *zap.Logger) *Handler {
	if sessions == nil {
		sessions = auth.ContextSession{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, sessions: sessions, logger: logger}
}

// CreateSessionRequest is the body of POST /capture/sessions.
type CreateSessionRequest struct {
	Preset Preset `json:"preset"`
}

// OfferRequest carries the browser's SDP offer.
type OfferRequest struct {
	Type string `json:"type"`
	SDP  string `json:"sdp" binding:"required"`
}

// Create handles POST /capture/sessions.
func (h *Handler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	st, err := h.manager.Create(c.Request.Context(), userID, req.Preset)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, st)
}

// Offer handles POST /capture/sessions/:id/offer.
func (h *Handler) Offer(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	var req OfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Type != "" && req.Type != "offer" {
		response.BadRequest(c, "expected an sdp offer")
		return
	}
	answer, err := h.manager.Offer(c.Request.Context(), id, userID, req.SDP)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"type": "answer", "sdp": answer})
}

// Stop handles POST /capture/sessions/:id/stop.
func (h *Handler) Stop(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	rec, err := h.manager.Stop(c.Request.Context(), id, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, rec)
}

// Cancel handles POST /capture/sessions/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	if err := h.manager.Cancel(id, userID); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// Get handles GET /capture/sessions/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	st, err := h.manager.Get(id, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, st)
}

// caller resolves the signed-in user or answers 401.
func (h *Handler) caller(c *gin.Context) (uuid.UUID, bool) {
	userID, err := h.sessions.UserID(c.Request.Context())
	if err != nil {
		response.Unauthorized(c, err.Error())
		return uuid.Nil, false
	}
	return userID, true
}

func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrNotRecording), errors.Is(err, ErrAlreadyRecording):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrUnsupportedEncoding):
		response.UnsupportedMediaType(c, err.Error())
	case errors.Is(err, ErrPermissionDenied):
		response.Forbidden(c, err.Error())
	case errors.Is(err, ErrNoPeer):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("capture request failed", zap.Error(err), zap.String("path", c.FullPath()))
		response.Internal(c, "capture failed")
	}
}
