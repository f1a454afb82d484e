package processing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/auth"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/middleware"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/response"
)

// ProcessVideoRequest is the body of POST /process-video.
type ProcessVideoRequest struct {
	MediaFileID string          `json:"mediaFileId"`
	JobType     string          `json:"jobType"`
	Config      json.RawMessage `json:"config"`
}

// ProcessVideoResponse is returned by POST /process-video.
type ProcessVideoResponse struct {
	Success bool                  `json:"success"`
	JobID   *uuid.UUID            `json:"jobId,omitempty"`
	Message string                `json:"message,omitempty"`
	Error   string                `json:"error,omitempty"`
	Job     *models.ProcessingJob `json:"job,omitempty"`
}

// Handler serves the processing endpoints.
type Handler struct {
	svc         *Service
	waitTimeout time.Duration
	logger      *zap.Logger
}

// NewHandler creates a processing handler. waitTimeout bounds ?wait=true requests.
func NewHandler(svc *Service, waitTimeout time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, waitTimeout: waitTimeout, logger: logger}
}

func processFail(c *gin.Context, status int, msg string) {
	c.JSON(status, ProcessVideoResponse{Success: false, Error: msg})
}

// ProcessVideo handles POST /process-video. The job runs after the response
// unless the caller asks to wait with ?wait=true.
func (h *Handler) ProcessVideo(c *gin.Context) {
	var req ProcessVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		processFail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	mediaFileID, err := uuid.Parse(req.MediaFileID)
	if err != nil {
		processFail(c, http.StatusBadRequest, "invalid mediaFileId")
		return
	}

	userID, anyOwner := caller(c)
	job, handle, err := h.svc.Submit(c.Request.Context(), SubmitRequest{
		UserID:      userID,
		MediaFileID: mediaFileID,
		JobType:     models.JobType(req.JobType),
		Config:      req.Config,
		AnyOwner:    anyOwner,
	})
	switch {
	case errors.Is(err, ErrInvalidJobType):
		processFail(c, http.StatusBadRequest, "invalid jobType: must be ai_edit, ad_insertion or full_process")
		return
	case errors.Is(err, ErrMediaFileNotFound):
		processFail(c, http.StatusNotFound, "media file not found")
		return
	case err != nil:
		h.logger.Error("submit job failed", zap.Error(err), zap.String("media_file_id", mediaFileID.String()))
		processFail(c, http.StatusInternalServerError, "failed to start processing")
		return
	}

	resp := ProcessVideoResponse{Success: true, JobID: &job.ID, Message: "Video processing started"}
	if c.Query("wait") == "true" {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.waitTimeout)
		defer cancel()
		final, err := handle.Wait(ctx)
		if err != nil {
			h.logger.Warn("wait for job failed", zap.String("job_id", job.ID.String()), zap.Error(err))
			resp.Job = job
		} else {
			resp.Job = final
			resp.Message = "Video processing " + string(final.Status)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetJob handles GET /jobs/:id.
func (h *Handler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid job id")
		return
	}
	userID, anyOwner := caller(c)
	job, err := h.svc.Get(c.Request.Context(), id, userID, anyOwner)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			response.NotFound(c, "job not found")
			return
		}
		h.logger.Error("get job failed", zap.Error(err), zap.String("job_id", id.String()))
		response.Internal(c, "failed to get job")
		return
	}
	response.OK(c, job)
}

// ListForMedia handles GET /media/:id/jobs.
func (h *Handler) ListForMedia(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid media file id")
		return
	}
	userID, anyOwner := caller(c)
	jobs, err := h.svc.ListForMedia(c.Request.Context(), id, userID, anyOwner)
	if err != nil {
		if errors.Is(err, ErrMediaFileNotFound) {
			response.NotFound(c, "media file not found")
			return
		}
		h.logger.Error("list jobs failed", zap.Error(err), zap.String("media_file_id", id.String()))
		response.Internal(c, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []models.ProcessingJob{}
	}
	response.OK(c, jobs)
}

func caller(c *gin.Context) (uuid.UUID, bool) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.Get(middleware.ContextUserRole)
	return userID, role == auth.RoleService
}
