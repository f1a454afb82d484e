package media

import (
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/auth"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/metrics"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/middleware"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/response"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/storage"
)

// multipartSlack covers the form fields and boundaries around the file part.
const multipartSlack = 1 << 20

// UploadResponse is the body of POST /upload.
type UploadResponse struct {
	Success     bool       `json:"success"`
	Error       string     `json:"error,omitempty"`
	MediaFileID *uuid.UUID `json:"mediaFileId,omitempty"`
	FileURL     string     `json:"fileUrl,omitempty"`
}

// Handler serves the media HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a media handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func uploadFail(c *gin.Context, status int, msg string) {
	metrics.Uploads.WithLabelValues("error").Inc()
	c.JSON(status, UploadResponse{Success: false, Error: msg})
}

// Upload handles POST /upload (multipart fields file, userId, fileName).
func (h *Handler) Upload(c *gin.Context) {
	callerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.svc.MaxBytes()+multipartSlack)

	file, err := c.FormFile("file")
	if err != nil {
		h.formFileFail(c, err)
		return
	}

	userID := callerID
	if raw := c.PostForm("userId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			uploadFail(c, http.StatusBadRequest, "invalid userId")
			return
		}
		role, _ := c.Get(middleware.ContextUserRole)
		if id != callerID && role != auth.RoleService {
			uploadFail(c, http.StatusForbidden, "userId does not match the authenticated user")
			return
		}
		userID = id
	}

	fileName := c.PostForm("fileName")
	if fileName == "" {
		fileName = file.Filename
	}
	contentType := file.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = storage.ContentTypeForFilename(fileName)
	}

	if err := ValidateFileLimit(contentType, file.Size, h.svc.MaxBytes()); err != nil {
		status := http.StatusUnsupportedMediaType
		if errors.Is(err, ErrFileTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		uploadFail(c, status, err.Error())
		return
	}

	rc, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		uploadFail(c, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer rc.Close()

	f, err := h.svc.Save(c.Request.Context(), SaveInput{
		UserID:      userID,
		FileName:    fileName,
		ContentType: contentType,
		Size:        file.Size,
		Body:        rc,
	})
	if err != nil {
		h.logger.Error("upload failed", zap.Error(err), zap.String("user_id", userID.String()), zap.String("file_name", fileName))
		uploadFail(c, http.StatusInternalServerError, "upload failed")
		return
	}
	metrics.Uploads.WithLabelValues("success").Inc()
	metrics.UploadBytes.Add(float64(f.FileSizeBytes))
	c.JSON(http.StatusOK, UploadResponse{Success: true, MediaFileID: &f.ID, FileURL: f.FileURL})
}

// formFileFail maps a multipart read failure to the upload response.
func (h *Handler) formFileFail(c *gin.Context, err error) {
	var (
		tooLarge *http.MaxBytesError
		netErr   net.Error
	)
	switch {
	case errors.As(err, &tooLarge):
		uploadFail(c, http.StatusRequestEntityTooLarge, ErrFileTooLarge.Error())
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		uploadFail(c, http.StatusBadRequest, "missing file (form field: file)")
	case errors.Is(err, os.ErrDeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		h.logger.Warn("upload body timed out", zap.Error(err))
		uploadFail(c, http.StatusRequestTimeout, "upload timed out while reading the request body")
	default:
		h.logger.Warn("upload body read failed", zap.Error(err))
		uploadFail(c, http.StatusBadRequest, "failed to read upload body: "+err.Error())
	}
}

// List handles GET /media.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	list, err := h.svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("list media failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to list media")
		return
	}
	response.OK(c, list)
}

// Get handles GET /media/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	f, err := h.svc.Get(c.Request.Context(), id, c.MustGet(middleware.ContextUserID).(uuid.UUID))
	if err != nil {
		h.fail(c, err, "failed to get media file")
		return
	}
	response.OK(c, f)
}

// Delete handles DELETE /media/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id, c.MustGet(middleware.ContextUserID).(uuid.UUID)); err != nil {
		h.fail(c, err, "failed to delete media file")
		return
	}
	response.NoContent(c)
}

// DownloadURL handles GET /media/:id/download-url.
func (h *Handler) DownloadURL(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	url, expires, err := h.svc.DownloadURL(c.Request.Context(), id, c.MustGet(middleware.ContextUserID).(uuid.UUID))
	if err != nil {
		h.fail(c, err, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(expires.Seconds())})
}

// ShareQR handles GET /media/:id/share.png: a QR code of the download URL.
func (h *Handler) ShareQR(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	url, _, err := h.svc.DownloadURL(c.Request.Context(), id, c.MustGet(middleware.ContextUserID).(uuid.UUID))
	if err != nil {
		h.fail(c, err, "failed to generate share link")
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "256"))
	if size < 64 || size > 1024 {
		size = 256
	}
	png, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		h.logger.Error("encode share qr failed", zap.Error(err))
		response.Internal(c, "failed to generate share code")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid media file id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "media file not found")
		return
	}
	h.logger.Error(msg, zap.Error(err), zap.String("media_file_id", c.Param("id")))
	response.Internal(c, msg)
}
