package probe

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler serves POST /test-ffmpeg.
type Handler struct {
	prober *Prober
}

// NewHandler creates a probe handler.
func NewHandler(prober *Prober) *Handler {
	return &Handler{prober: prober}
}

// TestFFmpeg handles POST /test-ffmpeg. The body is ignored and the report
// is always returned with 200.
func (h *Handler) TestFFmpeg(c *gin.Context) {
	c.JSON(http.StatusOK, h.prober.Run(c.Request.Context()))
}
