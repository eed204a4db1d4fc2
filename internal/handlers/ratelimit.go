package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/middleware"
	"github.com/huangang/taskflow/internal/services"
	"github.com/huangang/taskflow/pkg/response"
)

type RateLimitHandler struct {
	limiter *services.RateLimiter
}

func NewRateLimitHandler(limiter *services.RateLimiter) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

// Status reports the caller's current window for an endpoint without
// counting a request.
// GET /api/rate-limit?endpoint=POST /api/tasks/:id/move
func (h *RateLimitHandler) Status(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		response.BadRequest(c, "endpoint is required")
		return
	}

	status, err := h.limiter.Status(c.Request.Context(), "user:"+middleware.GetUserID(c), endpoint)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, status)
}
