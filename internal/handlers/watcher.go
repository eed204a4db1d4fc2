package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/middleware"
	"github.com/huangang/taskflow/internal/services"
	"github.com/huangang/taskflow/pkg/response"
)

type WatcherHandler struct {
	watcherService *services.WatcherService
}

func NewWatcherHandler(watcherService *services.WatcherService) *WatcherHandler {
	return &WatcherHandler{watcherService: watcherService}
}

type watchRequest struct {
	UserID string `json:"user_id"` // defaults to the caller
}

// List returns the users watching a task
// GET /api/tasks/:id/watchers
func (h *WatcherHandler) List(c *gin.Context) {
	users, err := h.watcherService.Watchers(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, users)
}

// Watch
// POST /api/tasks/:id/watchers
func (h *WatcherHandler) Watch(c *gin.Context) {
	var req watchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	userID := req.UserID
	if userID == "" {
		userID = middleware.GetUserID(c)
	}

	if err := h.watcherService.Watch(c.Request.Context(), middleware.GetActor(c), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "watching"})
}

// Unwatch
// DELETE /api/tasks/:id/watchers/:user_id
func (h *WatcherHandler) Unwatch(c *gin.Context) {
	if err := h.watcherService.Unwatch(c.Request.Context(), middleware.GetActor(c), c.Param("id"), c.Param("user_id")); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "unwatched"})
}

// Watching returns the tasks the caller watches
// GET /api/me/watching
func (h *WatcherHandler) Watching(c *gin.Context) {
	tasks, err := h.watcherService.Watching(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, tasks)
}
