package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/middleware"
	"github.com/huangang/taskflow/internal/services"
	"github.com/huangang/taskflow/pkg/response"
)

type ActivityHandler struct {
	recorder *services.ActivityRecorder
	members  *services.MembershipService
}

func NewActivityHandler(recorder *services.ActivityRecorder, members *services.MembershipService) *ActivityHandler {
	return &ActivityHandler{recorder: recorder, members: members}
}

// ForTask returns a task's history, oldest first
// GET /api/tasks/:id/activities
func (h *ActivityHandler) ForTask(c *gin.Context) {
	activities, err := h.recorder.ActivityForTask(c.Request.Context(), h.members, middleware.GetActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, activities)
}

// ForProject returns a project's activity feed, newest first
// GET /api/projects/:id/activities
func (h *ActivityHandler) ForProject(c *gin.Context) {
	var req services.ActivityListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	projectID := c.Param("id")
	if err := h.members.Authorize(ctx, middleware.GetActor(c), projectID, services.PermView); err != nil {
		respondError(c, err)
		return
	}

	resp, err := h.recorder.ListByProject(ctx, projectID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// Stats counts a project's activities by action over the last N days
// GET /api/projects/:id/activities/stats?days=7
func (h *ActivityHandler) Stats(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 || days > 365 {
		response.BadRequest(c, "days must be between 1 and 365")
		return
	}

	ctx := c.Request.Context()
	projectID := c.Param("id")
	if err := h.members.Authorize(ctx, middleware.GetActor(c), projectID, services.PermView); err != nil {
		respondError(c, err)
		return
	}

	stats, err := h.recorder.Stats(ctx, projectID, days)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"days": days, "actions": stats})
}

// Mine returns the caller's recent activities across projects
// GET /api/me/activities
func (h *ActivityHandler) Mine(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	activities, err := h.recorder.ListByUser(c.Request.Context(), middleware.GetUserID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, activities)
}
