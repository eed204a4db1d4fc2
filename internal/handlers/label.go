package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/middleware"
	"github.com/huangang/taskflow/internal/services"
	"github.com/huangang/taskflow/pkg/response"
)

type LabelHandler struct {
	labelService *services.LabelService
}

func NewLabelHandler(labelService *services.LabelService) *LabelHandler {
	return &LabelHandler{labelService: labelService}
}

// List returns a project's labels
// GET /api/projects/:id/labels
func (h *LabelHandler) List(c *gin.Context) {
	labels, err := h.labelService.List(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, labels)
}

// Create
// POST /api/projects/:id/labels
func (h *LabelHandler) Create(c *gin.Context) {
	var req services.CreateLabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	label, err := h.labelService.Create(c.Request.Context(), middleware.GetActor(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, label)
}

// Delete removes a label from the project and from every task carrying it
// DELETE /api/labels/:id
func (h *LabelHandler) Delete(c *gin.Context) {
	if err := h.labelService.Delete(c.Request.Context(), middleware.GetActor(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "label deleted"})
}

// TaskLabels
// GET /api/tasks/:id/labels
func (h *LabelHandler) TaskLabels(c *gin.Context) {
	labels, err := h.labelService.TaskLabels(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, labels)
}

// AddToTask
// PUT /api/tasks/:id/labels/:label_id
func (h *LabelHandler) AddToTask(c *gin.Context) {
	if err := h.labelService.AddToTask(c.Request.Context(), middleware.GetActor(c), c.Param("id"), c.Param("label_id")); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "label added"})
}

// RemoveFromTask
// DELETE /api/tasks/:id/labels/:label_id
func (h *LabelHandler) RemoveFromTask(c *gin.Context) {
	if err := h.labelService.RemoveFromTask(c.Request.Context(), middleware.GetActor(c), c.Param("id"), c.Param("label_id")); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "label removed"})
}
