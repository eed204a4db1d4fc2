package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/middleware"
	"github.com/huangang/taskflow/internal/services"
	"github.com/huangang/taskflow/pkg/response"
)

// AttachmentHandler manages attachment metadata; file bytes live elsewhere.
type AttachmentHandler struct {
	attachmentService *services.AttachmentService
}

func NewAttachmentHandler(attachmentService *services.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachmentService: attachmentService}
}

// List
// GET /api/tasks/:id/attachments
func (h *AttachmentHandler) List(c *gin.Context) {
	attachments, err := h.attachmentService.List(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, attachments)
}

// Add
// POST /api/tasks/:id/attachments
func (h *AttachmentHandler) Add(c *gin.Context) {
	var req services.CreateAttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	attachment, err := h.attachmentService.Add(c.Request.Context(), middleware.GetActor(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, attachment)
}

// Delete
// DELETE /api/attachments/:id
func (h *AttachmentHandler) Delete(c *gin.Context) {
	if err := h.attachmentService.Delete(c.Request.Context(), middleware.GetActor(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "attachment deleted"})
}
