package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/middleware"
	"github.com/huangang/taskflow/internal/services"
	"github.com/huangang/taskflow/pkg/response"
)

// ProjectMemberHandler provides endpoints for project membership.
type ProjectMemberHandler struct {
	memberService *services.MembershipService
}

func NewProjectMemberHandler(memberService *services.MembershipService) *ProjectMemberHandler {
	return &ProjectMemberHandler{memberService: memberService}
}

// List returns all members of a project.
// GET /api/projects/:id/members
func (h *ProjectMemberHandler) List(c *gin.Context) {
	members, err := h.memberService.ListMembers(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, members)
}

// Add adds a user to a project with the specified role.
// POST /api/projects/:id/members
func (h *ProjectMemberHandler) Add(c *gin.Context) {
	var req services.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	member, err := h.memberService.AddMember(c.Request.Context(), middleware.GetActor(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, member)
}

// Remove removes a user from a project.
// DELETE /api/projects/:id/members/:user_id
func (h *ProjectMemberHandler) Remove(c *gin.Context) {
	err := h.memberService.RemoveMember(c.Request.Context(), middleware.GetActor(c), c.Param("id"), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "member removed"})
}
