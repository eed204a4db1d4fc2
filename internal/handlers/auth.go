package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/services"
	"github.com/huangang/taskflow/internal/utils"
	"github.com/huangang/taskflow/pkg/response"
)

// AuthHandler issues bearer tokens. Sign-in flows live outside this service;
// an admin mints tokens for the accounts it manages.
type AuthHandler struct {
	userService *services.UserService
	expireHours int
}

func NewAuthHandler(userService *services.UserService, expireHours int) *AuthHandler {
	if expireHours <= 0 {
		expireHours = 24
	}
	return &AuthHandler{userService: userService, expireHours: expireHours}
}

type TokenResponse struct {
	Token    string    `json:"token"`
	ExpireAt time.Time `json:"expire_at"`
}

// IssueToken mints a token for an active user
// POST /api/users/:id/token
func (h *AuthHandler) IssueToken(c *gin.Context) {
	user, err := h.userService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !user.IsActive {
		response.Error(c, response.NewConflict("user is deactivated"))
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Email, string(user.Role), h.expireHours)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, TokenResponse{
		Token:    token,
		ExpireAt: time.Now().Add(time.Duration(h.expireHours) * time.Hour),
	})
}
