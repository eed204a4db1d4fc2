package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/models"
	"github.com/huangang/taskflow/internal/services"
	"github.com/huangang/taskflow/internal/utils"
	"github.com/huangang/taskflow/pkg/logger"
	"github.com/huangang/taskflow/pkg/response"
)

const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
	ContextRole   = "role"
)

// AccountLookup resolves the account a token was issued to.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// AuthRequired resolves the bearer token into the caller's identity. When
// accounts is set, tokens of deleted or deactivated users are refused and
// the role is taken from the account rather than the token, so role changes
// apply before the token expires.
func AuthRequired(accounts AccountLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "authorization header required")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			response.Unauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := utils.ParseToken(strings.TrimSpace(token))
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		role := models.UserRole(claims.Role)

		if accounts != nil {
			user, err := accounts.GetByID(c.Request.Context(), claims.UserID)
			switch {
			case errors.Is(err, services.ErrNotFound):
				response.Unauthorized(c, "account no longer exists")
				return
			case err != nil:
				logger.Warn().Err(err).Str("user_id", claims.UserID).Msg("account lookup failed")
				response.Error(c, response.NewUnavailable("service temporarily unavailable"))
				return
			case !user.IsActive:
				response.Unauthorized(c, "account is deactivated")
				return
			}
			role = user.Role
		}
		if !role.Valid() {
			response.Unauthorized(c, "token carries an unknown role")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, string(role))

		c.Next()
	}
}

// AdminRequired lets only ADMIN users through. It must run after
// AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != string(models.UserRoleAdmin) {
			response.Forbidden(c, "admin access required")
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func GetEmail(c *gin.Context) string {
	return c.GetString(ContextEmail)
}

func GetRole(c *gin.Context) string {
	return c.GetString(ContextRole)
}

// GetActor returns the authenticated caller as the services see it.
func GetActor(c *gin.Context) services.Actor {
	return services.Actor{UserID: GetUserID(c), Role: models.UserRole(GetRole(c))}
}
