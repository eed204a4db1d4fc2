package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/models"
	"github.com/huangang/taskflow/internal/services"
	"github.com/huangang/taskflow/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-middleware-testing")
}

type fakeAccounts map[string]*models.User

func (f fakeAccounts) GetByID(_ context.Context, id string) (*models.User, error) {
	if id == "broken" {
		return nil, errors.New("database is locked")
	}
	user, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", services.ErrNotFound, id)
	}
	return user, nil
}

func authRouter(accounts AccountLookup) *gin.Engine {
	router := gin.New()
	router.Use(AuthRequired(accounts))
	router.GET("/api/me", func(c *gin.Context) {
		actor := GetActor(c)
		c.JSON(http.StatusOK, gin.H{"user_id": actor.UserID, "role": actor.Role, "email": GetEmail(c)})
	})
	return router
}

func withHeader(router *gin.Engine, header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	router.ServeHTTP(w, req)
	return w
}

func mustToken(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := utils.GenerateToken(userID, userID+"@example.com", role, 1)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func TestAuthRequired_RejectsBadHeaders(t *testing.T) {
	router := authRouter(nil)
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"no scheme", "InvalidToken"},
		{"basic", "Basic token123"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer invalid.jwt.token"},
		{"unknown role", "Bearer " + mustToken(t, "u-1", "root")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := withHeader(router, tt.header); w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
		})
	}
}

func TestAuthRequired_TokenOnly(t *testing.T) {
	w := withHeader(authRouter(nil), "bearer "+mustToken(t, "u-1", "ADMIN"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`"user_id":"u-1"`, `"role":"ADMIN"`, `"email":"u-1@example.com"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body %s missing %s", body, want)
		}
	}
}

func TestAuthRequired_ChecksAccount(t *testing.T) {
	accounts := fakeAccounts{
		"alice": {ID: "alice", Role: models.UserRoleViewer, IsActive: true},
		"bob":   {ID: "bob", Role: models.UserRoleUser, IsActive: false},
	}
	router := authRouter(accounts)

	// the account's current role wins over the one in the token
	w := withHeader(router, "Bearer "+mustToken(t, "alice", "ADMIN"))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"role":"VIEWER"`) {
		t.Errorf("alice: %d %s", w.Code, w.Body.String())
	}

	tests := []struct {
		user string
		want int
	}{
		{"bob", http.StatusUnauthorized},
		{"carol", http.StatusUnauthorized},
		{"broken", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		if w := withHeader(router, "Bearer "+mustToken(t, tt.user, "USER")); w.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.user, tt.want, w.Code)
		}
	}
}

func TestAdminRequired(t *testing.T) {
	tests := []struct {
		role     string
		expected int
	}{
		{string(models.UserRoleAdmin), http.StatusOK},
		{string(models.UserRoleUser), http.StatusForbidden},
		{"", http.StatusForbidden},
	}

	for _, tt := range tests {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			if tt.role != "" {
				c.Set(ContextRole, tt.role)
			}
			c.Next()
		})
		router.Use(AdminRequired())
		router.GET("/api/users", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/users", nil)
		router.ServeHTTP(w, req)

		if w.Code != tt.expected {
			t.Errorf("role %q: expected status %d, got %d", tt.role, tt.expected, w.Code)
		}
	}
}

func TestGetActor_Empty(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	actor := GetActor(c)
	if actor.UserID != "" || actor.Role != "" {
		t.Errorf("expected empty actor, got %+v", actor)
	}
}
