package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/config"
	"github.com/huangang/taskflow/internal/middleware"
	"github.com/huangang/taskflow/internal/models"
	"github.com/huangang/taskflow/internal/services"
	"github.com/huangang/taskflow/internal/utils"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("handler-test-secret")
}

type envelope struct {
	Code    int             `json:"code"`
	Reason  string          `json:"reason"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router  *gin.Engine
	db      *gorm.DB
	limiter *services.RateLimiter

	adminToken, aliceToken, bobToken string
	aliceID, bobID                   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := models.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "handlers_test.db"),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	clock := services.SystemClock
	recorder := services.NewActivityRecorder(db, clock)
	members := services.NewMembershipService(db, recorder, clock)
	users := services.NewUserService(db, clock)
	projects := services.NewProjectService(db, members, recorder, clock)
	tasks := services.NewTaskService(db, clock, members, recorder, nil, config.BoardConfig{PositionStep: 1000, MaxHierarchyDepth: 10})
	limiter := services.NewRateLimiter(services.NewGormWindowStore(db), clock, config.RateLimitConfig{
		Enabled: true, Window: time.Minute, MaxRequests: 100,
	})

	srv := &testServer{db: db, limiter: limiter}
	ctx := context.Background()
	admin, _, err := users.EnsureAdmin(ctx, "admin@example.com", "Admin")
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	adminActor := services.Actor{UserID: admin.ID, Role: admin.Role}
	srv.adminToken = mustToken(t, admin)

	for _, u := range []struct {
		email string
		id    *string
		tok   *string
	}{
		{"alice@example.com", &srv.aliceID, &srv.aliceToken},
		{"bob@example.com", &srv.bobID, &srv.bobToken},
	} {
		user, err := users.Create(ctx, adminActor, &services.CreateUserRequest{Email: u.email, DisplayName: u.email, Role: models.UserRoleUser})
		if err != nil {
			t.Fatalf("create %s: %v", u.email, err)
		}
		*u.id = user.ID
		*u.tok = mustToken(t, user)
	}

	taskHandler := NewTaskHandler(tasks)
	projectHandler := NewProjectHandler(projects)
	memberHandler := NewProjectMemberHandler(members)
	labelHandler := NewLabelHandler(services.NewLabelService(db, members, recorder, clock))
	watcherHandler := NewWatcherHandler(services.NewWatcherService(db, members, clock))
	attachmentHandler := NewAttachmentHandler(services.NewAttachmentService(db, members, recorder, clock))
	activityHandler := NewActivityHandler(recorder, members)
	userHandler := NewUserHandler(users)
	authHandler := NewAuthHandler(users, 1)

	r := gin.New()
	r.GET("/health", NewHealthHandler(db).CheckHealth)
	r.GET("/metrics", NewMetricsHandler(db).Metrics)

	api := r.Group("/api", middleware.AuthRequired(users))
	api.GET("/me", userHandler.Me)
	api.GET("/me/tasks", taskHandler.AssignedToMe)
	api.GET("/me/watching", watcherHandler.Watching)
	api.GET("/me/activities", activityHandler.Mine)
	api.GET("/rate-limit", NewRateLimitHandler(limiter).Status)
	api.GET("/projects", projectHandler.List)
	api.POST("/projects", projectHandler.Create)
	api.GET("/projects/:id", projectHandler.GetByID)
	api.PUT("/projects/:id", projectHandler.Update)
	api.DELETE("/projects/:id", projectHandler.Delete)
	api.POST("/projects/:id/archive", projectHandler.Archive)
	api.POST("/projects/:id/unarchive", projectHandler.Unarchive)
	api.GET("/projects/:id/members", memberHandler.List)
	api.POST("/projects/:id/members", memberHandler.Add)
	api.DELETE("/projects/:id/members/:user_id", memberHandler.Remove)
	api.GET("/projects/:id/board", taskHandler.Board)
	api.GET("/projects/:id/tasks", taskHandler.List)
	api.POST("/projects/:id/tasks", taskHandler.Create)
	api.GET("/projects/:id/archived-tasks", taskHandler.ListArchived)
	api.GET("/projects/:id/timeline", taskHandler.Timeline)
	api.GET("/projects/:id/calendar", taskHandler.Calendar)
	api.GET("/dashboard", NewDashboardHandler(services.NewDashboardService(db)).Summary)
	api.GET("/browse/:key", taskHandler.GetByKey)
	api.GET("/tasks/:id", taskHandler.GetByID)
	api.PUT("/tasks/:id", taskHandler.Update)
	api.DELETE("/tasks/:id", taskHandler.Delete)
	api.POST("/tasks/:id/move", taskHandler.Move)
	api.PUT("/tasks/:id/parent", taskHandler.SetParent)
	api.GET("/tasks/:id/subtasks", taskHandler.Subtasks)
	api.GET("/projects/:id/labels", labelHandler.List)
	api.POST("/projects/:id/labels", labelHandler.Create)
	api.DELETE("/labels/:id", labelHandler.Delete)
	api.GET("/tasks/:id/labels", labelHandler.TaskLabels)
	api.PUT("/tasks/:id/labels/:label_id", labelHandler.AddToTask)
	api.DELETE("/tasks/:id/labels/:label_id", labelHandler.RemoveFromTask)
	api.GET("/tasks/:id/watchers", watcherHandler.List)
	api.POST("/tasks/:id/watchers", watcherHandler.Watch)
	api.DELETE("/tasks/:id/watchers/:user_id", watcherHandler.Unwatch)
	api.GET("/tasks/:id/attachments", attachmentHandler.List)
	api.POST("/tasks/:id/attachments", attachmentHandler.Add)
	api.DELETE("/attachments/:id", attachmentHandler.Delete)
	api.GET("/tasks/:id/activities", activityHandler.ForTask)
	api.GET("/projects/:id/activities", activityHandler.ForProject)
	api.GET("/projects/:id/activities/stats", activityHandler.Stats)
	api.GET("/users/:id", userHandler.GetByID)
	api.PUT("/users/:id", userHandler.Update)

	adminOnly := api.Group("", middleware.AdminRequired())
	adminOnly.GET("/users", userHandler.List)
	adminOnly.POST("/users", userHandler.Create)
	adminOnly.DELETE("/users/:id", userHandler.Delete)
	adminOnly.POST("/users/:id/token", authHandler.IssueToken)

	srv.router = r
	return srv
}

func mustToken(t *testing.T, user *models.User) string {
	t.Helper()
	tok, err := utils.GenerateToken(user.ID, user.Email, string(user.Role), 1)
	if err != nil {
		t.Fatalf("token for %s: %v", user.Email, err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// call performs a request, checks the status and decodes data into out.
func (s *testServer) call(t *testing.T, method, path, token string, body interface{}, wantStatus int, out interface{}) envelope {
	t.Helper()
	w := s.do(t, method, path, token, body)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode response: %v (body %s)", method, path, err, w.Body.String())
	}
	if w.Code != wantStatus {
		t.Fatalf("%s %s: status %d, expected %d (body %s)", method, path, w.Code, wantStatus, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("%s %s: decode data: %v", method, path, err)
		}
	}
	return env
}

// createProject creates a project owned by alice; bob is not a member.
func (s *testServer) createProject(t *testing.T, key string) models.Project {
	t.Helper()
	var project models.Project
	s.call(t, http.MethodPost, "/api/projects", s.aliceToken,
		gin.H{"name": key + " project", "key": key}, http.StatusCreated, &project)
	return project
}

func (s *testServer) addBob(t *testing.T, projectID string, role models.MemberRole) {
	t.Helper()
	s.call(t, http.MethodPost, "/api/projects/"+projectID+"/members", s.aliceToken,
		gin.H{"user_id": s.bobID, "role": role}, http.StatusCreated, nil)
}

func (s *testServer) createTask(t *testing.T, projectID, title string) models.Task {
	t.Helper()
	var task models.Task
	s.call(t, http.MethodPost, "/api/projects/"+projectID+"/tasks", s.aliceToken,
		gin.H{"title": title}, http.StatusCreated, &task)
	return task
}
