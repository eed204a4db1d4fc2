package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/models"
	"github.com/huangang/taskflow/internal/services"
)

func TestHealthHandler(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", w.Code)
	}
	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" || body.Components["queue_mode"] != "sync" {
		t.Errorf("unexpected health body: %s", w.Body.String())
	}

	sqlDB, err := srv.db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.Close()
	w = srv.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status after close = %d, expected 503", w.Code)
	}
}

func TestMetricsHandler(t *testing.T) {
	srv := newTestServer(t)
	project := srv.createProject(t, "WEB")
	srv.createTask(t, project.ID, "counted")

	w := srv.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", w.Code)
	}
	body := w.Body.String()
	for _, line := range []string{
		"taskflow_tasks_todo 1",
		"taskflow_tasks_done 0",
		"taskflow_projects_active 1",
		"# TYPE taskflow_goroutines gauge",
	} {
		if !strings.Contains(body, line) {
			t.Errorf("metrics missing %q", line)
		}
	}
}

func TestRateLimitHandler_Status(t *testing.T) {
	srv := newTestServer(t)

	srv.call(t, http.MethodGet, "/api/rate-limit", srv.aliceToken, nil, http.StatusBadRequest, nil)

	const endpoint = "POST /api/projects"
	path := "/api/rate-limit?endpoint=" + url.QueryEscape(endpoint)
	var status services.RateStatus
	srv.call(t, http.MethodGet, path, srv.aliceToken, nil, http.StatusOK, &status)
	if status.Limit != 100 || status.Remaining != 100 || status.Count != 0 {
		t.Errorf("unexpected fresh status: %+v", status)
	}

	if _, err := srv.limiter.Allow(t.Context(), "user:"+srv.aliceID, endpoint); err != nil {
		t.Fatalf("allow: %v", err)
	}
	srv.call(t, http.MethodGet, path, srv.aliceToken, nil, http.StatusOK, &status)
	if status.Count != 1 || status.Remaining != 99 {
		t.Errorf("unexpected status after one request: %+v", status)
	}
}

func TestUserHandler(t *testing.T) {
	srv := newTestServer(t)

	var me models.User
	srv.call(t, http.MethodGet, "/api/me", srv.aliceToken, nil, http.StatusOK, &me)
	if me.ID != srv.aliceID || me.Email != "alice@example.com" {
		t.Errorf("unexpected /me: %+v", me)
	}

	srv.call(t, http.MethodGet, "/api/users", srv.aliceToken, nil, http.StatusForbidden, nil)
	var list services.UserListResponse
	srv.call(t, http.MethodGet, "/api/users", srv.adminToken, nil, http.StatusOK, &list)
	if list.Total != 3 {
		t.Errorf("users total = %d, expected 3", list.Total)
	}

	srv.call(t, http.MethodPost, "/api/users", srv.adminToken,
		gin.H{"email": "ALICE@example.com", "display_name": "again"}, http.StatusConflict, nil)
	srv.call(t, http.MethodPost, "/api/users", srv.adminToken,
		gin.H{"email": "not-an-email", "display_name": "x"}, http.StatusBadRequest, nil)

	var renamed models.User
	srv.call(t, http.MethodPut, "/api/users/"+srv.aliceID, srv.aliceToken,
		gin.H{"display_name": "Alice"}, http.StatusOK, &renamed)
	if renamed.DisplayName != "Alice" {
		t.Errorf("DisplayName = %q, expected Alice", renamed.DisplayName)
	}
	srv.call(t, http.MethodPut, "/api/users/"+srv.aliceID, srv.aliceToken,
		gin.H{"role": "ADMIN"}, http.StatusForbidden, nil)
	srv.call(t, http.MethodPut, "/api/users/"+srv.bobID, srv.aliceToken,
		gin.H{"display_name": "Mallory"}, http.StatusForbidden, nil)

	srv.call(t, http.MethodDelete, "/api/users/"+srv.bobID, srv.adminToken, nil, http.StatusOK, nil)
	srv.call(t, http.MethodGet, "/api/users/"+srv.bobID, srv.aliceToken, nil, http.StatusNotFound, nil)
}

func TestAuthHandler_IssueToken(t *testing.T) {
	srv := newTestServer(t)

	srv.call(t, http.MethodPost, "/api/users/"+srv.aliceID+"/token", srv.aliceToken, nil, http.StatusForbidden, nil)

	var issued TokenResponse
	srv.call(t, http.MethodPost, "/api/users/"+srv.aliceID+"/token", srv.adminToken, nil, http.StatusOK, &issued)
	if issued.Token == "" {
		t.Fatal("empty token")
	}
	var me models.User
	srv.call(t, http.MethodGet, "/api/me", issued.Token, nil, http.StatusOK, &me)
	if me.ID != srv.aliceID {
		t.Errorf("token resolved to %s, expected %s", me.ID, srv.aliceID)
	}

	srv.call(t, http.MethodPut, "/api/users/"+srv.bobID, srv.adminToken,
		gin.H{"is_active": false}, http.StatusOK, nil)
	srv.call(t, http.MethodGet, "/api/me", srv.bobToken, nil, http.StatusUnauthorized, nil)
	srv.call(t, http.MethodPost, "/api/users/"+srv.bobID+"/token", srv.adminToken, nil, http.StatusConflict, nil)
	srv.call(t, http.MethodPost, "/api/users/missing/token", srv.adminToken, nil, http.StatusNotFound, nil)
}

func TestScheduleAndDashboardHandlers(t *testing.T) {
	srv := newTestServer(t)
	project := srv.createProject(t, "WEB")

	var task models.Task
	srv.call(t, http.MethodPost, "/api/projects/"+project.ID+"/tasks", srv.aliceToken,
		gin.H{"title": "launch", "start_date": "2026-03-02T00:00:00Z", "due_date": "2026-03-09T00:00:00Z"},
		http.StatusCreated, &task)
	srv.createTask(t, project.ID, "unscheduled")

	base := "/api/projects/" + project.ID
	var tasks []models.Task
	srv.call(t, http.MethodGet, base+"/timeline?from=2026-03-01&to=2026-03-31", srv.aliceToken, nil, http.StatusOK, &tasks)
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Errorf("unexpected timeline: %+v", tasks)
	}
	srv.call(t, http.MethodGet, base+"/timeline?from=2026-03-01", srv.aliceToken, nil, http.StatusBadRequest, nil)
	srv.call(t, http.MethodGet, base+"/timeline?from=March&to=2026-03-31", srv.aliceToken, nil, http.StatusBadRequest, nil)
	srv.call(t, http.MethodGet, base+"/timeline?from=2026-03-31&to=2026-03-01", srv.aliceToken, nil, http.StatusBadRequest, nil)
	srv.call(t, http.MethodGet, base+"/timeline?from=2026-03-01&to=2026-03-31", srv.bobToken, nil, http.StatusForbidden, nil)

	srv.call(t, http.MethodGet, base+"/calendar?year=2026&month=3", srv.aliceToken, nil, http.StatusOK, &tasks)
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Errorf("unexpected calendar: %+v", tasks)
	}
	srv.call(t, http.MethodGet, base+"/calendar?year=2026&month=4", srv.aliceToken, nil, http.StatusOK, &tasks)
	if len(tasks) != 0 {
		t.Errorf("expected empty April, got %+v", tasks)
	}
	srv.call(t, http.MethodGet, base+"/calendar?year=2026", srv.aliceToken, nil, http.StatusBadRequest, nil)
	srv.call(t, http.MethodGet, base+"/calendar?year=2026&month=0", srv.aliceToken, nil, http.StatusBadRequest, nil)

	var dashboard services.DashboardResponse
	srv.call(t, http.MethodGet, "/api/dashboard", srv.aliceToken, nil, http.StatusOK, &dashboard)
	if dashboard.Summary.TotalProjects != 1 || dashboard.Summary.TodoTasks != 2 {
		t.Errorf("unexpected dashboard summary: %+v", dashboard.Summary)
	}
	if len(dashboard.RecentActivities) == 0 || dashboard.RecentActivities[0].TaskKey != "WEB-2" {
		t.Errorf("unexpected recent activities: %+v", dashboard.RecentActivities)
	}
	srv.call(t, http.MethodGet, "/api/dashboard", srv.bobToken, nil, http.StatusOK, &dashboard)
	if dashboard.Summary.TotalProjects != 0 || len(dashboard.RecentActivities) != 0 {
		t.Errorf("outsider dashboard not empty: %+v", dashboard)
	}
}
