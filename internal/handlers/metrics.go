package handlers

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/models"
	"github.com/huangang/taskflow/internal/services"
	"gorm.io/gorm"
)

var startTime = time.Now()

// MetricsHandler exposes Prometheus-compatible text metrics.
type MetricsHandler struct {
	db *gorm.DB
}

func NewMetricsHandler(db *gorm.DB) *MetricsHandler {
	return &MetricsHandler{db: db}
}

// Metrics
// GET /metrics
func (h *MetricsHandler) Metrics(c *gin.Context) {
	var b strings.Builder

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeGauge(&b, "taskflow_uptime_seconds", "Time since server start in seconds", time.Since(startTime).Seconds())
	writeGauge(&b, "taskflow_goroutines", "Number of active goroutines", float64(runtime.NumGoroutine()))
	writeGauge(&b, "taskflow_memory_alloc_bytes", "Current heap allocation in bytes", float64(m.Alloc))
	writeGauge(&b, "taskflow_gc_runs_total", "Total number of GC runs", float64(m.NumGC))

	if sqlDB, err := h.db.DB(); err == nil {
		stats := sqlDB.Stats()
		writeGauge(&b, "taskflow_db_open_connections", "Number of open DB connections", float64(stats.OpenConnections))
		writeGauge(&b, "taskflow_db_in_use_connections", "Number of in-use DB connections", float64(stats.InUse))
		writeGauge(&b, "taskflow_db_wait_count", "Connections waited for", float64(stats.WaitCount))
	}

	queueAsync := 0.0
	if queue := services.GetTaskQueue(); queue != nil && queue.IsAsync() {
		queueAsync = 1.0
	}
	writeGauge(&b, "taskflow_queue_async_enabled", "Whether index events go through Redis (1=yes, 0=no)", queueAsync)

	ctx := c.Request.Context()
	var byStatus []struct {
		Status models.TaskStatus
		Count  int64
	}
	h.db.WithContext(ctx).Model(&models.Task{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&byStatus)
	counts := make(map[models.TaskStatus]int64, len(byStatus))
	for _, row := range byStatus {
		counts[row.Status] = row.Count
	}
	for _, status := range []models.TaskStatus{
		models.TaskStatusTodo, models.TaskStatusInProgress, models.TaskStatusDone, models.TaskStatusArchived,
	} {
		name := "taskflow_tasks_" + strings.ToLower(string(status))
		writeGauge(&b, name, "Number of tasks with status "+string(status), float64(counts[status]))
	}

	var projectCount, userCount, activities24h int64
	h.db.WithContext(ctx).Model(&models.Project{}).Where("is_archived = ?", false).Count(&projectCount)
	h.db.WithContext(ctx).Model(&models.User{}).Where("is_active = ?", true).Count(&userCount)
	h.db.WithContext(ctx).Model(&models.Activity{}).Where("created_at >= ?", time.Now().Add(-24*time.Hour)).Count(&activities24h)

	writeGauge(&b, "taskflow_projects_active", "Number of projects that are not archived", float64(projectCount))
	writeGauge(&b, "taskflow_users_active", "Number of active users", float64(userCount))
	writeGauge(&b, "taskflow_activities_24h", "Activities recorded in the last 24 hours", float64(activities24h))

	c.Data(200, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
}

func writeGauge(b *strings.Builder, name, help string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(b, "%s %g\n\n", name, value)
}
