package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/services"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the database and the index queue.
type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	code := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if queue := services.GetTaskQueue(); queue != nil && queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	c.JSON(code, gin.H{
		"status":  overall,
		"service": "taskflow",
		"components": gin.H{
			"database":   dbStatus,
			"queue_mode": queueMode,
		},
	})
}
