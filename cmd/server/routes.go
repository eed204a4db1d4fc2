package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/middleware"
	"github.com/huangang/taskflow/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.Server.CORSOrigins))

	// Per-IP burst guard for unauthenticated routes
	public := r.Group("", svc.throttle.Middleware())
	{
		public.GET("/health", svc.healthHandler.CheckHealth)
		public.GET("/metrics", svc.metricsHandler.Metrics)
	}

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(svc.users))
	if svc.cfg.RateLimit.Enabled {
		api.Use(middleware.WindowLimit(svc.limiter))
	}
	api.Use(middleware.AuditLog())
	{
		api.GET("/me", svc.userHandler.Me)
		api.GET("/me/tasks", svc.taskHandler.AssignedToMe)
		api.GET("/me/watching", svc.watcherHandler.Watching)
		api.GET("/me/activities", svc.activityHandler.Mine)
		api.GET("/rate-limit", svc.rateLimitHandler.Status)
		api.GET("/dashboard", svc.dashboardHandler.Summary)

		// Projects
		api.GET("/projects", svc.projectHandler.List)
		api.POST("/projects", svc.projectHandler.Create)
		api.GET("/projects/:id", svc.projectHandler.GetByID)
		api.PUT("/projects/:id", svc.projectHandler.Update)
		api.DELETE("/projects/:id", svc.projectHandler.Delete)
		api.POST("/projects/:id/archive", svc.projectHandler.Archive)
		api.POST("/projects/:id/unarchive", svc.projectHandler.Unarchive)

		// Members
		api.GET("/projects/:id/members", svc.memberHandler.List)
		api.POST("/projects/:id/members", svc.memberHandler.Add)
		api.DELETE("/projects/:id/members/:user_id", svc.memberHandler.Remove)

		// Board and tasks
		api.GET("/projects/:id/board", svc.taskHandler.Board)
		api.GET("/projects/:id/tasks", svc.taskHandler.List)
		api.POST("/projects/:id/tasks", svc.taskHandler.Create)
		api.GET("/projects/:id/archived-tasks", svc.taskHandler.ListArchived)
		api.GET("/projects/:id/timeline", svc.taskHandler.Timeline)
		api.GET("/projects/:id/calendar", svc.taskHandler.Calendar)
		api.GET("/browse/:key", svc.taskHandler.GetByKey)
		api.GET("/tasks/:id", svc.taskHandler.GetByID)
		api.PUT("/tasks/:id", svc.taskHandler.Update)
		api.DELETE("/tasks/:id", svc.taskHandler.Delete)
		api.POST("/tasks/:id/move", svc.taskHandler.Move)
		api.PUT("/tasks/:id/parent", svc.taskHandler.SetParent)
		api.GET("/tasks/:id/subtasks", svc.taskHandler.Subtasks)

		// Labels
		api.GET("/projects/:id/labels", svc.labelHandler.List)
		api.POST("/projects/:id/labels", svc.labelHandler.Create)
		api.DELETE("/labels/:id", svc.labelHandler.Delete)
		api.GET("/tasks/:id/labels", svc.labelHandler.TaskLabels)
		api.PUT("/tasks/:id/labels/:label_id", svc.labelHandler.AddToTask)
		api.DELETE("/tasks/:id/labels/:label_id", svc.labelHandler.RemoveFromTask)

		// Watchers
		api.GET("/tasks/:id/watchers", svc.watcherHandler.List)
		api.POST("/tasks/:id/watchers", svc.watcherHandler.Watch)
		api.DELETE("/tasks/:id/watchers/:user_id", svc.watcherHandler.Unwatch)

		// Attachments
		api.GET("/tasks/:id/attachments", svc.attachmentHandler.List)
		api.POST("/tasks/:id/attachments", svc.attachmentHandler.Add)
		api.DELETE("/attachments/:id", svc.attachmentHandler.Delete)

		// Activity
		api.GET("/tasks/:id/activities", svc.activityHandler.ForTask)
		api.GET("/projects/:id/activities", svc.activityHandler.ForProject)
		api.GET("/projects/:id/activities/stats", svc.activityHandler.Stats)

		// Users
		api.GET("/users/:id", svc.userHandler.GetByID)
		api.PUT("/users/:id", svc.userHandler.Update)
	}

	// Admin only routes
	admin := api.Group("")
	admin.Use(middleware.AdminRequired())
	{
		admin.GET("/users", svc.userHandler.List)
		admin.POST("/users", svc.userHandler.Create)
		admin.DELETE("/users/:id", svc.userHandler.Delete)
		admin.POST("/users/:id/token", svc.authHandler.IssueToken)
	}
}
