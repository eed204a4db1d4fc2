package main

import (
	"context"
	"time"

	"github.com/huangang/taskflow/internal/config"
	"github.com/huangang/taskflow/internal/handlers"
	"github.com/huangang/taskflow/internal/middleware"
	"github.com/huangang/taskflow/internal/models"
	"github.com/huangang/taskflow/internal/services"
	"github.com/huangang/taskflow/internal/utils"
	"github.com/huangang/taskflow/pkg/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg         *config.Config
	db          *gorm.DB
	taskQueue   services.TaskQueue
	worker      *services.Worker
	maintenance *services.MaintenanceService
	redisClient *redis.Client
	limiter     *services.RateLimiter
	throttle    *middleware.IPThrottle

	users *services.UserService

	authHandler       *handlers.AuthHandler
	healthHandler     *handlers.HealthHandler
	metricsHandler    *handlers.MetricsHandler
	projectHandler    *handlers.ProjectHandler
	memberHandler     *handlers.ProjectMemberHandler
	taskHandler       *handlers.TaskHandler
	labelHandler      *handlers.LabelHandler
	watcherHandler    *handlers.WatcherHandler
	attachmentHandler *handlers.AttachmentHandler
	activityHandler   *handlers.ActivityHandler
	userHandler       *handlers.UserHandler
	rateLimitHandler  *handlers.RateLimitHandler
	dashboardHandler  *handlers.DashboardHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	db := models.GetDB()
	clock := services.SystemClock

	// Index events go through Redis when enabled, otherwise straight to the indexer
	indexer := services.LogIndexer{}
	taskQueue := services.InitTaskQueue(cfg, indexer)
	worker := services.NewWorker(&cfg.Redis, indexer)
	if worker != nil {
		if err := worker.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start index worker")
		}
	}

	app := &appServices{cfg: cfg, db: db, taskQueue: taskQueue, worker: worker}

	// Rate limit windows live in the database unless the redis backend is chosen
	var gormWindows *services.GormWindowStore
	var store services.WindowStore
	if cfg.RateLimit.Backend == "redis" {
		app.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = services.NewRedisWindowStore(app.redisClient)
		logger.Infof("[RateLimit] Using redis backend at %s", cfg.Redis.Addr)
	} else {
		gormWindows = services.NewGormWindowStore(db)
		store = gormWindows
	}
	app.limiter = services.NewRateLimiter(store, clock, cfg.RateLimit)
	app.throttle = middleware.NewIPThrottle(cfg.RateLimit.PublicRPS, cfg.RateLimit.PublicBurst)

	app.maintenance = services.NewMaintenanceService(db, gormWindows, clock, cfg.RateLimit.Window)
	if err := app.maintenance.Start(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start maintenance scheduler")
	}

	recorder := services.NewActivityRecorder(db, clock)
	members := services.NewMembershipService(db, recorder, clock)
	app.users = services.NewUserService(db, clock)
	projects := services.NewProjectService(db, members, recorder, clock)
	tasks := services.NewTaskService(db, clock, members, recorder, taskQueue, cfg.Board)

	app.authHandler = handlers.NewAuthHandler(app.users, cfg.JWT.ExpireHour)
	app.healthHandler = handlers.NewHealthHandler(db)
	app.metricsHandler = handlers.NewMetricsHandler(db)
	app.projectHandler = handlers.NewProjectHandler(projects)
	app.memberHandler = handlers.NewProjectMemberHandler(members)
	app.taskHandler = handlers.NewTaskHandler(tasks)
	app.labelHandler = handlers.NewLabelHandler(services.NewLabelService(db, members, recorder, clock))
	app.watcherHandler = handlers.NewWatcherHandler(services.NewWatcherService(db, members, clock))
	app.attachmentHandler = handlers.NewAttachmentHandler(services.NewAttachmentService(db, members, recorder, clock))
	app.activityHandler = handlers.NewActivityHandler(recorder, members)
	app.userHandler = handlers.NewUserHandler(app.users)
	app.rateLimitHandler = handlers.NewRateLimitHandler(app.limiter)
	app.dashboardHandler = handlers.NewDashboardHandler(services.NewDashboardService(db))

	return app
}

// ensureAdmin creates the bootstrap admin if needed and returns a token for it.
func (s *appServices) ensureAdmin(email string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin, created, err := s.users.EnsureAdmin(ctx, email, "Administrator")
	if err != nil {
		return "", err
	}
	if created {
		logger.Info().Str("email", admin.Email).Msg("Bootstrap admin created")
	}
	return utils.GenerateToken(admin.ID, admin.Email, string(admin.Role), s.cfg.JWT.ExpireHour)
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.maintenance.Stop()
	s.throttle.Stop()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	if s.redisClient != nil {
		s.redisClient.Close()
	}
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}
