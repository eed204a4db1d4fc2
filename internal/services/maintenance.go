package services

import (
	"context"
	"time"

	"github.com/huangang/taskflow/internal/models"
	"github.com/huangang/taskflow/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	// windows idle for this many window lengths are swept
	staleWindowFactor = 10
	sweepSchedule     = "*/10 * * * *"
)

// MaintenanceService periodically drops stale rate-limit windows and
// expired sessions.
type MaintenanceService struct {
	db            *gorm.DB
	windows       *GormWindowStore
	clock         Clock
	window        time.Duration
	cronScheduler *cron.Cron
}

// NewMaintenanceService sweeps windows only when windows is non-nil; the
// Redis store expires its keys by itself.
func NewMaintenanceService(db *gorm.DB, windows *GormWindowStore, clock Clock, window time.Duration) *MaintenanceService {
	return &MaintenanceService{db: db, windows: windows, clock: clock, window: window}
}

func (s *MaintenanceService) Start() error {
	s.cronScheduler = cron.New()
	if _, err := s.cronScheduler.AddFunc(sweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return err
	}
	s.cronScheduler.Start()
	logger.Infof("[Maintenance] Scheduler started (cron: %s)", sweepSchedule)
	return nil
}

func (s *MaintenanceService) Stop() {
	if s.cronScheduler != nil {
		<-s.cronScheduler.Stop().Done()
	}
}

// SweepResult counts what one sweep removed.
type SweepResult struct {
	Windows  int64
	Sessions int64
}

func (s *MaintenanceService) Sweep(ctx context.Context) SweepResult {
	var result SweepResult
	now := s.clock.Now()

	if s.windows != nil {
		n, err := s.windows.Sweep(ctx, now.Add(-staleWindowFactor*s.window))
		if err != nil {
			logger.Warn().Err(err).Msg("[Maintenance] rate limit sweep failed")
		}
		result.Windows = n
	}

	res := s.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.UserSession{})
	if res.Error != nil {
		logger.Warn().Err(res.Error).Msg("[Maintenance] session sweep failed")
	}
	result.Sessions = res.RowsAffected

	if result.Windows > 0 || result.Sessions > 0 {
		logger.Info().Int64("windows", result.Windows).Int64("sessions", result.Sessions).Msg("[Maintenance] sweep done")
	}
	return result
}
