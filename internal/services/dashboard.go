package services

import (
	"context"
	"time"

	"github.com/huangang/taskflow/internal/models"
	"gorm.io/gorm"
)

const dashboardRecentActivities = 10

type DashboardService struct {
	db *gorm.DB
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db}
}

type DashboardSummary struct {
	TotalTasks      int64 `json:"total_tasks"`
	CompletedTasks  int64 `json:"completed_tasks"`
	InProgressTasks int64 `json:"in_progress_tasks"`
	TodoTasks       int64 `json:"todo_tasks"`
	TotalProjects   int64 `json:"total_projects"`
}

type StatusCount struct {
	Status models.TaskStatus `json:"status"`
	Count  int64             `json:"count"`
}

type DashboardActivity struct {
	ID        uint64            `json:"id"`
	ProjectID string            `json:"project_id"`
	Action    models.ActionType `json:"action"`
	TaskKey   string            `json:"task_key"`
	UserName  string            `json:"user_name"`
	CreatedAt time.Time         `json:"created_at"`
}

type DashboardResponse struct {
	Summary          DashboardSummary    `json:"summary"`
	StatusOverview   []StatusCount       `json:"status_overview"`
	RecentActivities []DashboardActivity `json:"recent_activities"`
}

// Summary counts tasks per status and lists the latest activities across
// the projects actor is a member of. Admins see their own projects here too.
func (s *DashboardService) Summary(ctx context.Context, actor Actor) (*DashboardResponse, error) {
	resp := &DashboardResponse{
		StatusOverview:   []StatusCount{},
		RecentActivities: []DashboardActivity{},
	}
	db := s.db.WithContext(ctx)
	memberProjects := s.db.Model(&models.ProjectMember{}).Select("project_id").Where("user_id = ?", actor.UserID)

	if err := db.Model(&models.ProjectMember{}).
		Where("user_id = ?", actor.UserID).
		Count(&resp.Summary.TotalProjects).Error; err != nil {
		return nil, classify(err)
	}
	if resp.Summary.TotalProjects == 0 {
		return resp, nil
	}

	if err := db.Model(&models.Task{}).
		Select("status, COUNT(*) AS count").
		Where("project_id IN (?)", memberProjects).
		Group("status").
		Order("status").
		Scan(&resp.StatusOverview).Error; err != nil {
		return nil, classify(err)
	}
	for _, sc := range resp.StatusOverview {
		resp.Summary.TotalTasks += sc.Count
		switch sc.Status {
		case models.TaskStatusDone:
			resp.Summary.CompletedTasks = sc.Count
		case models.TaskStatusInProgress:
			resp.Summary.InProgressTasks = sc.Count
		case models.TaskStatusTodo:
			resp.Summary.TodoTasks = sc.Count
		}
	}

	if err := db.Model(&models.Activity{}).
		Select("activities.id, activities.project_id, activities.action, activities.task_key, users.display_name AS user_name, activities.created_at").
		Joins("JOIN users ON users.id = activities.user_id").
		Where("activities.project_id IN (?)", memberProjects).
		Order("activities.created_at DESC, activities.id DESC").
		Limit(dashboardRecentActivities).
		Scan(&resp.RecentActivities).Error; err != nil {
		return nil, classify(err)
	}
	return resp, nil
}
