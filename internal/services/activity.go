package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/huangang/taskflow/internal/models"
	"gorm.io/gorm"
)

// ActivityEntry describes one tracked mutation.
type ActivityEntry struct {
	ProjectID string
	TaskID    *string
	TaskKey   string
	UserID    string
	Action    models.ActionType
	OldValue  *string
	NewValue  *string
	Metadata  map[string]interface{}
}

// ActivityRecorder appends audit records. Records are written with the
// transaction of the mutation they describe, so a committed change always has
// its activity and a rolled back one never does.
type ActivityRecorder struct {
	db    *gorm.DB
	clock Clock
}

func NewActivityRecorder(db *gorm.DB, clock Clock) *ActivityRecorder {
	return &ActivityRecorder{db: db, clock: clock}
}

// Record appends an activity in its own transaction.
func (r *ActivityRecorder) Record(ctx context.Context, entry ActivityEntry) (*models.Activity, error) {
	var activity *models.Activity
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		activity, err = r.RecordTx(tx, entry)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	return activity, nil
}

// RecordTx appends an activity inside tx. Unknown project or user fails with
// ErrNotFound.
func (r *ActivityRecorder) RecordTx(tx *gorm.DB, entry ActivityEntry) (*models.Activity, error) {
	if err := exists(tx, &models.Project{}, entry.ProjectID); err != nil {
		return nil, err
	}
	if err := exists(tx, &models.User{}, entry.UserID); err != nil {
		return nil, err
	}

	var metadata string
	if len(entry.Metadata) > 0 {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return nil, invalidInput("activity metadata: %v", err)
		}
		metadata = string(b)
	}

	activity := &models.Activity{
		ProjectID: entry.ProjectID,
		TaskID:    entry.TaskID,
		TaskKey:   entry.TaskKey,
		UserID:    entry.UserID,
		Action:    entry.Action,
		OldValue:  truncate(entry.OldValue, 255),
		NewValue:  truncate(entry.NewValue, 255),
		Metadata:  metadata,
		CreatedAt: r.clock.Now(),
	}
	if err := tx.Create(activity).Error; err != nil {
		return nil, classify(err)
	}
	return activity, nil
}

func exists(tx *gorm.DB, model interface{}, id string) error {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return classify(err)
	}
	if count == 0 {
		name := "record"
		switch model.(type) {
		case *models.Project:
			name = "project"
		case *models.User:
			name = "user"
		case *models.Task:
			name = "task"
		}
		return notFound("%s %s", name, id)
	}
	return nil
}

// truncate shortens s to at most max bytes without splitting a character.
func truncate(s *string, max int) *string {
	if s == nil || len(*s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart((*s)[max]) {
		max--
	}
	cut := (*s)[:max]
	return &cut
}

// ListByTask returns a task's history in creation order.
func (r *ActivityRecorder) ListByTask(ctx context.Context, taskID string) ([]models.Activity, error) {
	var activities []models.Activity
	if err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC, id ASC").
		Find(&activities).Error; err != nil {
		return nil, classify(err)
	}
	return activities, nil
}

type ActivityListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Action   string `form:"action"`
}

type ActivityListResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Items    []models.Activity `json:"items"`
}

// ListByProject returns a project's activities, newest first.
func (r *ActivityRecorder) ListByProject(ctx context.Context, projectID string, req *ActivityListRequest) (*ActivityListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 50
	}

	var activities []models.Activity
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Activity{}).Where("project_id = ?", projectID)
	if req.Action != "" {
		query = query.Where("action = ?", req.Action)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, classify(err)
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC, id DESC").Find(&activities).Error; err != nil {
		return nil, classify(err)
	}

	return &ActivityListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    activities,
	}, nil
}

// ListByUser returns the latest activities performed by a user.
func (r *ActivityRecorder) ListByUser(ctx context.Context, userID string, limit int) ([]models.Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var activities []models.Activity
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&activities).Error; err != nil {
		return nil, classify(err)
	}
	return activities, nil
}

// Stats counts a project's activities per action over the last days.
func (r *ActivityRecorder) Stats(ctx context.Context, projectID string, days int) (map[models.ActionType]int64, error) {
	if days <= 0 {
		days = 7
	}
	since := r.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)

	var rows []struct {
		Action models.ActionType
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&models.Activity{}).
		Select("action, COUNT(*) AS count").
		Where("project_id = ? AND created_at >= ?", projectID, since).
		Group("action").
		Scan(&rows).Error; err != nil {
		return nil, classify(err)
	}

	stats := make(map[models.ActionType]int64, len(rows))
	for _, row := range rows {
		stats[row.Action] = row.Count
	}
	return stats, nil
}

// ActivityForTask loads a task and checks it is visible to actor before
// returning its history.
func (r *ActivityRecorder) ActivityForTask(ctx context.Context, members Membership, actor Actor, taskID string) ([]models.Activity, error) {
	var task models.Task
	err := r.db.WithContext(ctx).Select("id", "project_id").Where("id = ?", taskID).Take(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("task %s", taskID)
	}
	if err != nil {
		return nil, classify(err)
	}
	if err := members.Authorize(ctx, actor, task.ProjectID, PermView); err != nil {
		return nil, err
	}
	return r.ListByTask(ctx, taskID)
}
