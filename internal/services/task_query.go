package services

import (
	"context"
	"errors"
	"time"

	"github.com/huangang/taskflow/internal/models"
	"gorm.io/gorm"
)

// findTask loads a task by id, mapping a miss to ErrNotFound.
func findTask(db *gorm.DB, taskID string) (*models.Task, error) {
	var task models.Task
	err := db.Where("id = ?", taskID).Take(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("task %s", taskID)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &task, nil
}

func (s *TaskService) load(ctx context.Context, taskID string) (*models.Task, error) {
	return findTask(s.db.WithContext(ctx), taskID)
}

// GetByID returns a task visible to actor.
func (s *TaskService) GetByID(ctx context.Context, actor Actor, taskID string) (*models.Task, error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.members.Authorize(ctx, actor, task.ProjectID, PermView); err != nil {
		return nil, err
	}
	return task, nil
}

// GetByKey looks a task up by its key, e.g. PROJ-12.
func (s *TaskService) GetByKey(ctx context.Context, actor Actor, key string) (*models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).Where("task_key = ?", key).Take(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("task %s", key)
	}
	if err != nil {
		return nil, classify(err)
	}
	if err := s.members.Authorize(ctx, actor, task.ProjectID, PermView); err != nil {
		return nil, err
	}
	return &task, nil
}

type TaskListRequest struct {
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status     string `form:"status"`
	Type       string `form:"type"`
	AssigneeID string `form:"assignee_id"`
	Name       string `form:"name"`
}

type TaskListResponse struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Items    []models.Task `json:"items"`
}

// List returns a project's tasks, newest first.
func (s *TaskService) List(ctx context.Context, actor Actor, projectID string, req *TaskListRequest) (*TaskListResponse, error) {
	if err := s.members.Authorize(ctx, actor, projectID, PermView); err != nil {
		return nil, err
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Task{}).Where("project_id = ?", projectID)
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.Type != "" {
		query = query.Where("task_type = ?", req.Type)
	}
	if req.AssigneeID != "" {
		query = query.Where("assignee_id = ?", req.AssigneeID)
	}
	if req.Name != "" {
		query = query.Where("title LIKE ?", "%"+req.Name+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, classify(err)
	}

	var tasks []models.Task
	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("task_number DESC").Find(&tasks).Error; err != nil {
		return nil, classify(err)
	}

	return &TaskListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    tasks,
	}, nil
}

type BoardColumn struct {
	Status models.TaskStatus `json:"status"`
	Tasks  []models.Task     `json:"tasks"`
}

type Board struct {
	ProjectID string        `json:"project_id"`
	Columns   []BoardColumn `json:"columns"`
}

// Board returns the TODO, IN_PROGRESS and DONE columns in position order.
func (s *TaskService) Board(ctx context.Context, actor Actor, projectID string) (*Board, error) {
	if err := s.members.Authorize(ctx, actor, projectID, PermView); err != nil {
		return nil, err
	}

	var tasks []models.Task
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND status IN ?", projectID, models.BoardStatuses).
		Order("position ASC").
		Find(&tasks).Error; err != nil {
		return nil, classify(err)
	}

	board := &Board{ProjectID: projectID}
	index := make(map[models.TaskStatus]int, len(models.BoardStatuses))
	for i, status := range models.BoardStatuses {
		board.Columns = append(board.Columns, BoardColumn{Status: status, Tasks: []models.Task{}})
		index[status] = i
	}
	for _, task := range tasks {
		col := &board.Columns[index[task.Status]]
		col.Tasks = append(col.Tasks, task)
	}
	return board, nil
}

// Subtasks returns the direct children of a task.
func (s *TaskService) Subtasks(ctx context.Context, actor Actor, taskID string) ([]models.Task, error) {
	parent, err := s.GetByID(ctx, actor, taskID)
	if err != nil {
		return nil, err
	}
	var children []models.Task
	if err := s.db.WithContext(ctx).
		Where("parent_task_id = ?", parent.ID).
		Order("task_number ASC").
		Find(&children).Error; err != nil {
		return nil, classify(err)
	}
	return children, nil
}

// AssignedTo returns open tasks assigned to a user across all projects,
// soonest due first.
func (s *TaskService) AssignedTo(ctx context.Context, userID string, limit int) ([]models.Task, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var tasks []models.Task
	if err := s.db.WithContext(ctx).
		Where("assignee_id = ? AND status IN ?", userID, []models.TaskStatus{models.TaskStatusTodo, models.TaskStatusInProgress}).
		Order("CASE WHEN due_date IS NULL THEN 1 ELSE 0 END, due_date ASC, updated_at DESC").
		Limit(limit).
		Find(&tasks).Error; err != nil {
		return nil, classify(err)
	}
	return tasks, nil
}

// ListArchived returns a project's archived tasks, most recently changed first.
func (s *TaskService) ListArchived(ctx context.Context, actor Actor, projectID string) ([]models.Task, error) {
	if err := s.members.Authorize(ctx, actor, projectID, PermView); err != nil {
		return nil, err
	}
	var tasks []models.Task
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, models.TaskStatusArchived).
		Order("updated_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, classify(err)
	}
	return tasks, nil
}

// maxTimelineDays bounds the range a timeline query may cover.
const maxTimelineDays = 366

// datedTasks returns a project's open tasks that start or are due in
// [from, until), or that span the whole range, ordered by start date.
func (s *TaskService) datedTasks(ctx context.Context, projectID string, from, until time.Time) ([]models.Task, error) {
	tasks := []models.Task{}
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND status <> ?", projectID, models.TaskStatusArchived).
		Where(s.db.Where("start_date >= ? AND start_date < ?", from, until).
			Or("due_date >= ? AND due_date < ?", from, until).
			Or("start_date < ? AND due_date >= ?", from, until)).
		Order("CASE WHEN start_date IS NULL THEN due_date ELSE start_date END ASC, task_number ASC").
		Find(&tasks).Error; err != nil {
		return nil, classify(err)
	}
	return tasks, nil
}

// Timeline returns the open tasks of a project whose start or due date falls
// between from and to, both days inclusive, plus tasks spanning the range.
func (s *TaskService) Timeline(ctx context.Context, actor Actor, projectID string, from, to time.Time) ([]models.Task, error) {
	start, end := *dayOf(&from), *dayOf(&to)
	if end.Before(start) {
		return nil, invalidInput("timeline end %s is before its start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	if end.Sub(start) > maxTimelineDays*24*time.Hour {
		return nil, invalidInput("timeline may cover at most %d days", maxTimelineDays)
	}
	if err := s.members.Authorize(ctx, actor, projectID, PermView); err != nil {
		return nil, err
	}
	return s.datedTasks(ctx, projectID, start, end.AddDate(0, 0, 1))
}

// Calendar returns the open tasks of a project that start or are due in the
// given month.
func (s *TaskService) Calendar(ctx context.Context, actor Actor, projectID string, year int, month time.Month) ([]models.Task, error) {
	if year < 1 || year > 9999 || month < time.January || month > time.December {
		return nil, invalidInput("invalid month %d-%02d", year, int(month))
	}
	if err := s.members.Authorize(ctx, actor, projectID, PermView); err != nil {
		return nil, err
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	next := first.AddDate(0, 1, 0)

	tasks := []models.Task{}
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND status <> ?", projectID, models.TaskStatusArchived).
		Where(s.db.Where("due_date >= ? AND due_date < ?", first, next).
			Or("start_date >= ? AND start_date < ?", first, next)).
		Order("CASE WHEN start_date IS NULL THEN due_date ELSE start_date END ASC, task_number ASC").
		Find(&tasks).Error; err != nil {
		return nil, classify(err)
	}
	return tasks, nil
}
