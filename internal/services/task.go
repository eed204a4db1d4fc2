package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/huangang/taskflow/internal/config"
	"github.com/huangang/taskflow/internal/models"
	"github.com/huangang/taskflow/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxTitleLength  = 500
	maxStoryPoints  = 100
	moveMaxAttempts = 3
)

// TaskService owns task records: numbering, board order, hierarchy and the
// status flow. Every mutation runs in one transaction together with its
// activity records; index events are published after commit.
type TaskService struct {
	db       *gorm.DB
	clock    Clock
	members  Membership
	recorder *ActivityRecorder
	queue    TaskQueue
	policy   TransitionPolicy
	step     int64
	maxDepth int
}

func NewTaskService(db *gorm.DB, clock Clock, members Membership, recorder *ActivityRecorder, queue TaskQueue, board config.BoardConfig) *TaskService {
	step := board.PositionStep
	if step < 2 {
		step = DefaultPositionStep
	}
	depth := board.MaxHierarchyDepth
	if depth < 1 {
		depth = DefaultMaxHierarchyDepth
	}
	return &TaskService{
		db:       db,
		clock:    clock,
		members:  members,
		recorder: recorder,
		queue:    queue,
		policy:   DefaultTransitions,
		step:     step,
		maxDepth: depth,
	}
}

// SetTransitionPolicy replaces the status flow.
func (s *TaskService) SetTransitionPolicy(policy TransitionPolicy) {
	s.policy = policy
}

type CreateTaskRequest struct {
	Title        string              `json:"title" binding:"required"`
	Description  string              `json:"description"`
	Type         models.TaskType     `json:"type"`
	Priority     models.TaskPriority `json:"priority"`
	StoryPoints  *int                `json:"story_points"`
	ParentTaskID *string             `json:"parent_task_id"`
	AssigneeID   *string             `json:"assignee_id"`
	DueDate      *time.Time          `json:"due_date"`
	StartDate    *time.Time          `json:"start_date"`
}

func (r *CreateTaskRequest) normalize() error {
	r.Title = strings.TrimSpace(r.Title)
	if err := validateTitle(r.Title); err != nil {
		return err
	}
	if r.Type == "" {
		r.Type = models.TaskTypeTask
	}
	if !r.Type.Valid() {
		return invalidInput("invalid task type %q", r.Type)
	}
	if r.Priority == "" {
		r.Priority = models.TaskPriorityMedium
	}
	if !r.Priority.Valid() {
		return invalidInput("invalid priority %q", r.Priority)
	}
	if err := validateStoryPoints(r.StoryPoints); err != nil {
		return err
	}
	r.StartDate, r.DueDate = dayOf(r.StartDate), dayOf(r.DueDate)
	if err := validateDates(r.StartDate, r.DueDate); err != nil {
		return err
	}
	if r.ParentTaskID != nil && *r.ParentTaskID == "" {
		r.ParentTaskID = nil
	}
	if r.AssigneeID != nil && *r.AssigneeID == "" {
		r.AssigneeID = nil
	}
	if r.Type == models.TaskTypeSubtask && r.ParentTaskID == nil {
		return invalidHierarchy("a subtask needs a parent task")
	}
	return nil
}

func validateTitle(title string) error {
	if n := utf8.RuneCountInString(title); n == 0 || n > maxTitleLength {
		return invalidInput("title must be between 1 and %d characters", maxTitleLength)
	}
	return nil
}

func validateStoryPoints(points *int) error {
	if points != nil && (*points < 0 || *points > maxStoryPoints) {
		return invalidInput("story points must be between 0 and %d", maxStoryPoints)
	}
	return nil
}

// dayOf keeps only the calendar date of t, at midnight UTC. Start and due
// dates are whole days and compare as such in range queries.
func dayOf(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &day
}

func validateDates(start, due *time.Time) error {
	if start != nil && due != nil && due.Before(*start) {
		return invalidInput("due date is before start date")
	}
	return nil
}

// writable checks that actor may change tasks of an active project.
func (s *TaskService) writable(ctx context.Context, actor Actor, projectID string) error {
	archived, err := s.members.IsArchived(ctx, projectID)
	if err != nil {
		return err
	}
	if archived {
		return conflict("project %s is archived", projectID)
	}
	return s.members.Authorize(ctx, actor, projectID, PermEdit)
}

func (s *TaskService) checkAssignee(ctx context.Context, projectID string, assigneeID *string) error {
	if assigneeID == nil || *assigneeID == "" {
		return nil
	}
	ok, err := s.members.IsMember(ctx, projectID, *assigneeID)
	if err != nil {
		return err
	}
	if !ok {
		return invalidInput("assignee %s is not a member of the project", *assigneeID)
	}
	return nil
}

// Create adds a task at the bottom of the project's TODO column.
func (s *TaskService) Create(ctx context.Context, actor Actor, projectID string, req *CreateTaskRequest) (*models.Task, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if err := s.writable(ctx, actor, projectID); err != nil {
		return nil, err
	}
	if err := s.checkAssignee(ctx, projectID, req.AssigneeID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	task := models.Task{
		ID:           NewID(),
		ProjectID:    projectID,
		Title:        req.Title,
		Description:  req.Description,
		Type:         req.Type,
		Status:       models.TaskStatusTodo,
		Priority:     req.Priority,
		StoryPoints:  req.StoryPoints,
		ParentTaskID: req.ParentTaskID,
		AssigneeID:   req.AssigneeID,
		ReporterID:   actor.UserID,
		DueDate:      req.DueDate,
		StartDate:    req.StartDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := NextTaskNumber(tx, projectID)
		if err != nil {
			return err
		}
		var project models.Project
		if err := tx.Select("id", "project_key").Where("id = ?", projectID).Take(&project).Error; err != nil {
			return err
		}
		task.TaskNumber = number
		task.TaskKey = FormatTaskKey(project.Key, number)

		if task.ParentTaskID != nil {
			if err := checkParent(tx, &task, *task.ParentTaskID, s.maxDepth); err != nil {
				return err
			}
		}

		if err := lockColumn(tx, projectID, task.Status); err != nil {
			return err
		}
		last, err := lastPosition(tx, projectID, task.Status)
		if err != nil {
			return err
		}
		task.Position, _ = positionBetween(last, nil, s.step)

		if err := tx.Create(&task).Error; err != nil {
			return err
		}

		_, err = s.recorder.RecordTx(tx, ActivityEntry{
			ProjectID: projectID,
			TaskID:    &task.ID,
			TaskKey:   task.TaskKey,
			UserID:    actor.UserID,
			Action:    models.ActionTaskCreated,
			NewValue:  &task.Title,
			Metadata:  map[string]interface{}{"type": task.Type, "priority": task.Priority},
		})
		return err
	})
	if err != nil {
		return nil, classify(err)
	}

	logger.Info().Str("task_key", task.TaskKey).Str("project_id", projectID).Msg("task created")
	s.publish(ctx, IndexOpUpsert, &task)
	return &task, nil
}

// UpdateTaskRequest is a partial patch; nil fields are left alone. An empty
// AssigneeID unassigns the task.
type UpdateTaskRequest struct {
	Title       *string              `json:"title"`
	Description *string              `json:"description"`
	Type        *models.TaskType     `json:"type"`
	Status      *models.TaskStatus   `json:"status"`
	Priority    *models.TaskPriority `json:"priority"`
	StoryPoints *int                 `json:"story_points"`
	AssigneeID  *string              `json:"assignee_id"`
	DueDate     *time.Time           `json:"due_date"`
	StartDate   *time.Time           `json:"start_date"`
}

func (r *UpdateTaskRequest) validate() error {
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		r.Title = &title
		if err := validateTitle(title); err != nil {
			return err
		}
	}
	if r.Type != nil && !r.Type.Valid() {
		return invalidInput("invalid task type %q", *r.Type)
	}
	if r.Status != nil && !r.Status.Valid() {
		return invalidInput("invalid status %q", *r.Status)
	}
	if r.Priority != nil && !r.Priority.Valid() {
		return invalidInput("invalid priority %q", *r.Priority)
	}
	r.StartDate, r.DueDate = dayOf(r.StartDate), dayOf(r.DueDate)
	return validateStoryPoints(r.StoryPoints)
}

// Update applies a partial patch. A status change must be allowed by the
// transition policy and appends the task to the bottom of its new column.
func (s *TaskService) Update(ctx context.Context, actor Actor, taskID string, req *UpdateTaskRequest) (*models.Task, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	current, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.writable(ctx, actor, current.ProjectID); err != nil {
		return nil, err
	}
	if err := s.checkAssignee(ctx, current.ProjectID, req.AssigneeID); err != nil {
		return nil, err
	}

	var task models.Task
	var changed bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		statusChange := req.Status != nil && *req.Status != current.Status
		if statusChange {
			if err := lockColumns(tx, current.ProjectID, current.Status, *req.Status); err != nil {
				return err
			}
		}
		if err := lockTask(tx, taskID, &task); err != nil {
			return err
		}
		if task.Status != current.Status {
			return conflict("task %s changed status concurrently", task.TaskKey)
		}

		updates := map[string]interface{}{}
		var fields []string
		set := func(column string, value interface{}) {
			updates[column] = value
			fields = append(fields, column)
		}

		if req.Title != nil && *req.Title != task.Title {
			set("title", *req.Title)
		}
		if req.Description != nil && *req.Description != task.Description {
			set("description", *req.Description)
		}
		if req.Priority != nil && *req.Priority != task.Priority {
			set("priority", *req.Priority)
		}
		if req.StoryPoints != nil && (task.StoryPoints == nil || *task.StoryPoints != *req.StoryPoints) {
			set("story_points", *req.StoryPoints)
		}
		if req.DueDate != nil && (task.DueDate == nil || !task.DueDate.Equal(*req.DueDate)) {
			set("due_date", *req.DueDate)
		}
		if req.StartDate != nil && (task.StartDate == nil || !task.StartDate.Equal(*req.StartDate)) {
			set("start_date", *req.StartDate)
		}
		start, due := task.StartDate, task.DueDate
		if req.StartDate != nil {
			start = req.StartDate
		}
		if req.DueDate != nil {
			due = req.DueDate
		}
		if err := validateDates(start, due); err != nil {
			return err
		}
		if req.Type != nil && *req.Type != task.Type {
			if *req.Type == models.TaskTypeSubtask {
				if task.ParentTaskID == nil {
					return invalidHierarchy("a subtask needs a parent task")
				}
				children, err := hasChildren(tx, task.ID)
				if err != nil {
					return err
				}
				if children {
					return invalidHierarchy("%s has subtasks and cannot become a subtask", task.TaskKey)
				}
			}
			set("task_type", *req.Type)
		}

		entries := []ActivityEntry{}
		base := ActivityEntry{ProjectID: task.ProjectID, TaskID: &task.ID, TaskKey: task.TaskKey, UserID: actor.UserID}

		if statusChange {
			if err := s.policy.Check(task.Status, *req.Status); err != nil {
				return err
			}
			last, err := lastPosition(tx, task.ProjectID, *req.Status)
			if err != nil {
				return err
			}
			pos, _ := positionBetween(last, nil, s.step)
			updates["status"] = *req.Status
			updates["position"] = pos

			e := base
			e.Action = models.ActionStatusChanged
			e.OldValue, e.NewValue = strPtr(string(task.Status)), strPtr(string(*req.Status))
			entries = append(entries, e)
		}

		if req.AssigneeID != nil && !sameRef(task.AssigneeID, req.AssigneeID) {
			var next interface{}
			if *req.AssigneeID != "" {
				next = *req.AssigneeID
			}
			updates["assignee_id"] = next

			e := base
			e.Action = models.ActionAssigneeChanged
			e.OldValue, e.NewValue = task.AssigneeID, nilIfEmpty(*req.AssigneeID)
			entries = append(entries, e)
		}

		if len(fields) > 0 {
			e := base
			e.Action = models.ActionTaskUpdated
			e.Metadata = map[string]interface{}{"fields": fields}
			entries = append(entries, e)
		}

		if len(updates) == 0 {
			return nil
		}
		changed = true
		updates["updated_at"] = now
		if err := tx.Model(&models.Task{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
			return err
		}
		for _, e := range entries {
			if _, err := s.recorder.RecordTx(tx, e); err != nil {
				return err
			}
		}
		return tx.Where("id = ?", task.ID).Take(&task).Error
	})
	if err != nil {
		return nil, classify(err)
	}

	if changed {
		s.publish(ctx, IndexOpUpsert, &task)
	}
	return &task, nil
}

type PlacementMode string

const (
	PlaceBefore PlacementMode = "before"
	PlaceAfter  PlacementMode = "after"
	PlaceAppend PlacementMode = "append"
)

// MoveTaskRequest places a task in a column, before or after an anchor task
// of that column, or at its bottom.
type MoveTaskRequest struct {
	Status       models.TaskStatus `json:"status" binding:"required"`
	Mode         PlacementMode     `json:"mode"`
	AnchorTaskID string            `json:"anchor_task_id"`
}

func (r *MoveTaskRequest) validate(taskID string) error {
	if !r.Status.Valid() {
		return invalidInput("invalid status %q", r.Status)
	}
	if r.Mode == "" {
		r.Mode = PlaceAppend
	}
	switch r.Mode {
	case PlaceAppend:
		r.AnchorTaskID = ""
	case PlaceBefore, PlaceAfter:
		if r.AnchorTaskID == "" {
			return invalidInput("placement %s needs an anchor task", r.Mode)
		}
		if r.AnchorTaskID == taskID {
			return invalidInput("a task cannot be placed relative to itself")
		}
	default:
		return invalidInput("invalid placement %q, must be before, after or append", r.Mode)
	}
	return nil
}

// Move reorders a task within its column or moves it to another column.
// Concurrent moves into the same column are serialized on the column lock; a
// lost race on the position index is retried a few times before surfacing
// as ErrConflict.
func (s *TaskService) Move(ctx context.Context, actor Actor, taskID string, req *MoveTaskRequest) (*models.Task, error) {
	if err := req.validate(taskID); err != nil {
		return nil, err
	}
	current, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.writable(ctx, actor, current.ProjectID); err != nil {
		return nil, err
	}

	var task *models.Task
	var moved bool
	for attempt := 1; attempt <= moveMaxAttempts; attempt++ {
		task, moved, err = s.moveOnce(ctx, actor, current, req)
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		logger.Warn().Str("task_id", taskID).Int("attempt", attempt).Msg("position race, retrying move")
	}
	if err != nil {
		return nil, classify(err)
	}
	if moved {
		s.publish(ctx, IndexOpUpsert, task)
	}
	return task, nil
}

// moveOnce runs one move attempt. Both the column the task leaves and the
// one it enters are locked, so no renumbering elsewhere can touch the task
// mid-move.
func (s *TaskService) moveOnce(ctx context.Context, actor Actor, current *models.Task, req *MoveTaskRequest) (*models.Task, bool, error) {
	projectID, taskID := current.ProjectID, current.ID
	var task models.Task
	var moved bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		if err := lockColumns(tx, projectID, current.Status, req.Status); err != nil {
			return err
		}
		if err := lockTask(tx, taskID, &task); err != nil {
			return err
		}
		if task.Status != current.Status {
			return conflict("task %s changed status concurrently", task.TaskKey)
		}
		fromStatus, fromPos := task.Status, task.Position
		sameColumn := fromStatus == req.Status
		if err := s.policy.Check(fromStatus, req.Status); err != nil {
			return err
		}

		column, err := columnPositions(tx, projectID, req.Status, task.ID)
		if err != nil {
			return err
		}
		prev, next, err := neighbours(column, req)
		if err != nil {
			return err
		}

		if sameColumn && (prev < 0 || column[prev].Position < fromPos) && (next < 0 || fromPos < column[next].Position) {
			return nil
		}

		pos, ok := positionBetween(positionAt(column, prev), positionAt(column, next), s.step)
		if !ok {
			if sameColumn {
				// free the task's own slot before the column is rewritten
				if err := tx.Model(&models.Task{}).Where("id = ?", task.ID).UpdateColumn("position", 0).Error; err != nil {
					return err
				}
			}
			if err := renumberColumn(tx, projectID, req.Status, column, s.step); err != nil {
				return err
			}
			logger.Debug().Str("project_id", projectID).Str("status", string(req.Status)).
				Int("tasks", len(column)).Msg("column renumbered")
			if pos, ok = positionBetween(positionAt(column, prev), positionAt(column, next), s.step); !ok {
				return conflict("no free position in column %s", req.Status)
			}
		}

		if err := tx.Model(&models.Task{}).Where("id = ?", task.ID).Updates(map[string]interface{}{
			"status":     req.Status,
			"position":   pos,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		moved = true

		base := ActivityEntry{ProjectID: projectID, TaskID: &task.ID, TaskKey: task.TaskKey, UserID: actor.UserID}
		if !sameColumn {
			e := base
			e.Action = models.ActionStatusChanged
			e.OldValue, e.NewValue = strPtr(string(fromStatus)), strPtr(string(req.Status))
			if _, err := s.recorder.RecordTx(tx, e); err != nil {
				return err
			}
		}
		e := base
		e.Action = models.ActionTaskMoved
		e.OldValue, e.NewValue = strPtr(string(fromStatus)), strPtr(string(req.Status))
		e.Metadata = map[string]interface{}{
			"mode":          req.Mode,
			"from_position": fromPos,
			"to_position":   pos,
		}
		if req.AnchorTaskID != "" {
			e.Metadata["anchor_task_id"] = req.AnchorTaskID
		}
		if _, err := s.recorder.RecordTx(tx, e); err != nil {
			return err
		}

		return tx.Where("id = ?", task.ID).Take(&task).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &task, moved, nil
}

// neighbours returns the indexes in column of the tasks that will sit
// directly above and below the moved task; -1 means none.
func neighbours(column []models.Task, req *MoveTaskRequest) (prev, next int, err error) {
	if req.Mode == PlaceAppend {
		return len(column) - 1, -1, nil
	}
	anchor := -1
	for i := range column {
		if column[i].ID == req.AnchorTaskID {
			anchor = i
			break
		}
	}
	if anchor < 0 {
		return 0, 0, invalidInput("anchor task %s is not in column %s", req.AnchorTaskID, req.Status)
	}
	if req.Mode == PlaceBefore {
		return anchor - 1, anchor, nil
	}
	if anchor+1 < len(column) {
		return anchor, anchor + 1, nil
	}
	return anchor, -1, nil
}

func positionAt(column []models.Task, i int) *int64 {
	if i < 0 || i >= len(column) {
		return nil
	}
	return &column[i].Position
}

// SetParent attaches a task to parentID, or detaches it when parentID is nil.
func (s *TaskService) SetParent(ctx context.Context, actor Actor, taskID string, parentID *string) (*models.Task, error) {
	if parentID != nil && *parentID == "" {
		parentID = nil
	}
	current, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.writable(ctx, actor, current.ProjectID); err != nil {
		return nil, err
	}

	var task models.Task
	var changed bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		if err := lockTask(tx, taskID, &task); err != nil {
			return err
		}
		if sameRef(task.ParentTaskID, parentID) {
			return nil
		}
		if parentID == nil {
			if task.Type == models.TaskTypeSubtask {
				return invalidHierarchy("subtask %s must keep a parent", task.TaskKey)
			}
		} else if err := checkParent(tx, &task, *parentID, s.maxDepth); err != nil {
			return err
		}

		var next interface{}
		if parentID != nil {
			next = *parentID
		}
		if err := tx.Model(&models.Task{}).Where("id = ?", task.ID).Updates(map[string]interface{}{
			"parent_task_id": next,
			"updated_at":     now,
		}).Error; err != nil {
			return err
		}
		changed = true

		if _, err := s.recorder.RecordTx(tx, ActivityEntry{
			ProjectID: task.ProjectID,
			TaskID:    &task.ID,
			TaskKey:   task.TaskKey,
			UserID:    actor.UserID,
			Action:    models.ActionTaskUpdated,
			OldValue:  task.ParentTaskID,
			NewValue:  parentID,
			Metadata:  map[string]interface{}{"fields": []string{"parent_task_id"}},
		}); err != nil {
			return err
		}
		return tx.Where("id = ?", task.ID).Take(&task).Error
	})
	if err != nil {
		return nil, classify(err)
	}
	if changed {
		logger.Debug().Str("task_key", task.TaskKey).Msg("task parent changed")
	}
	return &task, nil
}

// Delete removes a task. Children are detached, and a detached subtask
// becomes a plain task. Attachments, watchers and label assignments go with
// the task; its activity rows stay with the task reference cleared.
func (s *TaskService) Delete(ctx context.Context, actor Actor, taskID string) error {
	current, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.writable(ctx, actor, current.ProjectID); err != nil {
		return err
	}

	var task models.Task
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		if err := lockTask(tx, taskID, &task); err != nil {
			return err
		}

		if err := detachChildren(tx, s.recorder, &task, actor.UserID, now); err != nil {
			return err
		}
		if err := deleteTaskOwned(tx, []string{task.ID}); err != nil {
			return err
		}
		if err := tx.Model(&models.Activity{}).Where("task_id = ?", task.ID).
			UpdateColumn("task_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", task.ID).Delete(&models.Task{}).Error; err != nil {
			return err
		}

		_, err := s.recorder.RecordTx(tx, ActivityEntry{
			ProjectID: task.ProjectID,
			TaskKey:   task.TaskKey,
			UserID:    actor.UserID,
			Action:    models.ActionTaskDeleted,
			OldValue:  &task.Title,
		})
		return err
	})
	if err != nil {
		return classify(err)
	}

	logger.Info().Str("task_key", task.TaskKey).Msg("task deleted")
	s.publish(ctx, IndexOpDelete, &task)
	return nil
}

func detachChildren(tx *gorm.DB, recorder *ActivityRecorder, parent *models.Task, userID string, now time.Time) error {
	var children []models.Task
	if err := tx.Select("id", "task_key", "task_type").
		Where("parent_task_id = ?", parent.ID).
		Order("task_number ASC").
		Find(&children).Error; err != nil {
		return err
	}
	for _, child := range children {
		updates := map[string]interface{}{"parent_task_id": nil, "updated_at": now}
		fields := []string{"parent_task_id"}
		if child.Type == models.TaskTypeSubtask {
			updates["task_type"] = models.TaskTypeTask
			fields = append(fields, "task_type")
		}
		if err := tx.Model(&models.Task{}).Where("id = ?", child.ID).Updates(updates).Error; err != nil {
			return err
		}
		childID := child.ID
		if _, err := recorder.RecordTx(tx, ActivityEntry{
			ProjectID: parent.ProjectID,
			TaskID:    &childID,
			TaskKey:   child.TaskKey,
			UserID:    userID,
			Action:    models.ActionTaskUpdated,
			OldValue:  &parent.ID,
			Metadata:  map[string]interface{}{"fields": fields, "reason": "parent deleted"},
		}); err != nil {
			return err
		}
	}
	return nil
}

// deleteTaskOwned removes the rows owned by the given tasks.
func deleteTaskOwned(tx *gorm.DB, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}
	for _, model := range []interface{}{&models.Attachment{}, &models.Watcher{}, &models.TaskLabel{}} {
		if err := tx.Where("task_id IN ?", taskIDs).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

// lockTask loads a task into dst holding its row lock until the transaction
// ends. SQLite has no row locks; its transactions already hold the database
// write lock.
func lockTask(tx *gorm.DB, taskID string, dst *models.Task) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", taskID).Take(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("task %s", taskID)
	}
	return err
}

func (s *TaskService) publish(ctx context.Context, op IndexOp, task *models.Task) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(ctx, newIndexEvent(op, task, s.clock.Now())); err != nil {
		logger.Warn().Err(err).Str("task_key", task.TaskKey).Msg("failed to publish index event")
	}
}

func strPtr(s string) *string { return &s }

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// sameRef compares optional references; an empty string counts as unset.
func sameRef(a, b *string) bool {
	av, bv := "", ""
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}
