package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/huangang/taskflow/internal/models"
	"gorm.io/gorm"
)

var labelColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

const defaultLabelColor = "#6B7280"

// LabelService manages project labels and their assignment to tasks.
type LabelService struct {
	db       *gorm.DB
	members  Membership
	recorder *ActivityRecorder
	clock    Clock
}

func NewLabelService(db *gorm.DB, members Membership, recorder *ActivityRecorder, clock Clock) *LabelService {
	return &LabelService{db: db, members: members, recorder: recorder, clock: clock}
}

type CreateLabelRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color"`
}

func (s *LabelService) List(ctx context.Context, actor Actor, projectID string) ([]models.Label, error) {
	if err := s.members.Authorize(ctx, actor, projectID, PermView); err != nil {
		return nil, err
	}
	var labels []models.Label
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("name ASC").Find(&labels).Error; err != nil {
		return nil, classify(err)
	}
	return labels, nil
}

func (s *LabelService) Create(ctx context.Context, actor Actor, projectID string, req *CreateLabelRequest) (*models.Label, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 50 {
		return nil, invalidInput("label name must be between 1 and 50 characters")
	}
	color := req.Color
	if color == "" {
		color = defaultLabelColor
	}
	if !labelColorPattern.MatchString(color) {
		return nil, invalidInput("label color must look like #RRGGBB")
	}
	if err := s.members.Authorize(ctx, actor, projectID, PermEdit); err != nil {
		return nil, err
	}

	label := models.Label{
		ID:        NewID(),
		ProjectID: projectID,
		Name:      name,
		Color:     strings.ToUpper(color),
		CreatedAt: s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&label).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflict("label %q already exists in this project", name)
		}
		return nil, classify(err)
	}
	return &label, nil
}

// Delete removes a label and its task assignments.
func (s *LabelService) Delete(ctx context.Context, actor Actor, labelID string) error {
	label, err := s.find(ctx, labelID)
	if err != nil {
		return err
	}
	if err := s.members.Authorize(ctx, actor, label.ProjectID, PermEdit); err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("label_id = ?", labelID).Delete(&models.TaskLabel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", labelID).Delete(&models.Label{}).Error
	})
	return classify(err)
}

func (s *LabelService) find(ctx context.Context, labelID string) (*models.Label, error) {
	var label models.Label
	err := s.db.WithContext(ctx).Where("id = ?", labelID).Take(&label).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("label %s", labelID)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &label, nil
}

// taskAndLabel loads both ends of an assignment and checks they share a
// project the actor may edit.
func (s *LabelService) taskAndLabel(ctx context.Context, actor Actor, taskID, labelID string) (*models.Task, *models.Label, error) {
	task, err := findTask(s.db.WithContext(ctx), taskID)
	if err != nil {
		return nil, nil, err
	}
	label, err := s.find(ctx, labelID)
	if err != nil {
		return nil, nil, err
	}
	if label.ProjectID != task.ProjectID {
		return nil, nil, invalidInput("label %s belongs to another project", label.Name)
	}
	if err := s.members.Authorize(ctx, actor, task.ProjectID, PermEdit); err != nil {
		return nil, nil, err
	}
	return task, label, nil
}

// AddToTask assigns a label to a task.
func (s *LabelService) AddToTask(ctx context.Context, actor Actor, taskID, labelID string) error {
	task, label, err := s.taskAndLabel(ctx, actor, taskID, labelID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.TaskLabel{TaskID: task.ID, LabelID: label.ID, CreatedAt: s.clock.Now()}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return conflict("task %s already has label %s", task.TaskKey, label.Name)
			}
			return err
		}
		_, err := s.recorder.RecordTx(tx, ActivityEntry{
			ProjectID: task.ProjectID,
			TaskID:    &task.ID,
			TaskKey:   task.TaskKey,
			UserID:    actor.UserID,
			Action:    models.ActionLabelAdded,
			NewValue:  &label.Name,
		})
		return err
	})
	return classify(err)
}

// RemoveFromTask unassigns a label from a task.
func (s *LabelService) RemoveFromTask(ctx context.Context, actor Actor, taskID, labelID string) error {
	task, label, err := s.taskAndLabel(ctx, actor, taskID, labelID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("task_id = ? AND label_id = ?", task.ID, label.ID).Delete(&models.TaskLabel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound("task %s has no label %s", task.TaskKey, label.Name)
		}
		_, err := s.recorder.RecordTx(tx, ActivityEntry{
			ProjectID: task.ProjectID,
			TaskID:    &task.ID,
			TaskKey:   task.TaskKey,
			UserID:    actor.UserID,
			Action:    models.ActionLabelRemoved,
			OldValue:  &label.Name,
		})
		return err
	})
	return classify(err)
}

// TaskLabels returns the labels assigned to a task.
func (s *LabelService) TaskLabels(ctx context.Context, actor Actor, taskID string) ([]models.Label, error) {
	task, err := findTask(s.db.WithContext(ctx), taskID)
	if err != nil {
		return nil, err
	}
	if err := s.members.Authorize(ctx, actor, task.ProjectID, PermView); err != nil {
		return nil, err
	}
	var labels []models.Label
	if err := s.db.WithContext(ctx).
		Joins("JOIN task_labels ON task_labels.label_id = labels.id").
		Where("task_labels.task_id = ?", taskID).
		Order("labels.name ASC").
		Find(&labels).Error; err != nil {
		return nil, classify(err)
	}
	return labels, nil
}
