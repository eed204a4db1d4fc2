package services

import (
	"context"
	"errors"

	"github.com/huangang/taskflow/internal/models"
	"gorm.io/gorm"
)

// WatcherService tracks which users follow a task.
type WatcherService struct {
	db      *gorm.DB
	members Membership
	clock   Clock
}

func NewWatcherService(db *gorm.DB, members Membership, clock Clock) *WatcherService {
	return &WatcherService{db: db, members: members, clock: clock}
}

// Watch subscribes userID to a task. Users subscribe themselves; editors of
// the project can subscribe other members.
func (s *WatcherService) Watch(ctx context.Context, actor Actor, taskID, userID string) error {
	task, err := s.authorize(ctx, actor, taskID, userID)
	if err != nil {
		return err
	}
	if userID != actor.UserID {
		ok, err := s.members.IsMember(ctx, task.ProjectID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return invalidInput("user %s is not a member of the project", userID)
		}
	}

	watcher := models.Watcher{TaskID: task.ID, UserID: userID, CreatedAt: s.clock.Now()}
	if err := s.db.WithContext(ctx).Create(&watcher).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return conflict("user %s already watches %s", userID, task.TaskKey)
		}
		return classify(err)
	}
	return nil
}

func (s *WatcherService) Unwatch(ctx context.Context, actor Actor, taskID, userID string) error {
	task, err := s.authorize(ctx, actor, taskID, userID)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("task_id = ? AND user_id = ?", task.ID, userID).Delete(&models.Watcher{})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("user %s does not watch %s", userID, task.TaskKey)
	}
	return nil
}

// authorize requires view access to watch oneself and edit access to change
// someone else's subscription.
func (s *WatcherService) authorize(ctx context.Context, actor Actor, taskID, userID string) (*models.Task, error) {
	task, err := findTask(s.db.WithContext(ctx), taskID)
	if err != nil {
		return nil, err
	}
	perm := PermView
	if userID != actor.UserID {
		perm = PermEdit
	}
	if err := s.members.Authorize(ctx, actor, task.ProjectID, perm); err != nil {
		return nil, err
	}
	return task, nil
}

// Watchers returns the users watching a task.
func (s *WatcherService) Watchers(ctx context.Context, actor Actor, taskID string) ([]models.User, error) {
	task, err := findTask(s.db.WithContext(ctx), taskID)
	if err != nil {
		return nil, err
	}
	if err := s.members.Authorize(ctx, actor, task.ProjectID, PermView); err != nil {
		return nil, err
	}
	var users []models.User
	if err := s.db.WithContext(ctx).
		Joins("JOIN task_watchers ON task_watchers.user_id = users.id").
		Where("task_watchers.task_id = ?", taskID).
		Order("task_watchers.created_at ASC").
		Find(&users).Error; err != nil {
		return nil, classify(err)
	}
	return users, nil
}

// Watching returns the tasks a user watches.
func (s *WatcherService) Watching(ctx context.Context, userID string) ([]models.Task, error) {
	var tasks []models.Task
	if err := s.db.WithContext(ctx).
		Joins("JOIN task_watchers ON task_watchers.task_id = tasks.id").
		Where("task_watchers.user_id = ?", userID).
		Order("tasks.updated_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, classify(err)
	}
	return tasks, nil
}
