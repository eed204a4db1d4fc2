package services

import (
	"errors"

	"github.com/huangang/taskflow/internal/models"
	"gorm.io/gorm"
)

// DefaultMaxHierarchyDepth bounds the ancestor walk of a parent chain.
const DefaultMaxHierarchyDepth = 10

// checkParent validates making parentID the parent of task. The parent must
// be another task of the same project, must not be a SUBTASK, and must not
// have task among its ancestors. A chain longer than maxDepth is rejected,
// which also stops the walk on a corrupted cyclic chain.
func checkParent(tx *gorm.DB, task *models.Task, parentID string, maxDepth int) error {
	if parentID == task.ID {
		return invalidHierarchy("task %s cannot be its own parent", task.TaskKey)
	}

	parent, err := loadLink(tx, parentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("parent task %s", parentID)
	}
	if err != nil {
		return err
	}
	if parent.ProjectID != task.ProjectID {
		return invalidHierarchy("parent %s belongs to another project", parent.TaskKey)
	}
	if parent.Type == models.TaskTypeSubtask {
		return invalidHierarchy("subtask %s cannot have children", parent.TaskKey)
	}

	depth := 1
	for cur := parent; cur.ParentTaskID != nil; {
		depth++
		if depth > maxDepth {
			return invalidHierarchy("parent chain of %s exceeds %d levels", parent.TaskKey, maxDepth)
		}
		if *cur.ParentTaskID == task.ID {
			return invalidHierarchy("%s is an ancestor of %s", task.TaskKey, parent.TaskKey)
		}
		next, err := loadLink(tx, *cur.ParentTaskID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// dangling reference ends the chain
			return nil
		}
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}

func loadLink(tx *gorm.DB, id string) (*models.Task, error) {
	var task models.Task
	err := tx.Select("id", "project_id", "task_key", "task_type", "parent_task_id").
		Where("id = ?", id).
		Take(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// hasChildren reports whether any task names taskID as its parent.
func hasChildren(tx *gorm.DB, taskID string) (bool, error) {
	var count int64
	if err := tx.Model(&models.Task{}).Where("parent_task_id = ?", taskID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
