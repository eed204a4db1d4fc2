package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/huangang/taskflow/internal/models"
	"gorm.io/gorm"
)

// NewID returns a globally unique entity id.
func NewID() string {
	return uuid.NewString()
}

// FormatTaskKey composes the human-readable task key, e.g. PROJ-123.
func FormatTaskKey(projectKey string, number int64) string {
	return fmt.Sprintf("%s-%d", projectKey, number)
}

// NextTaskNumber issues the next task number of a project. It must run inside
// the transaction that inserts the task: the increment locks the project row
// until commit, so concurrent callers queue behind each other and a rollback
// returns the number.
func NextTaskNumber(tx *gorm.DB, projectID string) (int64, error) {
	res := tx.Model(&models.Project{}).
		Where("id = ? AND is_archived = ?", projectID, false).
		UpdateColumn("task_counter", gorm.Expr("task_counter + 1"))
	if res.Error != nil {
		return 0, classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, conflict("project %s does not exist or is archived", projectID)
	}

	var project models.Project
	if err := tx.Select("task_counter").Where("id = ?", projectID).Take(&project).Error; err != nil {
		return 0, classify(err)
	}
	return project.TaskCounter, nil
}
