package services

import (
	"context"

	"github.com/huangang/taskflow/internal/models"
	"github.com/huangang/taskflow/pkg/logger"
	"gorm.io/gorm"
)

// RespaceBoard rewrites every column of a project to evenly spaced positions
// without changing the order of its tasks. It is an operator tool and does
// not record activities. It returns the number of columns rewritten.
func (s *TaskService) RespaceBoard(ctx context.Context, projectID string) (int, error) {
	if err := exists(s.db.WithContext(ctx), &models.Project{}, projectID); err != nil {
		return 0, err
	}

	rewritten := 0
	for _, status := range []models.TaskStatus{
		models.TaskStatusTodo, models.TaskStatusInProgress, models.TaskStatusDone, models.TaskStatusArchived,
	} {
		var changed bool
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := lockColumn(tx, projectID, status); err != nil {
				return err
			}
			column, err := columnPositions(tx, projectID, status, "")
			if err != nil {
				return err
			}
			if evenlySpaced(column, s.step) {
				return nil
			}
			changed = true
			return renumberColumn(tx, projectID, status, column, s.step)
		})
		if err != nil {
			return rewritten, classify(err)
		}
		if changed {
			rewritten++
			logger.Info().Str("project_id", projectID).Str("status", string(status)).Msg("column respaced")
		}
	}
	return rewritten, nil
}

func evenlySpaced(column []models.Task, step int64) bool {
	for i := range column {
		if column[i].Position != int64(i+1)*step {
			return false
		}
	}
	return true
}
