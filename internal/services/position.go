package services

import (
	"slices"

	"github.com/huangang/taskflow/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPositionStep is the gap left between tasks appended to a column.
const DefaultPositionStep int64 = 1000

// positionBetween picks a position strictly between prev and next. A nil
// prev means the top of the column, a nil next the bottom. ok is false when
// no integer gap remains and the column must be renumbered first.
func positionBetween(prev, next *int64, step int64) (pos int64, ok bool) {
	switch {
	case prev == nil && next == nil:
		return step, true
	case next == nil:
		return *prev + step, true
	case prev == nil:
		if *next > 1 {
			return *next / 2, true
		}
		return 0, false
	default:
		if *next-*prev >= 2 {
			return *prev + (*next-*prev)/2, true
		}
		return 0, false
	}
}

// columnPositions returns a column's tasks in position order, skipping
// excludeID.
func columnPositions(tx *gorm.DB, projectID string, status models.TaskStatus, excludeID string) ([]models.Task, error) {
	var tasks []models.Task
	query := tx.Select("id", "position").
		Where("project_id = ? AND status = ?", projectID, status)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Order("position ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// lastPosition returns the largest position in a column, or nil when empty.
func lastPosition(tx *gorm.DB, projectID string, status models.TaskStatus) (*int64, error) {
	var task models.Task
	res := tx.Select("position").
		Where("project_id = ? AND status = ?", projectID, status).
		Order("position DESC").
		Limit(1).
		Find(&task)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &task.Position, nil
}

// renumberColumn rewrites the positions of tasks to (i+1)*step in the given
// order. The first pass moves every row to a distinct negative value so the
// (project, status, position) index never sees a duplicate mid-update. Every
// write is scoped to the column; a task that has left it aborts the rewrite
// with ErrConflict.
func renumberColumn(tx *gorm.DB, projectID string, status models.TaskStatus, tasks []models.Task, step int64) error {
	place := func(taskID string, pos int64) error {
		res := tx.Model(&models.Task{}).
			Where("id = ? AND project_id = ? AND status = ?", taskID, projectID, status).
			UpdateColumn("position", pos)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return conflict("task %s left column %s during renumbering", taskID, status)
		}
		return nil
	}

	for i := range tasks {
		if err := place(tasks[i].ID, -int64(i+1)); err != nil {
			return err
		}
	}
	for i := range tasks {
		pos := int64(i+1) * step
		if err := place(tasks[i].ID, pos); err != nil {
			return err
		}
		tasks[i].Position = pos
	}
	return nil
}

// lockColumn serializes position assignment in one (project, status) column.
// The lock row is created on first use; the version bump takes the row lock
// until the surrounding transaction ends.
func lockColumn(tx *gorm.DB, projectID string, status models.TaskStatus) error {
	lock := models.ColumnLock{ProjectID: projectID, Status: status}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock).Error; err != nil {
		return err
	}
	return tx.Model(&models.ColumnLock{}).
		Where("project_id = ? AND status = ?", projectID, status).
		UpdateColumn("version", gorm.Expr("version + 1")).Error
}

// lockColumns locks every distinct column in statuses, always in status
// order, so two moves between the same pair of columns cannot deadlock.
func lockColumns(tx *gorm.DB, projectID string, statuses ...models.TaskStatus) error {
	sorted := slices.Clone(statuses)
	slices.Sort(sorted)
	for _, status := range slices.Compact(sorted) {
		if err := lockColumn(tx, projectID, status); err != nil {
			return err
		}
	}
	return nil
}
