package models

import "time"

type TaskType string

const (
	TaskTypeStory   TaskType = "STORY"
	TaskTypeTask    TaskType = "TASK"
	TaskTypeBug     TaskType = "BUG"
	TaskTypeEpic    TaskType = "EPIC"
	TaskTypeSubtask TaskType = "SUBTASK"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeStory, TaskTypeTask, TaskTypeBug, TaskTypeEpic, TaskTypeSubtask:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusArchived   TaskStatus = "ARCHIVED"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone, TaskStatusArchived:
		return true
	}
	return false
}

// BoardStatuses are the columns rendered on a board, in display order.
var BoardStatuses = []TaskStatus{TaskStatusTodo, TaskStatusInProgress, TaskStatusDone}

type TaskPriority string

const (
	TaskPriorityLowest  TaskPriority = "LOWEST"
	TaskPriorityLow     TaskPriority = "LOW"
	TaskPriorityMedium  TaskPriority = "MEDIUM"
	TaskPriorityHigh    TaskPriority = "HIGH"
	TaskPriorityHighest TaskPriority = "HIGHEST"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLowest, TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityHighest:
		return true
	}
	return false
}

// Task is a work item on a project board.
//
// Position orders a task inside its (project, status) column. Values are
// unique per column but not contiguous.
type Task struct {
	ID           string       `gorm:"primaryKey;size:36" json:"id"`
	ProjectID    string       `gorm:"size:36;not null;uniqueIndex:idx_task_project_number;uniqueIndex:idx_task_column_position" json:"project_id"`
	TaskNumber   int64        `gorm:"not null;uniqueIndex:idx_task_project_number" json:"task_number"`
	TaskKey      string       `gorm:"uniqueIndex;size:20;not null" json:"task_key"`
	Title        string       `gorm:"size:500;not null" json:"title"`
	Description  string       `gorm:"type:text" json:"description"`
	Type         TaskType     `gorm:"column:task_type;size:20;not null" json:"type"`
	Status       TaskStatus   `gorm:"size:20;not null;uniqueIndex:idx_task_column_position" json:"status"`
	Priority     TaskPriority `gorm:"size:20;not null" json:"priority"`
	StoryPoints  *int         `json:"story_points"`
	ParentTaskID *string      `gorm:"index;size:36" json:"parent_task_id"`
	AssigneeID   *string      `gorm:"index;size:36" json:"assignee_id"`
	ReporterID   string       `gorm:"index;size:36;not null" json:"reporter_id"`
	DueDate      *time.Time   `gorm:"type:date" json:"due_date"`
	StartDate    *time.Time   `gorm:"type:date" json:"start_date"`
	Position     int64        `gorm:"not null;uniqueIndex:idx_task_column_position" json:"position"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }
