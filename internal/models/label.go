package models

import "time"

type Label struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ProjectID string    `gorm:"uniqueIndex:idx_label_project_name;size:36;not null" json:"project_id"`
	Name      string    `gorm:"uniqueIndex:idx_label_project_name;size:50;not null" json:"name"`
	Color     string    `gorm:"size:7;not null" json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

func (Label) TableName() string { return "labels" }

// TaskLabel assigns a label to a task.
type TaskLabel struct {
	TaskID    string    `gorm:"primaryKey;size:36" json:"task_id"`
	LabelID   string    `gorm:"primaryKey;size:36;index" json:"label_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (TaskLabel) TableName() string { return "task_labels" }
