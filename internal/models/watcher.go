package models

import "time"

type Watcher struct {
	TaskID    string    `gorm:"primaryKey;size:36" json:"task_id"`
	UserID    string    `gorm:"primaryKey;size:36;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Watcher) TableName() string { return "task_watchers" }
