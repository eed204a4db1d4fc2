package models

import "time"

type ActionType string

const (
	ActionTaskCreated     ActionType = "TASK_CREATED"
	ActionTaskUpdated     ActionType = "TASK_UPDATED"
	ActionStatusChanged   ActionType = "STATUS_CHANGED"
	ActionAssigneeChanged ActionType = "ASSIGNEE_CHANGED"
	ActionTaskMoved       ActionType = "TASK_MOVED"
	ActionTaskDeleted     ActionType = "TASK_DELETED"
	ActionCommentAdded    ActionType = "COMMENT_ADDED"
	ActionAttachmentAdded ActionType = "ATTACHMENT_ADDED"
	ActionProjectCreated  ActionType = "PROJECT_CREATED"
	ActionProjectUpdated  ActionType = "PROJECT_UPDATED"
	ActionProjectArchived ActionType = "PROJECT_ARCHIVED"
	ActionMemberAdded     ActionType = "MEMBER_ADDED"
	ActionMemberRemoved   ActionType = "MEMBER_REMOVED"
	ActionLabelAdded      ActionType = "LABEL_ADDED"
	ActionLabelRemoved    ActionType = "LABEL_REMOVED"
)

// Activity is one append-only audit record.
//
// ID is a database sequence and breaks ties between activities that share a
// CreatedAt timestamp. TaskID is nulled when the task is deleted; TaskKey keeps
// the human-readable reference.
type Activity struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID string     `gorm:"index;size:36;not null" json:"project_id"`
	TaskID    *string    `gorm:"index;size:36" json:"task_id"`
	TaskKey   string     `gorm:"size:20" json:"task_key"`
	UserID    string     `gorm:"index;size:36;not null" json:"user_id"`
	Action    ActionType `gorm:"size:30;index;not null" json:"action"`
	OldValue  *string    `gorm:"size:255" json:"old_value"`
	NewValue  *string    `gorm:"size:255" json:"new_value"`
	Metadata  string     `gorm:"type:text" json:"metadata"` // JSON object
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
}

func (Activity) TableName() string { return "activities" }
