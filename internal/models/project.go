package models

import "time"

type ProjectType string

const (
	ProjectTypeTeamManaged    ProjectType = "TEAM_MANAGED"
	ProjectTypeCompanyManaged ProjectType = "COMPANY_MANAGED"
)

func (t ProjectType) Valid() bool {
	return t == ProjectTypeTeamManaged || t == ProjectTypeCompanyManaged
}

// Project groups tasks under a short key used as the task-key prefix
type Project struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	Name        string      `gorm:"size:255;not null" json:"name"`
	Key         string      `gorm:"column:project_key;uniqueIndex;size:10;not null" json:"key"`
	Description string      `gorm:"type:text" json:"description"`
	Type        ProjectType `gorm:"column:project_type;size:20;not null" json:"type"`
	OwnerID     string      `gorm:"index;size:36;not null" json:"owner_id"`
	IsArchived  bool        `gorm:"not null;default:false" json:"is_archived"`
	TaskCounter int64       `gorm:"not null;default:0" json:"-"` // last issued task number
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }
