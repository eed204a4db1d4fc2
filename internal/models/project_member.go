package models

import "time"

type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "ADMIN"
	MemberRoleMember MemberRole = "MEMBER"
	MemberRoleViewer MemberRole = "VIEWER"
)

func (r MemberRole) Valid() bool {
	switch r {
	case MemberRoleAdmin, MemberRoleMember, MemberRoleViewer:
		return true
	}
	return false
}

// ProjectMember represents a user's membership and role within a project.
type ProjectMember struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	ProjectID string     `gorm:"uniqueIndex:idx_project_user;size:36;not null" json:"project_id"`
	UserID    string     `gorm:"uniqueIndex:idx_project_user;size:36;not null" json:"user_id"`
	User      *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role      MemberRole `gorm:"size:20;not null" json:"role"`
	CreatedAt time.Time  `json:"created_at"`
}

func (ProjectMember) TableName() string { return "project_members" }
