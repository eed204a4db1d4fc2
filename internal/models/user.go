package models

import "time"

type UserRole string

const (
	UserRoleAdmin  UserRole = "ADMIN"
	UserRoleUser   UserRole = "USER"
	UserRoleViewer UserRole = "VIEWER"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleUser, UserRoleViewer:
		return true
	}
	return false
}

// User represents an account known to the tracker
type User struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Email       string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	DisplayName string    `gorm:"size:255;not null" json:"display_name"`
	Role        UserRole  `gorm:"size:20;not null" json:"role"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
