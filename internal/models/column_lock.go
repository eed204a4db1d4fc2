package models

// ColumnLock is the row locked while positions in one (project, status)
// column are assigned. Version only exists so the lock can be taken with a
// plain UPDATE on every supported driver.
type ColumnLock struct {
	ProjectID string     `gorm:"primaryKey;size:36" json:"project_id"`
	Status    TaskStatus `gorm:"primaryKey;size:20" json:"status"`
	Version   int64      `gorm:"not null;default:0" json:"version"`
}

func (ColumnLock) TableName() string { return "column_locks" }
