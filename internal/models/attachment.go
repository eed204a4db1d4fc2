package models

import "time"

// Attachment is the metadata of a file stored by the attachment collaborator.
type Attachment struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	TaskID     string    `gorm:"index;size:36;not null" json:"task_id"`
	Filename   string    `gorm:"size:255;not null" json:"filename"`
	FilePath   string    `gorm:"size:500;not null" json:"-"`
	FileSize   int64     `gorm:"not null" json:"file_size"`
	MimeType   string    `gorm:"size:100" json:"mime_type"`
	UploadedBy string    `gorm:"size:36;not null" json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Attachment) TableName() string { return "task_attachments" }
