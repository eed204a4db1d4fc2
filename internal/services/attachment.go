package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/huangang/taskflow/internal/models"
	"gorm.io/gorm"
)

// maxAttachmentSize matches the upload limit of the file store.
const maxAttachmentSize int64 = 50 << 20

// AttachmentService keeps attachment metadata. File bytes live in an
// external store; FilePath is its locator.
type AttachmentService struct {
	db       *gorm.DB
	members  Membership
	recorder *ActivityRecorder
	clock    Clock
}

func NewAttachmentService(db *gorm.DB, members Membership, recorder *ActivityRecorder, clock Clock) *AttachmentService {
	return &AttachmentService{db: db, members: members, recorder: recorder, clock: clock}
}

type CreateAttachmentRequest struct {
	Filename string `json:"filename" binding:"required"`
	FilePath string `json:"file_path" binding:"required"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
}

func (s *AttachmentService) Add(ctx context.Context, actor Actor, taskID string, req *CreateAttachmentRequest) (*models.Attachment, error) {
	name := filepath.Base(strings.TrimSpace(req.Filename))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return nil, invalidInput("filename is required")
	}
	if req.FileSize < 0 || req.FileSize > maxAttachmentSize {
		return nil, invalidInput("file size must be between 0 and %d bytes", maxAttachmentSize)
	}

	task, err := findTask(s.db.WithContext(ctx), taskID)
	if err != nil {
		return nil, err
	}
	if err := s.members.Authorize(ctx, actor, task.ProjectID, PermEdit); err != nil {
		return nil, err
	}

	attachment := models.Attachment{
		ID:         NewID(),
		TaskID:     task.ID,
		Filename:   name,
		FilePath:   req.FilePath,
		FileSize:   req.FileSize,
		MimeType:   req.MimeType,
		UploadedBy: actor.UserID,
		CreatedAt:  s.clock.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the task may have been deleted since it was loaded
		if err := exists(tx, &models.Task{}, task.ID); err != nil {
			return err
		}
		if err := tx.Create(&attachment).Error; err != nil {
			return err
		}
		_, err := s.recorder.RecordTx(tx, ActivityEntry{
			ProjectID: task.ProjectID,
			TaskID:    &task.ID,
			TaskKey:   task.TaskKey,
			UserID:    actor.UserID,
			Action:    models.ActionAttachmentAdded,
			NewValue:  &attachment.Filename,
			Metadata:  map[string]interface{}{"attachment_id": attachment.ID, "file_size": attachment.FileSize},
		})
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	return &attachment, nil
}

func (s *AttachmentService) List(ctx context.Context, actor Actor, taskID string) ([]models.Attachment, error) {
	task, err := findTask(s.db.WithContext(ctx), taskID)
	if err != nil {
		return nil, err
	}
	if err := s.members.Authorize(ctx, actor, task.ProjectID, PermView); err != nil {
		return nil, err
	}
	var attachments []models.Attachment
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("created_at ASC").Find(&attachments).Error; err != nil {
		return nil, classify(err)
	}
	return attachments, nil
}

// Delete removes attachment metadata. Uploaders and project editors may
// delete.
func (s *AttachmentService) Delete(ctx context.Context, actor Actor, id string) error {
	var attachment models.Attachment
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&attachment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("attachment %s", id)
	}
	if err != nil {
		return classify(err)
	}
	task, err := findTask(s.db.WithContext(ctx), attachment.TaskID)
	if err != nil {
		return err
	}
	perm := PermEdit
	if attachment.UploadedBy == actor.UserID {
		perm = PermView
	}
	if err := s.members.Authorize(ctx, actor, task.ProjectID, perm); err != nil {
		return err
	}
	return classify(s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Attachment{}).Error)
}
