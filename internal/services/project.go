package services

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/huangang/taskflow/internal/models"
	"github.com/huangang/taskflow/pkg/logger"
	"gorm.io/gorm"
)

var projectKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,9}$`)

type ProjectService struct {
	db       *gorm.DB
	members  *MembershipService
	recorder *ActivityRecorder
	clock    Clock
}

func NewProjectService(db *gorm.DB, members *MembershipService, recorder *ActivityRecorder, clock Clock) *ProjectService {
	return &ProjectService{db: db, members: members, recorder: recorder, clock: clock}
}

type ProjectListRequest struct {
	Page            int    `form:"page" binding:"omitempty,min=1"`
	PageSize        int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Name            string `form:"name"`
	IncludeArchived bool   `form:"include_archived"`
}

type ProjectListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Project `json:"items"`
}

type CreateProjectRequest struct {
	Name        string             `json:"name" binding:"required"`
	Key         string             `json:"key" binding:"required"`
	Description string             `json:"description"`
	Type        models.ProjectType `json:"type"`
}

type UpdateProjectRequest struct {
	Name        *string             `json:"name"`
	Key         *string             `json:"key"`
	Description *string             `json:"description"`
	Type        *models.ProjectType `json:"type"`
}

func normalizeKey(key string) (string, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if !projectKeyPattern.MatchString(key) {
		return "", invalidInput("project key must be 1-10 letters or digits starting with a letter")
	}
	return key, nil
}

// List returns the projects visible to actor: every project for admins,
// member projects for everyone else.
func (s *ProjectService) List(ctx context.Context, actor Actor, req *ProjectListRequest) (*ProjectListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 10
	}

	var projects []models.Project
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Project{})
	if !actor.IsAdmin() {
		query = query.Where("id IN (?)", s.db.Model(&models.ProjectMember{}).Select("project_id").Where("user_id = ?", actor.UserID))
	}
	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}
	if !req.IncludeArchived {
		query = query.Where("is_archived = ?", false)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, classify(err)
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, classify(err)
	}

	return &ProjectListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    projects,
	}, nil
}

// GetByID returns a project by ID
func (s *ProjectService) GetByID(ctx context.Context, actor Actor, id string) (*models.Project, error) {
	if err := s.members.Authorize(ctx, actor, id, PermView); err != nil {
		return nil, err
	}
	var project models.Project
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&project).Error; err != nil {
		return nil, classify(err)
	}
	return &project, nil
}

// Create creates a project owned by actor, who becomes its first admin.
func (s *ProjectService) Create(ctx context.Context, actor Actor, req *CreateProjectRequest) (*models.Project, error) {
	if actor.Role == models.UserRoleViewer {
		return nil, forbidden("viewers cannot create projects")
	}
	key, err := normalizeKey(req.Key)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalidInput("project name is required")
	}
	if req.Type == "" {
		req.Type = models.ProjectTypeTeamManaged
	}
	if !req.Type.Valid() {
		return nil, invalidInput("invalid project type %q", req.Type)
	}

	now := s.clock.Now()
	project := models.Project{
		ID:          NewID(),
		Name:        name,
		Key:         key,
		Description: req.Description,
		Type:        req.Type,
		OwnerID:     actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return conflict("project key %s is already taken", key)
			}
			return err
		}
		if err := tx.Create(&models.ProjectMember{
			ID:        NewID(),
			ProjectID: project.ID,
			UserID:    actor.UserID,
			Role:      models.MemberRoleAdmin,
			CreatedAt: now,
		}).Error; err != nil {
			return err
		}
		_, err := s.recorder.RecordTx(tx, ActivityEntry{
			ProjectID: project.ID,
			UserID:    actor.UserID,
			Action:    models.ActionProjectCreated,
			NewValue:  &project.Key,
			Metadata:  map[string]interface{}{"name": project.Name},
		})
		return err
	})
	if err != nil {
		return nil, classify(err)
	}

	logger.Info().Str("project_key", project.Key).Msg("project created")
	return &project, nil
}

// Update patches a project. The key can only change while no task has ever
// been numbered under it.
func (s *ProjectService) Update(ctx context.Context, actor Actor, id string, req *UpdateProjectRequest) (*models.Project, error) {
	if err := s.members.Authorize(ctx, actor, id, PermManage); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	var fields []string
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, invalidInput("project name is required")
		}
		updates["name"] = name
		fields = append(fields, "name")
	}
	if req.Description != nil {
		updates["description"] = *req.Description
		fields = append(fields, "description")
	}
	if req.Type != nil {
		if !req.Type.Valid() {
			return nil, invalidInput("invalid project type %q", *req.Type)
		}
		updates["project_type"] = *req.Type
		fields = append(fields, "type")
	}
	var newKey string
	if req.Key != nil {
		key, err := normalizeKey(*req.Key)
		if err != nil {
			return nil, err
		}
		newKey = key
	}

	var project models.Project
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&project).Error; err != nil {
			return err
		}
		oldKey := project.Key
		now := s.clock.Now()

		if newKey != "" && newKey != project.Key {
			res := tx.Model(&models.Project{}).
				Where("id = ? AND task_counter = ?", id, 0).
				Updates(map[string]interface{}{"project_key": newKey, "updated_at": now})
			if res.Error != nil {
				if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
					return conflict("project key %s is already taken", newKey)
				}
				return res.Error
			}
			if res.RowsAffected == 0 {
				return conflict("project key cannot change once tasks exist")
			}
			fields = append(fields, "key")
		}

		if len(updates) > 0 {
			updates["updated_at"] = now
			if err := tx.Model(&models.Project{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return err
			}
		}
		if len(fields) == 0 {
			return nil
		}

		if err := tx.Where("id = ?", id).Take(&project).Error; err != nil {
			return err
		}
		entry := ActivityEntry{
			ProjectID: id,
			UserID:    actor.UserID,
			Action:    models.ActionProjectUpdated,
			Metadata:  map[string]interface{}{"fields": fields},
		}
		if project.Key != oldKey {
			entry.OldValue, entry.NewValue = &oldKey, &project.Key
		}
		_, err := s.recorder.RecordTx(tx, entry)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	return &project, nil
}

// SetArchived archives or reopens a project. Archived projects reject new
// tasks and task changes.
func (s *ProjectService) SetArchived(ctx context.Context, actor Actor, id string, archived bool) (*models.Project, error) {
	if err := s.members.Authorize(ctx, actor, id, PermManage); err != nil {
		return nil, err
	}

	var project models.Project
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Project{}).
			Where("id = ? AND is_archived = ?", id, !archived).
			Updates(map[string]interface{}{"is_archived": archived, "updated_at": s.clock.Now()})
		if res.Error != nil {
			return res.Error
		}
		if err := tx.Where("id = ?", id).Take(&project).Error; err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return nil
		}

		action := models.ActionProjectUpdated
		if archived {
			action = models.ActionProjectArchived
		}
		old, next := strconv.FormatBool(!archived), strconv.FormatBool(archived)
		_, err := s.recorder.RecordTx(tx, ActivityEntry{
			ProjectID: id,
			UserID:    actor.UserID,
			Action:    action,
			OldValue:  &old,
			NewValue:  &next,
			Metadata:  map[string]interface{}{"fields": []string{"is_archived"}},
		})
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	return &project, nil
}

// Delete removes a project with its tasks, members, labels, column locks and
// activity history.
func (s *ProjectService) Delete(ctx context.Context, actor Actor, id string) error {
	if err := s.members.Authorize(ctx, actor, id, PermManage); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taskIDs []string
		if err := tx.Model(&models.Task{}).Where("project_id = ?", id).Pluck("id", &taskIDs).Error; err != nil {
			return err
		}
		if err := deleteTaskOwned(tx, taskIDs); err != nil {
			return err
		}
		for _, model := range []interface{}{
			&models.Task{}, &models.ProjectMember{}, &models.Label{},
			&models.ColumnLock{}, &models.Activity{},
		} {
			if err := tx.Where("project_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", id).Delete(&models.Project{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound("project %s", id)
		}
		return nil
	})
	if err != nil {
		return classify(err)
	}

	logger.Info().Str("project_id", id).Msg("project deleted")
	return nil
}
