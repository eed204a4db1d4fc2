package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/huangang/taskflow/internal/models"
	"github.com/huangang/taskflow/pkg/logger"
	"gorm.io/gorm"
)

type UserService struct {
	db    *gorm.DB
	clock Clock
}

func NewUserService(db *gorm.DB, clock Clock) *UserService {
	return &UserService{db: db, clock: clock}
}

type UserListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Name     string `form:"name"`
	Role     string `form:"role"`
}

type UserListResponse struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Items    []models.User `json:"items"`
}

type CreateUserRequest struct {
	Email       string          `json:"email" binding:"required"`
	DisplayName string          `json:"display_name" binding:"required"`
	Role        models.UserRole `json:"role"`
}

type UpdateUserRequest struct {
	DisplayName *string          `json:"display_name"`
	Role        *models.UserRole `json:"role"`
	IsActive    *bool            `json:"is_active"`
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalidInput("invalid email %q", email)
	}
	return email, nil
}

func (s *UserService) List(ctx context.Context, req *UserListRequest) (*UserListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.User{})
	if req.Name != "" {
		like := "%" + req.Name + "%"
		query = query.Where("display_name LIKE ? OR email LIKE ?", like, like)
	}
	if req.Role != "" {
		query = query.Where("role = ?", req.Role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, classify(err)
	}

	var users []models.User
	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, classify(err)
	}

	return &UserListResponse{Total: total, Page: req.Page, PageSize: req.PageSize, Items: users}, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("user %s", id)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &user, nil
}

// Create registers a user profile. Only admins create users.
func (s *UserService) Create(ctx context.Context, actor Actor, req *CreateUserRequest) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, forbidden("admin access required")
	}
	return s.create(ctx, req)
}

func (s *UserService) create(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, invalidInput("display name is required")
	}
	if req.Role == "" {
		req.Role = models.UserRoleUser
	}
	if !req.Role.Valid() {
		return nil, invalidInput("invalid role %q, must be ADMIN, USER or VIEWER", req.Role)
	}

	now := s.clock.Now()
	user := models.User{
		ID:          NewID(),
		Email:       email,
		DisplayName: name,
		Role:        req.Role,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflict("email %s is already registered", email)
		}
		return nil, classify(err)
	}
	return &user, nil
}

// Update patches a profile. Users may rename themselves; role and active
// flag are admin-only.
func (s *UserService) Update(ctx context.Context, actor Actor, id string, req *UpdateUserRequest) (*models.User, error) {
	if !actor.IsAdmin() {
		if actor.UserID != id {
			return nil, forbidden("cannot modify another user")
		}
		if req.Role != nil || req.IsActive != nil {
			return nil, forbidden("only admins can change role or status")
		}
	}

	updates := map[string]interface{}{}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			return nil, invalidInput("display name is required")
		}
		updates["display_name"] = name
	}
	if req.Role != nil {
		if !req.Role.Valid() {
			return nil, invalidInput("invalid role %q, must be ADMIN, USER or VIEWER", *req.Role)
		}
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) > 0 {
		updates["updated_at"] = s.clock.Now()
		res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, classify(res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, notFound("user %s", id)
		}
	}
	return s.GetByID(ctx, id)
}

// Delete removes a user. It is refused while the user owns a project or
// reported a task. Sessions, memberships and watches are removed with the
// user and assigned tasks become unassigned.
func (s *UserService) Delete(ctx context.Context, actor Actor, id string) error {
	if !actor.IsAdmin() {
		return forbidden("admin access required")
	}
	if actor.UserID == id {
		return conflict("cannot delete yourself")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.User{}, id); err != nil {
			return err
		}

		var owned, reported int64
		if err := tx.Model(&models.Project{}).Where("owner_id = ?", id).Count(&owned).Error; err != nil {
			return err
		}
		if owned > 0 {
			return conflict("user owns %d project(s); transfer ownership first", owned)
		}
		if err := tx.Model(&models.Task{}).Where("reporter_id = ?", id).Count(&reported).Error; err != nil {
			return err
		}
		if reported > 0 {
			return conflict("user reported %d task(s) and cannot be deleted", reported)
		}

		for _, model := range []interface{}{&models.UserSession{}, &models.ProjectMember{}, &models.Watcher{}} {
			if err := tx.Where("user_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Task{}).Where("assignee_id = ?", id).
			Updates(map[string]interface{}{"assignee_id": nil, "updated_at": s.clock.Now()}).Error; err != nil {
			return err
		}

		// the checks above can race a concurrent create; the delete itself
		// re-checks both references
		res := tx.Exec(`DELETE FROM users WHERE id = ?
			AND NOT EXISTS (SELECT 1 FROM projects WHERE owner_id = ?)
			AND NOT EXISTS (SELECT 1 FROM tasks WHERE reporter_id = ?)`, id, id, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("user %s gained references during deletion", id)
		}
		return nil
	})
	if err != nil {
		return classify(err)
	}

	logger.Info().Str("user_id", id).Msg("user deleted")
	return nil
}

// EnsureAdmin creates an admin with email unless one already exists. It
// returns the admin and whether it was created.
func (s *UserService) EnsureAdmin(ctx context.Context, email, name string) (*models.User, bool, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, false, err
	}
	var user models.User
	err = s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if err == nil {
		if user.Role != models.UserRoleAdmin {
			return nil, false, conflict("user %s exists and is not an admin", email)
		}
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, classify(err)
	}

	created, err := s.create(ctx, &CreateUserRequest{Email: email, DisplayName: name, Role: models.UserRoleAdmin})
	if err != nil {
		return nil, false, err
	}
	logger.Infof("[User] Admin %s created", email)
	return created, true, nil
}
