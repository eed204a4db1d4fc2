package services

import (
	"context"
	"errors"

	"github.com/huangang/taskflow/internal/models"
	"gorm.io/gorm"
)

// Actor is the identity resolved by the auth collaborator for one call.
type Actor struct {
	UserID string
	Role   models.UserRole
}

func (a Actor) IsAdmin() bool { return a.Role == models.UserRoleAdmin }

type Permission string

const (
	PermView   Permission = "VIEW"
	PermEdit   Permission = "EDIT"
	PermManage Permission = "MANAGE" // delete project, manage members
)

var memberPermissions = map[models.MemberRole][]Permission{
	models.MemberRoleAdmin:  {PermView, PermEdit, PermManage},
	models.MemberRoleMember: {PermView, PermEdit},
	models.MemberRoleViewer: {PermView},
}

// Membership answers the two questions the task core asks about projects.
type Membership interface {
	IsMember(ctx context.Context, projectID, userID string) (bool, error)
	IsArchived(ctx context.Context, projectID string) (bool, error)
	Authorize(ctx context.Context, actor Actor, projectID string, perm Permission) error
}

type MembershipService struct {
	db       *gorm.DB
	recorder *ActivityRecorder
	clock    Clock
}

func NewMembershipService(db *gorm.DB, recorder *ActivityRecorder, clock Clock) *MembershipService {
	return &MembershipService{db: db, recorder: recorder, clock: clock}
}

func (s *MembershipService) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	_, ok, err := s.Role(ctx, projectID, userID)
	return ok, err
}

// IsArchived fails with ErrNotFound when the project does not exist.
func (s *MembershipService) IsArchived(ctx context.Context, projectID string) (bool, error) {
	var project models.Project
	err := s.db.WithContext(ctx).Select("id", "is_archived").Where("id = ?", projectID).Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, notFound("project %s", projectID)
	}
	if err != nil {
		return false, classify(err)
	}
	return project.IsArchived, nil
}

// Role returns the member role of userID in projectID.
func (s *MembershipService) Role(ctx context.Context, projectID, userID string) (models.MemberRole, bool, error) {
	var member models.ProjectMember
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify(err)
	}
	return member.Role, true, nil
}

// Authorize checks that actor may act on projectID with perm. Global admins
// pass everywhere; global viewers are read-only; everyone else needs a
// membership whose role grants perm.
func (s *MembershipService) Authorize(ctx context.Context, actor Actor, projectID string, perm Permission) error {
	if _, err := s.IsArchived(ctx, projectID); err != nil {
		return err
	}
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role == models.UserRoleViewer && perm != PermView {
		return forbidden("viewers can only view content")
	}

	role, ok, err := s.Role(ctx, projectID, actor.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return forbidden("not a member of project %s", projectID)
	}
	for _, p := range memberPermissions[role] {
		if p == perm {
			return nil
		}
	}
	return forbidden("role %s cannot %s project %s", role, perm, projectID)
}

// ListMembers returns the members of a project with their users.
func (s *MembershipService) ListMembers(ctx context.Context, actor Actor, projectID string) ([]models.ProjectMember, error) {
	if err := s.Authorize(ctx, actor, projectID, PermView); err != nil {
		return nil, err
	}

	var members []models.ProjectMember
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).
		Preload("User").
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return nil, classify(err)
	}
	return members, nil
}

type AddMemberRequest struct {
	UserID string            `json:"user_id" binding:"required"`
	Role   models.MemberRole `json:"role" binding:"required"`
}

// AddMember adds a user to a project with the specified role.
func (s *MembershipService) AddMember(ctx context.Context, actor Actor, projectID string, req *AddMemberRequest) (*models.ProjectMember, error) {
	if !req.Role.Valid() {
		return nil, invalidInput("invalid role %q, must be ADMIN, MEMBER or VIEWER", req.Role)
	}
	if err := s.Authorize(ctx, actor, projectID, PermManage); err != nil {
		return nil, err
	}

	member := models.ProjectMember{
		ID:        NewID(),
		ProjectID: projectID,
		UserID:    req.UserID,
		Role:      req.Role,
		CreatedAt: s.clock.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Select("id").Where("id = ?", req.UserID).Take(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("user %s", req.UserID)
			}
			return err
		}
		if err := tx.Create(&member).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return conflict("user %s is already a member of this project", req.UserID)
			}
			return err
		}
		role := string(req.Role)
		_, err := s.recorder.RecordTx(tx, ActivityEntry{
			ProjectID: projectID,
			UserID:    actor.UserID,
			Action:    models.ActionMemberAdded,
			NewValue:  &role,
			Metadata:  map[string]interface{}{"member_id": req.UserID},
		})
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	return &member, nil
}

// RemoveMember removes a user from a project. The owner cannot be removed.
func (s *MembershipService) RemoveMember(ctx context.Context, actor Actor, projectID, userID string) error {
	if err := s.Authorize(ctx, actor, projectID, PermManage); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.Select("id", "owner_id").Where("id = ?", projectID).Take(&project).Error; err != nil {
			return err
		}
		if project.OwnerID == userID {
			return conflict("the project owner cannot be removed")
		}

		var member models.ProjectMember
		if err := tx.Where("project_id = ? AND user_id = ?", projectID, userID).Take(&member).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("user %s is not a member of project %s", userID, projectID)
			}
			return err
		}
		if err := tx.Delete(&member).Error; err != nil {
			return err
		}
		old := string(member.Role)
		_, err := s.recorder.RecordTx(tx, ActivityEntry{
			ProjectID: projectID,
			UserID:    actor.UserID,
			Action:    models.ActionMemberRemoved,
			OldValue:  &old,
			Metadata:  map[string]interface{}{"member_id": userID},
		})
		return err
	})
	return classify(err)
}
