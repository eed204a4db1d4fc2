package services

import (
	"errors"
	"testing"

	"github.com/huangang/taskflow/internal/models"
)

func TestUserService_Create(t *testing.T) {
	env := newTestEnv(t)

	user, err := env.users.Create(env.ctx, env.admin, &CreateUserRequest{Email: "  Eve@Example.com ", DisplayName: "Eve"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.Email != "eve@example.com" || user.Role != models.UserRoleUser || !user.IsActive {
		t.Errorf("unexpected user: %+v", user)
	}

	tests := []struct {
		name  string
		actor Actor
		req   CreateUserRequest
		want  error
	}{
		{"not admin", env.alice, CreateUserRequest{Email: "x@example.com", DisplayName: "x"}, ErrForbidden},
		{"duplicate email", env.admin, CreateUserRequest{Email: "EVE@example.com", DisplayName: "x"}, ErrConflict},
		{"bad email", env.admin, CreateUserRequest{Email: "not-an-email", DisplayName: "x"}, ErrInvalidInput},
		{"display name", env.admin, CreateUserRequest{Email: "y@example.com", DisplayName: " "}, ErrInvalidInput},
		{"role", env.admin, CreateUserRequest{Email: "y@example.com", DisplayName: "y", Role: "ROOT"}, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			if _, err := env.users.Create(env.ctx, tt.actor, &req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestUserService_Update(t *testing.T) {
	env := newTestEnv(t)

	name := "Alice A."
	user, err := env.users.Update(env.ctx, env.alice, env.alice.UserID, &UpdateUserRequest{DisplayName: &name})
	if err != nil {
		t.Fatalf("rename self: %v", err)
	}
	if user.DisplayName != "Alice A." {
		t.Errorf("DisplayName = %q", user.DisplayName)
	}

	if _, err := env.users.Update(env.ctx, env.alice, env.bob.UserID, &UpdateUserRequest{DisplayName: &name}); !errors.Is(err, ErrForbidden) {
		t.Errorf("rename other: expected ErrForbidden, got %v", err)
	}
	role := models.UserRoleAdmin
	if _, err := env.users.Update(env.ctx, env.alice, env.alice.UserID, &UpdateUserRequest{Role: &role}); !errors.Is(err, ErrForbidden) {
		t.Errorf("self promotion: expected ErrForbidden, got %v", err)
	}

	inactive := false
	user, err = env.users.Update(env.ctx, env.admin, env.bob.UserID, &UpdateUserRequest{IsActive: &inactive})
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if user.IsActive {
		t.Error("bob should be inactive")
	}
	if _, err := env.users.Update(env.ctx, env.admin, "ghost", &UpdateUserRequest{IsActive: &inactive}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user: expected ErrNotFound, got %v", err)
	}
}

func TestUserService_Delete_RestrictsReferences(t *testing.T) {
	env := newTestEnv(t)

	if err := env.users.Delete(env.ctx, env.admin, env.alice.UserID); !errors.Is(err, ErrConflict) {
		t.Errorf("project owner: expected ErrConflict, got %v", err)
	}

	if _, err := env.tasks.Create(env.ctx, env.carol, env.project.ID, &CreateTaskRequest{Title: "reported by carol"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := env.users.Delete(env.ctx, env.admin, env.carol.UserID); !errors.Is(err, ErrConflict) {
		t.Errorf("task reporter: expected ErrConflict, got %v", err)
	}

	if err := env.users.Delete(env.ctx, env.admin, env.admin.UserID); !errors.Is(err, ErrConflict) {
		t.Errorf("self delete: expected ErrConflict, got %v", err)
	}
	if err := env.users.Delete(env.ctx, env.alice, env.bob.UserID); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-admin: expected ErrForbidden, got %v", err)
	}
	if err := env.users.Delete(env.ctx, env.admin, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user: expected ErrNotFound, got %v", err)
	}
}

func TestUserService_Delete_Cascades(t *testing.T) {
	env := newTestEnv(t)
	dave := env.newUser(t, "dave@example.com", models.UserRoleUser)
	if _, err := env.members.AddMember(env.ctx, env.alice, env.project.ID, &AddMemberRequest{UserID: dave.UserID, Role: models.MemberRoleMember}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	task, err := env.tasks.Create(env.ctx, env.alice, env.project.ID, &CreateTaskRequest{Title: "for dave", AssigneeID: &dave.UserID})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := env.watchers.Watch(env.ctx, dave, task.ID, dave.UserID); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := env.users.Delete(env.ctx, env.admin, dave.UserID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got := env.reload(t, task.ID); got.AssigneeID != nil {
		t.Errorf("task still assigned to %s", *got.AssigneeID)
	}
	var count int64
	env.db.Model(&models.ProjectMember{}).Where("user_id = ?", dave.UserID).Count(&count)
	if count != 0 {
		t.Errorf("memberships left: %d", count)
	}
	env.db.Model(&models.Watcher{}).Where("user_id = ?", dave.UserID).Count(&count)
	if count != 0 {
		t.Errorf("watches left: %d", count)
	}
	if _, err := env.users.GetByID(env.ctx, dave.UserID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUserService_EnsureAdmin(t *testing.T) {
	env := newTestEnv(t)

	admin, created, err := env.users.EnsureAdmin(env.ctx, "root@example.com", "Root")
	if err != nil || !created || admin.Role != models.UserRoleAdmin {
		t.Fatalf("first call: admin=%+v created=%v err=%v", admin, created, err)
	}
	again, created, err := env.users.EnsureAdmin(env.ctx, "ROOT@example.com", "Root")
	if err != nil || created || again.ID != admin.ID {
		t.Errorf("second call: admin=%+v created=%v err=%v", again, created, err)
	}
	if _, _, err := env.users.EnsureAdmin(env.ctx, "alice@example.com", "Alice"); !errors.Is(err, ErrConflict) {
		t.Errorf("existing non-admin: expected ErrConflict, got %v", err)
	}
}

func TestLabelService(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, "labelled")

	label, err := env.labels.Create(env.ctx, env.carol, env.project.ID, &CreateLabelRequest{Name: "backend", Color: "#ff0000"})
	if err != nil {
		t.Fatalf("create label: %v", err)
	}
	if label.Color != "#FF0000" {
		t.Errorf("Color = %q, expected #FF0000", label.Color)
	}
	if _, err := env.labels.Create(env.ctx, env.carol, env.project.ID, &CreateLabelRequest{Name: "backend"}); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate label: expected ErrConflict, got %v", err)
	}
	if _, err := env.labels.Create(env.ctx, env.carol, env.project.ID, &CreateLabelRequest{Name: "x", Color: "red"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad color: expected ErrInvalidInput, got %v", err)
	}

	if err := env.labels.AddToTask(env.ctx, env.carol, task.ID, label.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := env.labels.AddToTask(env.ctx, env.carol, task.ID, label.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("add twice: expected ErrConflict, got %v", err)
	}
	labels, err := env.labels.TaskLabels(env.ctx, env.carol, task.ID)
	if err != nil || len(labels) != 1 || labels[0].Name != "backend" {
		t.Errorf("task labels: %+v err=%v", labels, err)
	}

	if err := env.labels.RemoveFromTask(env.ctx, env.carol, task.ID, label.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := env.labels.RemoveFromTask(env.ctx, env.carol, task.ID, label.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("remove twice: expected ErrNotFound, got %v", err)
	}

	actions := env.actions(t, task.ID)
	want := []models.ActionType{models.ActionTaskCreated, models.ActionLabelAdded, models.ActionLabelRemoved}
	if len(actions) != len(want) {
		t.Fatalf("actions = %v, expected %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("actions[%d] = %s, expected %s", i, actions[i], want[i])
		}
	}
}

func TestWatcherService(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, "watched")

	if err := env.watchers.Watch(env.ctx, env.carol, task.ID, env.carol.UserID); err != nil {
		t.Fatalf("watch self: %v", err)
	}
	if err := env.watchers.Watch(env.ctx, env.carol, task.ID, env.carol.UserID); !errors.Is(err, ErrConflict) {
		t.Errorf("watch twice: expected ErrConflict, got %v", err)
	}
	if err := env.watchers.Watch(env.ctx, env.alice, task.ID, env.bob.UserID); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("watch for outsider: expected ErrInvalidInput, got %v", err)
	}
	if err := env.watchers.Watch(env.ctx, env.bob, task.ID, env.bob.UserID); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider: expected ErrForbidden, got %v", err)
	}

	users, err := env.watchers.Watchers(env.ctx, env.alice, task.ID)
	if err != nil || len(users) != 1 || users[0].ID != env.carol.UserID {
		t.Errorf("watchers: %+v err=%v", users, err)
	}
	watching, err := env.watchers.Watching(env.ctx, env.carol.UserID)
	if err != nil || len(watching) != 1 || watching[0].ID != task.ID {
		t.Errorf("watching: %+v err=%v", watching, err)
	}

	if err := env.watchers.Unwatch(env.ctx, env.carol, task.ID, env.carol.UserID); err != nil {
		t.Fatalf("unwatch: %v", err)
	}
	if err := env.watchers.Unwatch(env.ctx, env.carol, task.ID, env.carol.UserID); !errors.Is(err, ErrNotFound) {
		t.Errorf("unwatch twice: expected ErrNotFound, got %v", err)
	}
}

func TestAttachmentService(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, "with files")

	att, err := env.files.Add(env.ctx, env.carol, task.ID, &CreateAttachmentRequest{Filename: "../../etc/report.pdf", FilePath: "s3://b/report.pdf", FileSize: 1024})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if att.Filename != "report.pdf" {
		t.Errorf("Filename = %q, expected report.pdf", att.Filename)
	}
	if _, err := env.files.Add(env.ctx, env.carol, task.ID, &CreateAttachmentRequest{Filename: "huge.bin", FilePath: "s3://b/huge", FileSize: 51 << 20}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("oversized: expected ErrInvalidInput, got %v", err)
	}

	list, err := env.files.List(env.ctx, env.alice, task.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %+v err=%v", list, err)
	}

	if err := env.files.Delete(env.ctx, env.carol, att.ID); err != nil {
		t.Fatalf("delete own attachment: %v", err)
	}
	if err := env.files.Delete(env.ctx, env.carol, att.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete twice: expected ErrNotFound, got %v", err)
	}

	actions := env.actions(t, task.ID)
	if actions[len(actions)-1] != models.ActionAttachmentAdded {
		t.Errorf("expected ATTACHMENT_ADDED, got %v", actions)
	}
}
