package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/huangang/taskflow/internal/config"
	"github.com/huangang/taskflow/internal/models"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingQueue struct {
	mu     sync.Mutex
	events []IndexEvent
}

func (q *recordingQueue) Enqueue(_ context.Context, event *IndexEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, *event)
	return nil
}

func (q *recordingQueue) IsAsync() bool { return false }
func (q *recordingQueue) Close() error  { return nil }

func (q *recordingQueue) Events() []IndexEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]IndexEvent(nil), q.events...)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "taskflow_test.db"),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// testEnv wires the services over one database with a few users:
// alice owns the project, carol is a member, bob is an outsider.
type testEnv struct {
	ctx      context.Context
	db       *gorm.DB
	clock    *fakeClock
	queue    *recordingQueue
	recorder *ActivityRecorder
	members  *MembershipService
	projects *ProjectService
	tasks    *TaskService
	users    *UserService
	labels   *LabelService
	watchers *WatcherService
	files    *AttachmentService

	admin, alice, bob, carol Actor
	project                  *models.Project
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithBoard(t, config.BoardConfig{PositionStep: 1000, MaxHierarchyDepth: 10})
}

func newTestEnvWithBoard(t *testing.T, board config.BoardConfig) *testEnv {
	t.Helper()
	db := newTestDB(t)
	clock := newFakeClock()
	recorder := NewActivityRecorder(db, clock)
	members := NewMembershipService(db, recorder, clock)
	queue := &recordingQueue{}

	env := &testEnv{
		ctx:      context.Background(),
		db:       db,
		clock:    clock,
		queue:    queue,
		recorder: recorder,
		members:  members,
		projects: NewProjectService(db, members, recorder, clock),
		tasks:    NewTaskService(db, clock, members, recorder, queue, board),
		users:    NewUserService(db, clock),
		labels:   NewLabelService(db, members, recorder, clock),
		watchers: NewWatcherService(db, members, clock),
		files:    NewAttachmentService(db, members, recorder, clock),
	}

	env.admin = env.newUser(t, "admin@example.com", models.UserRoleAdmin)
	env.alice = env.newUser(t, "alice@example.com", models.UserRoleUser)
	env.bob = env.newUser(t, "bob@example.com", models.UserRoleUser)
	env.carol = env.newUser(t, "carol@example.com", models.UserRoleUser)

	env.project = env.newProject(t, env.alice, "PROJ")
	if _, err := members.AddMember(env.ctx, env.alice, env.project.ID, &AddMemberRequest{
		UserID: env.carol.UserID,
		Role:   models.MemberRoleMember,
	}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	return env
}

func (e *testEnv) newUser(t *testing.T, email string, role models.UserRole) Actor {
	t.Helper()
	user, err := e.users.create(e.ctx, &CreateUserRequest{Email: email, DisplayName: email, Role: role})
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return Actor{UserID: user.ID, Role: user.Role}
}

func (e *testEnv) newProject(t *testing.T, owner Actor, key string) *models.Project {
	t.Helper()
	project, err := e.projects.Create(e.ctx, owner, &CreateProjectRequest{Name: key + " project", Key: key})
	if err != nil {
		t.Fatalf("create project %s: %v", key, err)
	}
	return project
}

func (e *testEnv) newTask(t *testing.T, title string) *models.Task {
	t.Helper()
	return e.newTaskWith(t, &CreateTaskRequest{Title: title})
}

func (e *testEnv) newTaskWith(t *testing.T, req *CreateTaskRequest) *models.Task {
	t.Helper()
	task, err := e.tasks.Create(e.ctx, e.alice, e.project.ID, req)
	if err != nil {
		t.Fatalf("create task %q: %v", req.Title, err)
	}
	return task
}

func (e *testEnv) reload(t *testing.T, id string) *models.Task {
	t.Helper()
	var task models.Task
	if err := e.db.Where("id = ?", id).Take(&task).Error; err != nil {
		t.Fatalf("reload task %s: %v", id, err)
	}
	return &task
}

// columnKeys returns the task keys of a column in position order.
func (e *testEnv) columnKeys(t *testing.T, status models.TaskStatus) []string {
	t.Helper()
	var keys []string
	if err := e.db.Model(&models.Task{}).
		Where("project_id = ? AND status = ?", e.project.ID, status).
		Order("position ASC").
		Pluck("task_key", &keys).Error; err != nil {
		t.Fatalf("column %s: %v", status, err)
	}
	return keys
}

func (e *testEnv) actions(t *testing.T, taskID string) []models.ActionType {
	t.Helper()
	activities, err := e.recorder.ListByTask(e.ctx, taskID)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	actions := make([]models.ActionType, 0, len(activities))
	for _, a := range activities {
		actions = append(actions, a.Action)
	}
	return actions
}
