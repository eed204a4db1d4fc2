package services

import (
	"errors"
	"testing"

	"github.com/huangang/taskflow/internal/models"
)

func TestDefaultTransitions(t *testing.T) {
	tests := []struct {
		from, to models.TaskStatus
		want     bool
	}{
		{models.TaskStatusTodo, models.TaskStatusInProgress, true},
		{models.TaskStatusTodo, models.TaskStatusDone, false},
		{models.TaskStatusTodo, models.TaskStatusArchived, true},
		{models.TaskStatusInProgress, models.TaskStatusTodo, true},
		{models.TaskStatusInProgress, models.TaskStatusDone, true},
		{models.TaskStatusDone, models.TaskStatusInProgress, true},
		{models.TaskStatusDone, models.TaskStatusTodo, false},
		{models.TaskStatusArchived, models.TaskStatusTodo, true},
		{models.TaskStatusArchived, models.TaskStatusDone, false},
		{models.TaskStatusDone, models.TaskStatusDone, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := DefaultTransitions.CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestTransitionPolicy_Check(t *testing.T) {
	if err := DefaultTransitions.Check(models.TaskStatusTodo, "BLOCKED"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown status: expected ErrInvalidInput, got %v", err)
	}
	err := DefaultTransitions.Check(models.TaskStatusTodo, models.TaskStatusDone)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err.Error() != "invalid status transition: TODO -> DONE" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestTaskService_CustomTransitionPolicy(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.SetTransitionPolicy(TransitionPolicy{
		models.TaskStatusTodo: {models.TaskStatusDone},
	})
	task := env.newTask(t, "shortcut")

	done := models.TaskStatusDone
	if _, err := env.tasks.Update(env.ctx, env.alice, task.ID, &UpdateTaskRequest{Status: &done}); err != nil {
		t.Fatalf("TODO -> DONE under custom policy: %v", err)
	}
	inProgress := models.TaskStatusInProgress
	if _, err := env.tasks.Update(env.ctx, env.alice, task.ID, &UpdateTaskRequest{Status: &inProgress}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("DONE -> IN_PROGRESS: expected ErrInvalidTransition, got %v", err)
	}
}
