package services

import (
	"fmt"

	"github.com/huangang/taskflow/internal/models"
)

// TransitionPolicy lists the statuses reachable from each status.
type TransitionPolicy map[models.TaskStatus][]models.TaskStatus

// DefaultTransitions is the Kanban flow: work moves forward and back between
// adjacent columns, anything can be archived and archived work reopens as TODO.
var DefaultTransitions = TransitionPolicy{
	models.TaskStatusTodo:       {models.TaskStatusInProgress, models.TaskStatusArchived},
	models.TaskStatusInProgress: {models.TaskStatusTodo, models.TaskStatusDone, models.TaskStatusArchived},
	models.TaskStatusDone:       {models.TaskStatusInProgress, models.TaskStatusArchived},
	models.TaskStatusArchived:   {models.TaskStatusTodo},
}

// CanTransition reports whether from -> to is allowed. Staying in the same
// status is always allowed.
func (p TransitionPolicy) CanTransition(from, to models.TaskStatus) bool {
	if from == to {
		return true
	}
	for _, s := range p[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Check returns ErrInvalidTransition when from -> to is not allowed.
func (p TransitionPolicy) Check(from, to models.TaskStatus) error {
	if !to.Valid() {
		return invalidInput("invalid status %q", to)
	}
	if !p.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
