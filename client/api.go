// Package client holds the client side of the task API: transports that
// speak the task contract and the controller that owns a task collection.
package client

import (
	"context"

	"github.com/valeop/taskflow-manager/domain"
)

// TaskAPI is the contract a controller drives. Implementations return
// domain.ErrTaskNotFound for unknown ids and *domain.ValidationError for
// rejected input.
type TaskAPI interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}
