package api

import (
	"context"
	"errors"

	"github.com/valeop/taskflow-manager/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	// ListTasks returns domain.ErrNoTasks when there is nothing to list.
	ListTasks(ctx context.Context) ([]domain.Task, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) error
	// UpdateTask returns the full task after merging upd.
	UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

const maxBodySize = 64 * 1024 // 64 KiB

var (
	errBodyTooLarge = errors.New("request body too large")
	errNotObject    = errors.New("request body is not a JSON object")
)

const (
	msgRunning      = "API de Gestión de Tareas está en funcionamiento"
	msgDeleted      = "Tarea eliminada correctamente"
	msgListFailed   = "No se pudieron obtener las tareas"
	msgGetFailed    = "No se pudo obtener la tarea"
	msgCreateFailed = "No se pudo crear la tarea"
	msgUpdateFailed = "No se pudo actualizar la tarea"
	msgDeleteFailed = "No se pudo eliminar la tarea"
	msgBodyTooLarge = "El cuerpo de la solicitud es demasiado grande"
	msgInvalidGzip  = "Cuerpo gzip inválido"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// createTaskRequest is the POST /tasks body. An empty or null dueDate means
// no due date.
type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	DueDate     string `json:"dueDate"`
}
