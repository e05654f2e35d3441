package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/valeop/taskflow-manager/domain"
)

// Filter selects the visible subset of the collection.
type Filter string

const (
	FilterAll       Filter = "todas"
	FilterPending   Filter = "pendientes"
	FilterCompleted Filter = "completadas"
)

func (f Filter) Valid() bool {
	switch f {
	case FilterAll, FilterPending, FilterCompleted:
		return true
	}
	return false
}

// Counts summarises the collection.
type Counts struct {
	Total     int
	Pending   int
	Completed int
	// CompletionRate is the rounded percentage of completed tasks, 0 when
	// the collection is empty.
	CompletionRate int
}

// ErrBusy is returned when an action targets a task that still has a call
// in flight.
var ErrBusy = errors.New("task has an operation in progress")

// ErrInvalidFilter is returned by SetFilter for unknown filter values.
var ErrInvalidFilter = errors.New("invalid filter")

// creatingKey marks a create in flight; real ids are never empty.
const creatingKey = ""

// Controller owns the client task collection. The collection only changes
// after the API confirms a mutation, and it is always rebuilt from the task
// the API returned.
type Controller struct {
	api      TaskAPI
	notifier Notifier

	mu     sync.Mutex
	tasks  []domain.Task
	filter Filter
	busy   map[string]struct{}
}

// NewController returns a controller with an empty collection. A nil
// notifier discards notifications.
func NewController(api TaskAPI, notifier Notifier) *Controller {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Controller{
		api:      api,
		notifier: notifier,
		filter:   FilterAll,
		busy:     make(map[string]struct{}),
	}
}

// Load replaces the collection with the tasks the API returns.
func (c *Controller) Load(ctx context.Context) error {
	tasks, err := c.api.ListTasks(ctx)
	if errors.Is(err, domain.ErrNoTasks) {
		tasks, err = []domain.Task{}, nil
	}
	if err != nil {
		c.notifier.Notify(Notification{
			Level:       LevelError,
			Title:       "Error al cargar tareas",
			Description: "No se pudieron cargar las tareas. Intenta de nuevo.",
		})
		return err
	}

	c.mu.Lock()
	c.tasks = append([]domain.Task(nil), tasks...)
	c.mu.Unlock()
	return nil
}

// Create adds a task through the API and prepends the stored task. A Load
// that finished while the call was in flight may already hold it, in which
// case it is replaced in place.
func (c *Controller) Create(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	if err := c.acquire(creatingKey); err != nil {
		return domain.Task{}, err
	}
	defer c.release(creatingKey)

	task, err := c.api.CreateTask(ctx, draft)
	if err != nil {
		c.notifier.Notify(Notification{
			Level:       LevelError,
			Title:       "Error al crear tarea",
			Description: "No se pudo crear la tarea. Intenta de nuevo.",
		})
		return domain.Task{}, err
	}

	c.mu.Lock()
	if i := indexOf(c.tasks, task.TaskID); i >= 0 {
		c.tasks[i] = task
	} else {
		c.tasks = append([]domain.Task{task}, c.tasks...)
	}
	c.mu.Unlock()

	c.notifier.Notify(Notification{
		Level:       LevelInfo,
		Title:       "Tarea creada",
		Description: fmt.Sprintf("\"%s\" ha sido agregada correctamente.", task.Title),
	})
	return task, nil
}

// Update sends a partial update and replaces the task with the API result.
func (c *Controller) Update(ctx context.Context, id string, upd domain.TaskUpdate) (domain.Task, error) {
	if err := c.acquire(id); err != nil {
		return domain.Task{}, err
	}
	defer c.release(id)

	task, err := c.api.UpdateTask(ctx, id, upd)
	if err != nil {
		c.notifier.Notify(Notification{
			Level:       LevelError,
			Title:       "Error al actualizar",
			Description: "No se pudo actualizar la tarea.",
		})
		return domain.Task{}, err
	}
	c.replace(task)

	c.notifier.Notify(Notification{
		Level:       LevelInfo,
		Title:       "Tarea actualizada",
		Description: fmt.Sprintf("\"%s\" ha sido actualizada correctamente.", task.Title),
	})
	return task, nil
}

// Toggle flips a task between pendiente and completada.
func (c *Controller) Toggle(ctx context.Context, id string) (domain.Task, error) {
	if err := c.acquire(id); err != nil {
		return domain.Task{}, err
	}
	defer c.release(id)

	current, ok := c.find(id)
	if !ok {
		c.notifier.Notify(Notification{
			Level:       LevelError,
			Title:       "Error",
			Description: "No se pudo actualizar la tarea.",
		})
		return domain.Task{}, domain.ErrTaskNotFound
	}

	task, err := c.api.UpdateTask(ctx, id, domain.TaskUpdate{Status: domain.Some(current.Status.Toggled())})
	if err != nil {
		c.notifier.Notify(Notification{
			Level:       LevelError,
			Title:       "Error",
			Description: "No se pudo actualizar la tarea.",
		})
		return domain.Task{}, err
	}
	c.replace(task)

	action := "marcada como pendiente"
	if task.Status == domain.StatusCompleted {
		action = "completada"
	}
	c.notifier.Notify(Notification{
		Level:       LevelInfo,
		Title:       "Tarea " + action,
		Description: fmt.Sprintf("\"%s\" ha sido %s.", task.Title, action),
	})
	return task, nil
}

// Delete removes a task through the API and then from the collection.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.acquire(id); err != nil {
		return err
	}
	defer c.release(id)

	existing, known := c.find(id)
	if err := c.api.DeleteTask(ctx, id); err != nil {
		c.notifier.Notify(Notification{
			Level:       LevelError,
			Title:       "Error al eliminar",
			Description: "No se pudo eliminar la tarea.",
		})
		return err
	}

	c.mu.Lock()
	out := make([]domain.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		if t.TaskID != id {
			out = append(out, t)
		}
	}
	c.tasks = out
	c.mu.Unlock()

	desc := "La tarea ha sido eliminada."
	if known {
		desc = fmt.Sprintf("\"%s\" ha sido eliminada.", existing.Title)
	}
	c.notifier.Notify(Notification{Level: LevelInfo, Title: "Tarea eliminada", Description: desc})
	return nil
}

func (c *Controller) SetFilter(f Filter) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFilter, f)
	}
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
	return nil
}

func (c *Controller) Filter() Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Tasks returns a copy of the whole collection.
func (c *Controller) Tasks() []domain.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Task(nil), c.tasks...)
}

// Visible returns the tasks that match the current filter.
func (c *Controller) Visible() []domain.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		switch c.filter {
		case FilterPending:
			if t.Status != domain.StatusPending {
				continue
			}
		case FilterCompleted:
			if t.Status != domain.StatusCompleted {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

func (c *Controller) Counts() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	var counts Counts
	counts.Total = len(c.tasks)
	for _, t := range c.tasks {
		switch t.Status {
		case domain.StatusPending:
			counts.Pending++
		case domain.StatusCompleted:
			counts.Completed++
		}
	}
	if counts.Total > 0 {
		counts.CompletionRate = int(math.Round(float64(counts.Completed) / float64(counts.Total) * 100))
	}
	return counts
}

// Busy reports whether id has a call in flight.
func (c *Controller) Busy(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.busy[id]
	return ok
}

func (c *Controller) acquire(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.busy[id]; ok {
		return ErrBusy
	}
	c.busy[id] = struct{}{}
	return nil
}

func (c *Controller) release(id string) {
	c.mu.Lock()
	delete(c.busy, id)
	c.mu.Unlock()
}

func (c *Controller) find(id string) (domain.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tasks {
		if t.TaskID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

func (c *Controller) replace(task domain.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := indexOf(c.tasks, task.TaskID); i >= 0 {
		c.tasks[i] = task
	}
}
