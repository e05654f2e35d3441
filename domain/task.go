package domain

import (
	"sort"
	"strings"
	"time"
)

// Priority ranks a task.
type Priority string

const (
	PriorityHigh   Priority = "alta"
	PriorityMedium Priority = "media"
	PriorityLow    Priority = "baja"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Status is the completion state of a task.
type Status string

const (
	StatusPending   Status = "pendiente"
	StatusCompleted Status = "completada"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// Toggled returns the opposite status.
func (s Status) Toggled() Status {
	if s == StatusCompleted {
		return StatusPending
	}
	return StatusCompleted
}

// KeyPrefix prefixes task ids to form the logical primary key of a record.
const KeyPrefix = "TASK#"

// TaskKey returns the primary key for the given task id.
func TaskKey(id string) string {
	return KeyPrefix + id
}

// Task is a single to-do item.
type Task struct {
	TaskID      string     `json:"taskId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	DueDate     *time.Time `json:"dueDate"`
}

// TaskDraft carries the caller supplied fields of a new task.
type TaskDraft struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// Validate checks the required fields of a draft.
func (d TaskDraft) Validate() error {
	if strings.TrimSpace(d.Title) == "" || d.Priority == "" {
		return &ValidationError{Msg: MsgTitleAndPriorityRequired}
	}
	if !d.Priority.Valid() {
		return &ValidationError{Field: "priority", Msg: "prioridad inválida"}
	}
	if err := validText("title", d.Title); err != nil {
		return err
	}
	return validText("description", d.Description)
}

// NewTask builds a pending task from a validated draft.
func NewTask(d TaskDraft, id string, now time.Time) (Task, error) {
	if err := d.Validate(); err != nil {
		return Task{}, err
	}
	t := Task{
		TaskID:      id,
		Title:       d.Title,
		Description: d.Description,
		Priority:    d.Priority,
		Status:      StatusPending,
		CreatedAt:   now.UTC(),
	}
	if d.DueDate != nil {
		due := d.DueDate.UTC()
		t.DueDate = &due
	}
	return t, nil
}

// ParseDueDate parses a due date as sent by clients. The empty string means
// no due date.
func ParseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, &ValidationError{Field: "dueDate", Msg: "fecha límite inválida"}
}

// SortByCreatedDesc orders tasks newest first. Ties are broken by id so the
// order is stable across table scans.
func SortByCreatedDesc(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].TaskID > tasks[j].TaskID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}
