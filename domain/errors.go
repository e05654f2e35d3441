package domain

import (
	"errors"
	"unicode/utf8"
)

// User facing messages shared by the API and its clients.
const (
	MsgTitleAndPriorityRequired = "Título y prioridad son requeridos"
	MsgTaskNotFound             = "Tarea no encontrada"
	MsgNoTasks                  = "No hay tareas disponibles"
	MsgInvalidText              = "El texto contiene caracteres no válidos"
)

var (
	// ErrTaskNotFound is returned when no task exists for an id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrNoTasks signals an empty collection on list, which callers report
	// separately from a failure.
	ErrNoTasks = errors.New("no tasks")
)

// ValidationError reports caller input that breaks a task invariant.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CheckUTF8 rejects payloads carrying bytes that are not valid UTF-8.
func CheckUTF8(b []byte) error {
	if !utf8.Valid(b) {
		return &ValidationError{Msg: MsgInvalidText}
	}
	return nil
}

func validText(field, s string) error {
	if !utf8.ValidString(s) {
		return &ValidationError{Field: field, Msg: MsgInvalidText}
	}
	return nil
}
