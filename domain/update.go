package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

var errNotObject = errors.New("update body is not a JSON object")

// TaskUpdate carries a partial update. Only fields that are Set are applied.
type TaskUpdate struct {
	Title       Optional[string]
	Description Optional[string]
	Priority    Optional[Priority]
	Status      Optional[Status]
	DueDate     Optional[time.Time]
}

// Empty reports whether the update changes nothing.
func (u TaskUpdate) Empty() bool {
	return !u.Title.Set && !u.Description.Set && !u.Priority.Set && !u.Status.Set && !u.DueDate.Set
}

// Validate rejects values that would break task invariants. Description and
// due date accept null, which clears them.
func (u TaskUpdate) Validate() error {
	if u.Title.Set && (u.Title.Null || strings.TrimSpace(u.Title.Value) == "") {
		return &ValidationError{Field: "title", Msg: "el título no puede estar vacío"}
	}
	if err := validText("title", u.Title.Value); err != nil {
		return err
	}
	if err := validText("description", u.Description.Value); err != nil {
		return err
	}
	if u.Priority.Set && (u.Priority.Null || !u.Priority.Value.Valid()) {
		return &ValidationError{Field: "priority", Msg: "prioridad inválida"}
	}
	if u.Status.Set && (u.Status.Null || !u.Status.Value.Valid()) {
		return &ValidationError{Field: "status", Msg: "estado inválido"}
	}
	return nil
}

// Apply merges the present fields into t.
func (u TaskUpdate) Apply(t *Task) {
	if u.Title.Present() {
		t.Title = u.Title.Value
	}
	if u.Description.Set {
		t.Description = u.Description.Value
		if u.Description.Null {
			t.Description = ""
		}
	}
	if u.Priority.Present() {
		t.Priority = u.Priority.Value
	}
	if u.Status.Present() {
		t.Status = u.Status.Value
	}
	if u.DueDate.Set {
		if u.DueDate.Null {
			t.DueDate = nil
		} else {
			due := u.DueDate.Value.UTC()
			t.DueDate = &due
		}
	}
}

// UnmarshalJSON records which keys were present in the payload. Unknown keys
// are ignored, including the immutable taskId and createdAt. The payload must
// be a JSON object; null is not an empty update.
func (u *TaskUpdate) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := sonic.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errNotObject
	}
	*u = TaskUpdate{}
	if err := decodeField(raw, "title", &u.Title); err != nil {
		return err
	}
	if err := decodeField(raw, "description", &u.Description); err != nil {
		return err
	}
	if err := decodeField(raw, "priority", &u.Priority); err != nil {
		return err
	}
	if err := decodeField(raw, "status", &u.Status); err != nil {
		return err
	}

	var due Optional[string]
	if err := decodeField(raw, "dueDate", &due); err != nil {
		return err
	}
	if due.Set {
		t, err := ParseDueDate(due.Value)
		if err != nil {
			return err
		}
		if t == nil {
			u.DueDate = Null[time.Time]()
		} else {
			u.DueDate = Some(*t)
		}
	}
	return nil
}

// MarshalJSON emits only the present keys, null for explicit nulls.
func (u TaskUpdate) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 5)
	putField(out, "title", u.Title)
	putField(out, "description", u.Description)
	putField(out, "priority", u.Priority)
	putField(out, "status", u.Status)
	if u.DueDate.Set {
		if u.DueDate.Null {
			out["dueDate"] = nil
		} else {
			out["dueDate"] = u.DueDate.Value.UTC().Format(time.RFC3339Nano)
		}
	}
	return sonic.Marshal(out)
}

func decodeField[T any](raw map[string]json.RawMessage, key string, dst *Optional[T]) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		*dst = Null[T]()
		return nil
	}
	var val T
	if err := sonic.Unmarshal(v, &val); err != nil {
		return &ValidationError{Field: key, Msg: "tipo inválido"}
	}
	*dst = Some(val)
	return nil
}

func putField[T any](out map[string]any, key string, o Optional[T]) {
	if !o.Set {
		return
	}
	if o.Null {
		out[key] = nil
		return
	}
	out[key] = o.Value
}
