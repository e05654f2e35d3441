package storage

import (
	"encoding/json"
	"time"

	"github.com/valeop/taskflow-manager/domain"
)

// taskPartition is the single partition every task row lives in.
const taskPartition = "TASK"

type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

// taskEntity is a task row. PK holds the logical primary key, since '#' is
// not allowed inside table keys.
type taskEntity struct {
	entity
	PK          string `json:"PK"`
	TaskID      string `json:"TaskId"`
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Priority    string `json:"Priority"`
	Status      string `json:"Status"`
	CreatedAt   string `json:"CreatedAt"`
	DueDate     string `json:"DueDate"`
}

// taskUpdateEntity merges changed columns into an existing row.
type taskUpdateEntity struct {
	entity
	Title       *string `json:"Title,omitempty"`
	Description *string `json:"Description,omitempty"`
	Priority    *string `json:"Priority,omitempty"`
	Status      *string `json:"Status,omitempty"`
	DueDate     *string `json:"DueDate,omitempty"`
}

func rowKey(id string) entity {
	return entity{PartitionKey: taskPartition, RowKey: id}
}

func encodeTask(t domain.Task) ([]byte, error) {
	ent := taskEntity{
		entity:      rowKey(t.TaskID),
		PK:          domain.TaskKey(t.TaskID),
		TaskID:      t.TaskID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339Nano),
		DueDate:     formatDueDate(t.DueDate),
	}
	return json.Marshal(ent)
}

func decodeTask(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	id := ent.TaskID
	if id == "" {
		id = ent.RowKey
	}
	t := domain.Task{
		TaskID:      id,
		Title:       ent.Title,
		Description: ent.Description,
		Priority:    domain.Priority(ent.Priority),
		Status:      domain.Status(ent.Status),
	}
	if ent.CreatedAt != "" {
		created, err := time.Parse(time.RFC3339Nano, ent.CreatedAt)
		if err != nil {
			return domain.Task{}, err
		}
		t.CreatedAt = created.UTC()
	}
	// Rows written with the empty-string sentinel decode to no due date.
	due, err := domain.ParseDueDate(ent.DueDate)
	if err != nil {
		return domain.Task{}, err
	}
	t.DueDate = due
	return t, nil
}

func encodeUpdate(id string, upd domain.TaskUpdate) ([]byte, error) {
	ent := taskUpdateEntity{entity: rowKey(id)}
	if upd.Title.Present() {
		ent.Title = &upd.Title.Value
	}
	if upd.Description.Set {
		desc := upd.Description.Value
		if upd.Description.Null {
			desc = ""
		}
		ent.Description = &desc
	}
	if upd.Priority.Present() {
		p := string(upd.Priority.Value)
		ent.Priority = &p
	}
	if upd.Status.Present() {
		s := string(upd.Status.Value)
		ent.Status = &s
	}
	if upd.DueDate.Set {
		var due string
		if !upd.DueDate.Null {
			due = formatDueDate(&upd.DueDate.Value)
		}
		ent.DueDate = &due
	}
	return json.Marshal(ent)
}

func formatDueDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
