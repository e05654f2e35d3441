package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/valeop/taskflow-manager/domain"
)

// tableClient is the subset of *aztables.Client used by Storage.
type tableClient interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// Storage persists tasks in a single Azure table.
type Storage struct {
	taskTable tableClient
}

// New creates a Storage for the given table from a connection string.
func New(connStr, tasksTable string) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				// Requests fail fast; callers see storage errors as-is.
				MaxRetries: -1,
				TryTimeout: 30 * time.Second,
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{taskTable: svc.NewClient(tasksTable)}, nil
}

// ListTasks returns all tasks, newest first. It returns domain.ErrNoTasks when
// the table holds none.
func (s *Storage) ListTasks(ctx context.Context) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + taskPartition + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTask(e)
			if err != nil {
				return nil, fmt.Errorf("decode task: %w", err)
			}
			tasks = append(tasks, t)
		}
	}
	if len(tasks) == 0 {
		return nil, domain.ErrNoTasks
	}
	domain.SortByCreatedDesc(tasks)
	return tasks, nil
}

// GetTask fetches a task by id.
func (s *Storage) GetTask(ctx context.Context, id string) (domain.Task, error) {
	if !validID(id) {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	ent, err := s.taskTable.GetEntity(ctx, taskPartition, id, nil)
	if err != nil {
		return domain.Task{}, mapNotFound(err)
	}
	t, err := decodeTask(ent.Value)
	if err != nil {
		return domain.Task{}, fmt.Errorf("decode task %s: %w", id, err)
	}
	return t, nil
}

// CreateTask inserts a new task row.
func (s *Storage) CreateTask(ctx context.Context, t domain.Task) error {
	if !validID(t.TaskID) {
		return fmt.Errorf("invalid task id %q", t.TaskID)
	}
	payload, err := encodeTask(t)
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, payload, nil)
	return err
}

// UpdateTask merges the present fields of upd into an existing task and
// returns the full result. Concurrent writers race; the last merge wins.
func (s *Storage) UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) (domain.Task, error) {
	current, err := s.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if upd.Empty() {
		return current, nil
	}
	payload, err := encodeUpdate(id, upd)
	if err != nil {
		return domain.Task{}, err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		return domain.Task{}, mapNotFound(err)
	}
	upd.Apply(&current)
	return current, nil
}

// DeleteTask removes a task, failing with domain.ErrTaskNotFound when absent.
func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.GetTask(ctx, id); err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err := s.taskTable.DeleteEntity(ctx, taskPartition, id, &aztables.DeleteEntityOptions{IfMatch: &et})
	return mapNotFound(err)
}

func mapNotFound(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return domain.ErrTaskNotFound
	}
	return err
}

// validID rejects ids that cannot be used as a row key.
func validID(id string) bool {
	if id == "" || len(id) > 512 {
		return false
	}
	if strings.ContainsAny(id, `/\#?`) {
		return false
	}
	for _, r := range id {
		if r < 0x20 || (r >= 0x7f && r <= 0x9f) {
			return false
		}
	}
	return true
}
