package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

// fakeTable keeps rows as raw JSON keyed by row key and mimics the table
// service's merge semantics.
type fakeTable struct {
	mu       sync.Mutex
	rows     map[string]map[string]any
	pageSize int
	created  bool
	err      error
	deletes  int
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string]map[string]any{}, pageSize: 2}
}

func notFound() error {
	return &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "ResourceNotFound"}
}

func (f *fakeTable) CreateTable(ctx context.Context, _ *aztables.CreateTableOptions) (aztables.CreateTableResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.created {
		return aztables.CreateTableResponse{}, &azcore.ResponseError{StatusCode: http.StatusConflict, ErrorCode: string(aztables.TableAlreadyExists)}
	}
	f.created = true
	return aztables.CreateTableResponse{}, nil
}

func (f *fakeTable) GetEntity(ctx context.Context, pk, rk string, _ *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return aztables.GetEntityResponse{}, f.err
	}
	row, ok := f.rows[rk]
	if !ok || row["PartitionKey"] != pk {
		return aztables.GetEntityResponse{}, notFound()
	}
	data, _ := json.Marshal(row)
	return aztables.GetEntityResponse{Value: data}, nil
}

func (f *fakeTable) AddEntity(ctx context.Context, entity []byte, _ *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return aztables.AddEntityResponse{}, f.err
	}
	var row map[string]any
	if err := json.Unmarshal(entity, &row); err != nil {
		return aztables.AddEntityResponse{}, err
	}
	rk, _ := row["RowKey"].(string)
	if _, exists := f.rows[rk]; exists {
		return aztables.AddEntityResponse{}, &azcore.ResponseError{StatusCode: http.StatusConflict, ErrorCode: "EntityAlreadyExists"}
	}
	f.rows[rk] = row
	return aztables.AddEntityResponse{}, nil
}

func (f *fakeTable) UpdateEntity(ctx context.Context, entity []byte, opts *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var changes map[string]any
	if err := json.Unmarshal(entity, &changes); err != nil {
		return aztables.UpdateEntityResponse{}, err
	}
	rk, _ := changes["RowKey"].(string)
	row, ok := f.rows[rk]
	if !ok {
		return aztables.UpdateEntityResponse{}, notFound()
	}
	if opts == nil || opts.UpdateMode != aztables.UpdateModeMerge {
		row = map[string]any{}
	}
	for k, v := range changes {
		row[k] = v
	}
	f.rows[rk] = row
	return aztables.UpdateEntityResponse{}, nil
}

func (f *fakeTable) DeleteEntity(ctx context.Context, pk, rk string, _ *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[rk]; !ok {
		return aztables.DeleteEntityResponse{}, notFound()
	}
	delete(f.rows, rk)
	f.deletes++
	return aztables.DeleteEntityResponse{}, nil
}

// NewListEntitiesPager serves rows in pages of pageSize, in row key order.
func (f *fakeTable) NewListEntitiesPager(_ *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	f.mu.Lock()
	keys := make([]string, 0, len(f.rows))
	for k := range f.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pages := [][][]byte{}
	var page [][]byte
	for _, k := range keys {
		data, _ := json.Marshal(f.rows[k])
		page = append(page, data)
		if len(page) == f.pageSize {
			pages = append(pages, page)
			page = nil
		}
	}
	if len(page) > 0 || len(pages) == 0 {
		pages = append(pages, page)
	}
	listErr := f.err
	f.mu.Unlock()

	next := 0
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return next < len(pages) },
		Fetcher: func(ctx context.Context, _ *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			if listErr != nil {
				return aztables.ListEntitiesResponse{}, listErr
			}
			resp := aztables.ListEntitiesResponse{Entities: pages[next]}
			next++
			return resp, nil
		},
	})
}
