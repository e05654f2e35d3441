package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/valeop/taskflow-manager/domain"
)

type mockStore struct {
	mu    sync.Mutex
	tasks map[string]domain.Task
	err   error

	creates int
	updates int
}

func newMockStore(tasks ...domain.Task) *mockStore {
	m := &mockStore{tasks: make(map[string]domain.Task)}
	for _, t := range tasks {
		m.tasks[t.TaskID] = t
	}
	return m
}

func (m *mockStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if len(m.tasks) == 0 {
		return nil, domain.ErrNoTasks
	}
	out := make([]domain.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	domain.SortByCreatedDesc(out)
	return out, nil
}

func (m *mockStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Task{}, m.err
	}
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return t, nil
}

func (m *mockStore) CreateTask(ctx context.Context, t domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.creates++
	m.tasks[t.TaskID] = t
	return nil
}

func (m *mockStore) UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Task{}, m.err
	}
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	m.updates++
	upd.Apply(&t)
	m.tasks[id] = t
	return t, nil
}

func (m *mockStore) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.tasks[id]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func newTestServer(store Storage) (*echo.Echo, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	e := echo.New()
	e.JSONSerializer = SonicSerializer{}
	e.Use(ResponseHeaders(), CORS())
	Register(e, store, logger)
	return e, hook
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func sampleTask(id string, created time.Time) domain.Task {
	return domain.Task{
		TaskID:    id,
		Title:     "task " + id,
		Priority:  domain.PriorityMedium,
		Status:    domain.StatusPending,
		CreatedAt: created,
	}
}

func TestRoot(t *testing.T) {
	e, _ := newTestServer(newMockStore())
	rec := serve(e, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp messageResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != msgRunning {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestListTasksNewestFirst(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := newMockStore(sampleTask("a", base), sampleTask("b", base.Add(time.Hour)))
	e, _ := newTestServer(store)

	rec := serve(e, http.MethodGet, "/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 2 || tasks[0].TaskID != "b" || tasks[1].TaskID != "a" {
		t.Fatalf("unexpected order: %+v", tasks)
	}
}

func TestListTasksEmptyIsNotFound(t *testing.T) {
	e, _ := newTestServer(newMockStore())
	rec := serve(e, http.MethodGet, "/tasks", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decodeError(t, rec); got != domain.MsgNoTasks {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestListTasksStorageFailure(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("table unavailable")
	e, hook := newTestServer(store)

	rec := serve(e, http.MethodGet, "/tasks", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := decodeError(t, rec); got != msgListFailed {
		t.Fatalf("unexpected error %q", got)
	}
	if strings.Contains(rec.Body.String(), "table unavailable") {
		t.Fatalf("storage detail leaked to client: %s", rec.Body.String())
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.ErrorLevel {
		t.Fatalf("expected error level observability entry, got %#v", entry)
	}
	attrs := entry.Data["attributes"].(map[string]any)
	if attrs["error.message"] != "table unavailable" {
		t.Fatalf("expected cause in log attributes, got %#v", attrs["error.message"])
	}
}

func TestGetTask(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	e, _ := newTestServer(newMockStore(sampleTask("t1", created)))

	rec := serve(e, http.MethodGet, "/tasks/t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var task domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.TaskID != "t1" || !task.CreatedAt.Equal(created) {
		t.Fatalf("unexpected task %+v", task)
	}

	rec = serve(e, http.MethodGet, "/tasks/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decodeError(t, rec); got != domain.MsgTaskNotFound {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestCreateTaskUsesInjectedIDAndClock(t *testing.T) {
	store := newMockStore()
	logger, _ := test.NewNullLogger()
	now := time.Date(2024, 6, 2, 8, 30, 0, 0, time.UTC)
	h := createTask(store, logger, func() string { return "fixed-id" }, func() time.Time { return now })

	e := echo.New()
	body := `{"title":"Comprar pan","description":"integral","priority":"alta","dueDate":"2024-06-10"}`
	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	stored, ok := store.tasks["fixed-id"]
	if !ok {
		t.Fatalf("task not stored: %+v", store.tasks)
	}
	if stored.Status != domain.StatusPending {
		t.Fatalf("expected pending status, got %q", stored.Status)
	}
	if !stored.CreatedAt.Equal(now) {
		t.Fatalf("expected createdAt %v, got %v", now, stored.CreatedAt)
	}
	if stored.DueDate == nil || stored.DueDate.Format(time.DateOnly) != "2024-06-10" {
		t.Fatalf("unexpected due date %v", stored.DueDate)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "missing title", body: `{"priority":"alta"}`, wantMsg: domain.MsgTitleAndPriorityRequired},
		{name: "blank title", body: `{"title":"   ","priority":"alta"}`, wantMsg: domain.MsgTitleAndPriorityRequired},
		{name: "missing priority", body: `{"title":"x"}`, wantMsg: domain.MsgTitleAndPriorityRequired},
		{name: "unknown priority", body: `{"title":"x","priority":"urgente"}`},
		{name: "bad due date", body: `{"title":"x","priority":"baja","dueDate":"mañana"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			e, _ := newTestServer(store)
			rec := serve(e, http.MethodPost, "/tasks", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			msg := decodeError(t, rec)
			if tt.wantMsg != "" && msg != tt.wantMsg {
				t.Fatalf("unexpected error %q", msg)
			}
			if store.creates != 0 {
				t.Fatalf("expected nothing persisted, got %d creates", store.creates)
			}
		})
	}
}

func TestCreateTaskMalformedBody(t *testing.T) {
	bodies := map[string]string{
		"truncated":        `{"title":`,
		"trailing content": `{"title":"a","priority":"alta"} trailing`,
		"second value":     `{"title":"a","priority":"alta"}{"title":"b"}`,
		"null":             `null`,
		"array":            `[{"title":"a","priority":"alta"}]`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			store := newMockStore()
			e, _ := newTestServer(store)
			rec := serve(e, http.MethodPost, "/tasks", body)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := decodeError(t, rec); got != msgCreateFailed {
				t.Fatalf("unexpected error %q", got)
			}
			if store.creates != 0 {
				t.Fatalf("expected nothing persisted, got %d creates", store.creates)
			}
		})
	}
}

func TestCreateTaskRejectsInvalidUTF8(t *testing.T) {
	store := newMockStore()
	e, _ := newTestServer(store)
	rec := serve(e, http.MethodPost, "/tasks", "{\"title\":\"caf\xe9\",\"priority\":\"alta\"}")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeError(t, rec); got != domain.MsgInvalidText {
		t.Fatalf("unexpected error %q", got)
	}
	if store.creates != 0 {
		t.Fatalf("expected nothing persisted")
	}
}

func TestBodyTooLarge(t *testing.T) {
	big := `{"title":"` + strings.Repeat("a", maxBodySize) + `","priority":"alta"}`
	for _, method := range []string{http.MethodPost, http.MethodPut} {
		t.Run(method, func(t *testing.T) {
			store := newMockStore(sampleTask("t1", time.Now().UTC()))
			e, _ := newTestServer(store)
			target := "/tasks"
			if method == http.MethodPut {
				target = "/tasks/t1"
			}
			rec := serve(e, method, target, big)
			if rec.Code != http.StatusRequestEntityTooLarge {
				t.Fatalf("expected 413, got %d", rec.Code)
			}
			if got := decodeError(t, rec); got != msgBodyTooLarge {
				t.Fatalf("unexpected error %q", got)
			}
			if store.creates != 0 || store.updates != 0 {
				t.Fatalf("expected nothing written")
			}
		})
	}
}

func TestUpdateTaskMergesPresentFields(t *testing.T) {
	due := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	orig := sampleTask("t1", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	orig.Description = "keep me"
	orig.DueDate = &due
	store := newMockStore(orig)
	e, _ := newTestServer(store)

	rec := serve(e, http.MethodPut, "/tasks/t1", `{"status":"completada","taskId":"other"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TaskID != "t1" || got.Status != domain.StatusCompleted {
		t.Fatalf("unexpected task %+v", got)
	}
	if got.Title != orig.Title || got.Description != "keep me" || got.Priority != orig.Priority {
		t.Fatalf("absent fields changed: %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("due date changed: %v", got.DueDate)
	}
}

func TestUpdateTaskClearsDueDate(t *testing.T) {
	due := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	orig := sampleTask("t1", time.Now().UTC())
	orig.DueDate = &due
	store := newMockStore(orig)
	e, _ := newTestServer(store)

	rec := serve(e, http.MethodPut, "/tasks/t1", `{"dueDate":null}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.tasks["t1"].DueDate != nil {
		t.Fatalf("expected due date cleared, got %v", store.tasks["t1"].DueDate)
	}
	if !strings.Contains(rec.Body.String(), `"dueDate":null`) {
		t.Fatalf("expected null dueDate in body, got %s", rec.Body.String())
	}
}

func TestUpdateTaskErrors(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		body     string
		wantCode int
	}{
		{name: "not found", id: "missing", body: `{"title":"x"}`, wantCode: http.StatusNotFound},
		{name: "bad status", id: "t1", body: `{"status":"hecha"}`, wantCode: http.StatusBadRequest},
		{name: "null title", id: "t1", body: `{"title":null}`, wantCode: http.StatusBadRequest},
		{name: "wrong type", id: "t1", body: `{"priority":3}`, wantCode: http.StatusBadRequest},
		{name: "malformed", id: "t1", body: `{"title"`, wantCode: http.StatusInternalServerError},
		{name: "null body", id: "t1", body: `null`, wantCode: http.StatusInternalServerError},
		{name: "array body", id: "t1", body: `[]`, wantCode: http.StatusInternalServerError},
		{name: "trailing content", id: "t1", body: `{"title":"x"} {}`, wantCode: http.StatusInternalServerError},
		{name: "invalid utf8", id: "t1", body: "{\"description\":\"caf\xe9\"}", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore(sampleTask("t1", time.Now().UTC()))
			e, _ := newTestServer(store)
			rec := serve(e, http.MethodPut, "/tasks/"+tt.id, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if store.updates != 0 {
				t.Fatalf("expected no update applied, got %d", store.updates)
			}
		})
	}
}

func TestUpdateTaskEmptyBodyReturnsCurrent(t *testing.T) {
	orig := sampleTask("t1", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	e, _ := newTestServer(newMockStore(orig))

	rec := serve(e, http.MethodPut, "/tasks/t1", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Title != orig.Title || got.Status != orig.Status {
		t.Fatalf("unexpected task %+v", got)
	}
}

func TestDeleteTask(t *testing.T) {
	store := newMockStore(sampleTask("t1", time.Now().UTC()))
	e, _ := newTestServer(store)

	rec := serve(e, http.MethodDelete, "/tasks/t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp messageResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != msgDeleted {
		t.Fatalf("unexpected message %q", resp.Message)
	}

	rec = serve(e, http.MethodDelete, "/tasks/t1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestResponseHeadersOnEveryOutcome(t *testing.T) {
	failing := newMockStore()
	failing.err = errors.New("boom")
	okStore := newMockStore(sampleTask("t1", time.Now().UTC()))

	cases := []struct {
		name   string
		store  Storage
		method string
		target string
		body   string
	}{
		{name: "ok", store: okStore, method: http.MethodGet, target: "/tasks/t1"},
		{name: "not found", store: okStore, method: http.MethodGet, target: "/tasks/nope"},
		{name: "bad request", store: okStore, method: http.MethodPost, target: "/tasks", body: `{"title":""}`},
		{name: "server error", store: failing, method: http.MethodGet, target: "/tasks"},
		{name: "unknown route", store: okStore, method: http.MethodGet, target: "/nowhere"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestServer(tc.store)
			rec := serve(e, tc.method, tc.target, tc.body)
			h := rec.Header()
			if got := h.Get(echo.HeaderAccessControlAllowOrigin); got != "*" {
				t.Fatalf("allow-origin = %q", got)
			}
			if got := h.Get(echo.HeaderAccessControlAllowCredentials); got != "true" {
				t.Fatalf("allow-credentials = %q", got)
			}
			if got := h.Get(echo.HeaderContentType); !strings.HasPrefix(got, echo.MIMEApplicationJSON) {
				t.Fatalf("content-type = %q", got)
			}
		})
	}
}

func TestPreflight(t *testing.T) {
	e, _ := newTestServer(newMockStore())
	req := httptest.NewRequest(http.MethodOptions, "/tasks", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:5173")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPut)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "*" {
		t.Fatalf("allow-origin = %q", got)
	}
}

func TestTaskLifecycle(t *testing.T) {
	e, _ := newTestServer(newMockStore())

	rec := serve(e, http.MethodPost, "/tasks", `{"title":"Comprar pan","priority":"alta"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.TaskID == "" || created.Status != domain.StatusPending || created.DueDate != nil {
		t.Fatalf("unexpected created task %+v", created)
	}

	rec = serve(e, http.MethodGet, "/tasks", "")
	var listed []domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &listed); err != nil || len(listed) != 1 {
		t.Fatalf("expected one task, got %s (%v)", rec.Body.String(), err)
	}

	rec = serve(e, http.MethodPut, "/tasks/"+created.TaskID, `{"status":"completada"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"completada"`) {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(e, http.MethodDelete, "/tasks/"+created.TaskID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}

	rec = serve(e, http.MethodGet, "/tasks/"+created.TaskID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", rec.Code)
	}
	rec = serve(e, http.MethodGet, "/tasks", "")
	if rec.Code != http.StatusNotFound || decodeError(t, rec) != domain.MsgNoTasks {
		t.Fatalf("list after delete: %d %s", rec.Code, rec.Body.String())
	}
}
