package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/valeop/taskflow-manager/domain"
)

const defaultTimeout = 10 * time.Second

// StatusError is returned for non-2xx responses the contract does not map
// to a domain error.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
}

// HTTPClient talks to the task API over HTTP.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPClient creates a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: defaultTimeout},
	}
}

// ListTasks returns every task, newest first. The API answers an empty
// collection with a 404 carrying MsgNoTasks, which is reported here as no
// tasks. Any other 404 is a *StatusError.
func (c *HTTPClient) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	err := c.do(ctx, http.MethodGet, "/tasks", nil, &tasks)
	if errors.Is(err, domain.ErrNoTasks) {
		return []domain.Task{}, nil
	}
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *HTTPClient) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var task domain.Task
	if err := c.do(ctx, http.MethodGet, taskPath(id), nil, &task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (c *HTTPClient) CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	var task domain.Task
	if err := c.do(ctx, http.MethodPost, "/tasks", draft, &task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (c *HTTPClient) UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) (domain.Task, error) {
	var task domain.Task
	if err := c.do(ctx, http.MethodPut, taskPath(id), upd, &task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (c *HTTPClient) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), nil, nil)
}

func taskPath(id string) string {
	return "/tasks/" + url.PathEscape(id)
}

type apiError struct {
	Error string `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := sonic.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	var apiErr apiError
	_ = sonic.Unmarshal(data, &apiErr)
	switch {
	case resp.StatusCode == http.StatusNotFound && apiErr.Error == domain.MsgTaskNotFound:
		return domain.ErrTaskNotFound
	case resp.StatusCode == http.StatusNotFound && apiErr.Error == domain.MsgNoTasks:
		return domain.ErrNoTasks
	case resp.StatusCode == http.StatusBadRequest && apiErr.Error != "":
		return &domain.ValidationError{Msg: apiErr.Error}
	default:
		return &StatusError{Code: resp.StatusCode, Message: apiErr.Error}
	}
}
