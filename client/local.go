package client

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/valeop/taskflow-manager/domain"
)

// LocalStore keeps tasks in a single JSON file, newest first. It follows the
// same contract as the HTTP API so a controller can run without a server.
type LocalStore struct {
	path  string
	newID func() string
	now   func() time.Time

	mu sync.Mutex
}

// NewLocalStore returns a store backed by the file at path. The file is
// created on the first write.
func NewLocalStore(path string) *LocalStore {
	return &LocalStore{path: path, newID: uuid.NewString, now: time.Now}
}

func (s *LocalStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *LocalStore) CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	task, err := domain.NewTask(draft, s.newID(), s.now())
	if err != nil {
		return domain.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.load()
	if err != nil {
		return domain.Task{}, err
	}
	tasks = append([]domain.Task{task}, tasks...)
	if err := s.save(tasks); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (s *LocalStore) UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) (domain.Task, error) {
	if err := upd.Validate(); err != nil {
		return domain.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.load()
	if err != nil {
		return domain.Task{}, err
	}
	i := indexOf(tasks, id)
	if i < 0 {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	if upd.Empty() {
		return tasks[i], nil
	}
	upd.Apply(&tasks[i])
	if err := s.save(tasks); err != nil {
		return domain.Task{}, err
	}
	return tasks[i], nil
}

func (s *LocalStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.load()
	if err != nil {
		return err
	}
	i := indexOf(tasks, id)
	if i < 0 {
		return domain.ErrTaskNotFound
	}
	tasks = append(tasks[:i], tasks[i+1:]...)
	return s.save(tasks)
}

func (s *LocalStore) load() ([]domain.Task, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.Task{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return []domain.Task{}, nil
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return tasks, nil
}

// save replaces the file atomically through a temp file in the same directory.
func (s *LocalStore) save(tasks []domain.Task) error {
	data, err := sonic.ConfigStd.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tasks-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func indexOf(tasks []domain.Task, id string) int {
	for i, t := range tasks {
		if t.TaskID == id {
			return i
		}
	}
	return -1
}
