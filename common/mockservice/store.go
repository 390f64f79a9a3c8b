package mockservice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kp-forecasting/forecast-client/common/clients"
)

// ErrNotFound is returned when a task or artifact does not exist
var ErrNotFound = errors.New("not found")

// Task is the server-side record of an upload
type Task struct {
	ID              string
	ProductID       string
	FileName        string
	State           clients.TaskState
	ResultReference string
	ErrorDetail     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StoredArtifact is a processed file waiting to be downloaded
type StoredArtifact struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Store keeps tasks and artifacts
type Store interface {
	SaveTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, id string) (Task, error)
	SaveArtifact(ctx context.Context, ref string, artifact StoredArtifact) error
	GetArtifact(ctx context.Context, ref string) (StoredArtifact, error)
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu        sync.RWMutex
	tasks     map[string]Task
	artifacts map[string]StoredArtifact
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:     make(map[string]Task),
		artifacts: make(map[string]StoredArtifact),
	}
}

func (s *MemoryStore) SaveTask(ctx context.Context, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return task, nil
}

func (s *MemoryStore) SaveArtifact(ctx context.Context, ref string, artifact StoredArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[ref] = artifact
	return nil
}

func (s *MemoryStore) GetArtifact(ctx context.Context, ref string) (StoredArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	artifact, ok := s.artifacts[ref]
	if !ok {
		return StoredArtifact{}, ErrNotFound
	}
	return artifact, nil
}

// DeleteArtifact drops an artifact, making its reference stale
func (s *MemoryStore) DeleteArtifact(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, ref)
}
