package jobstore

import (
	"context"
	"sort"
	"sync"

	"github.com/book-expert/audiobook-service/internal/core"
)

// MemoryStore is an in-memory core.JobStore for tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]core.Job
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu:   sync.RWMutex{},
		jobs: make(map[string]core.Job),
	}
}

// Insert stores a copy of the job record.
func (m *MemoryStore) Insert(_ context.Context, job *core.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs[job.ID] = *job

	return nil
}

// Get returns a copy of the job with the given id, or core.ErrJobNotFound.
func (m *MemoryStore) Get(_ context.Context, id string) (*core.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, core.ErrJobNotFound
	}

	return &job, nil
}

// Update replaces an existing job record.
func (m *MemoryStore) Update(_ context.Context, job *core.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.jobs[job.ID]
	if !ok {
		return core.ErrJobNotFound
	}

	m.jobs[job.ID] = *job

	return nil
}

// Delete removes a job record. Used by tests to simulate a job vanishing
// mid-stream; the service itself never deletes jobs.
func (m *MemoryStore) Delete(_ context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.jobs, id)
}

// ListRecent returns up to limit jobs, newest first.
func (m *MemoryStore) ListRecent(_ context.Context, limit int) ([]*core.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*core.Job, 0, len(m.jobs))

	for id := range m.jobs {
		job := m.jobs[id]
		jobs = append(jobs, &job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}

	return jobs, nil
}
