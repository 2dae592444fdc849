package jobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/web3dp/web3dpd/pipeline"
)

// Memory is an in-process job store. It is safe for concurrent use and
// hands out copies, never pointers into its own map.
type Memory struct {
	mu   sync.Mutex
	seq  int64
	jobs map[int64]pipeline.Job
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[int64]pipeline.Job)}
}

// Session returns the store itself: the memory store carries no per-session
// state.
func (m *Memory) Session() pipeline.Store {
	return m
}

func (m *Memory) Create(ctx context.Context, job *pipeline.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	job.ID = m.seq
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *Memory) Get(ctx context.Context, id int64) (*pipeline.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return &job, nil
}

func (m *Memory) List(ctx context.Context) ([]pipeline.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]pipeline.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (m *Memory) Update(ctx context.Context, job *pipeline.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, job.ID)
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *Memory) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}
