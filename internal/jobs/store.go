// Package jobs implements job persistence, the execution event log, and the
// orchestrator that drives queued jobs through the segment pipeline.
package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dp-pcs/ttv-pipeline/internal/domain"
)

// ErrNotFound is returned when a job id has no record.
var ErrNotFound = errors.New("job not found")

// Store persists job records. Get and List return deep copies; Update
// applies a mutation atomically under the job's own guard. List pages
// newest first: offset skips records, limit <= 0 returns the remainder.
type Store interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, error)
	List(ctx context.Context, limit, offset int) ([]domain.Job, error)
	Update(ctx context.Context, id string, mutate func(*domain.Job) error) (domain.Job, error)
	Delete(ctx context.Context, id string) error
}

// memoryEntry pairs one job with its own mutex so concurrent updates to
// different jobs never contend.
type memoryEntry struct {
	mu  sync.Mutex
	job domain.Job
}

// MemoryStore is the in-process store used when no Redis address is
// configured. The outer lock guards only map membership.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return newMemoryStore(time.Now)
}

// NewMemoryStoreForTests creates a store with an injectable clock.
func NewMemoryStoreForTests(now func() time.Time) *MemoryStore {
	return newMemoryStore(now)
}

func newMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry), now: now}
}

// Create inserts a new job record.
func (s *MemoryStore) Create(ctx context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.ID]; exists {
		return errors.New("job already exists: " + job.ID)
	}
	s.entries[job.ID] = &memoryEntry{job: job.Clone()}
	return nil
}

// Get returns a deep copy of one job.
func (s *MemoryStore) Get(ctx context.Context, id string) (domain.Job, error) {
	entry, err := s.entry(id)
	if err != nil {
		return domain.Job{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.job.Clone(), nil
}

// List returns a page of deep copies, most recent first.
func (s *MemoryStore) List(ctx context.Context, limit, offset int) ([]domain.Job, error) {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	out := make([]domain.Job, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		out = append(out, entry.job.Clone())
		entry.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return pageOf(out, limit, offset), nil
}

// pageOf slices a newest-first listing by offset and limit.
func pageOf(jobs []domain.Job, limit, offset int) []domain.Job {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(jobs) {
		return nil
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs
}

// Update applies mutate under the job's guard and stamps UpdatedAt.
func (s *MemoryStore) Update(ctx context.Context, id string, mutate func(*domain.Job) error) (domain.Job, error) {
	entry, err := s.entry(id)
	if err != nil {
		return domain.Job{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	job := entry.job.Clone()
	if err := mutate(&job); err != nil {
		return domain.Job{}, err
	}
	job.UpdatedAt = s.now().UTC()
	entry.job = job
	return job.Clone(), nil
}

// Delete removes a job record. Deleting an unknown id returns ErrNotFound.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; !exists {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

// entry looks up the guarded record for one job id.
func (s *MemoryStore) entry(id string) (*memoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}
