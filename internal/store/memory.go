package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bom-cli/internal/model"
)

// MemoryStore keeps jobs in process memory. It is the default store.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*model.Job)}
}

func (s *MemoryStore) PutJob(_ context.Context, job *model.Job) error {
	if job == nil || job.ID == "" {
		return eris.New("memory: job id is required")
	}
	cp := job.Clone()
	s.mu.Lock()
	s.jobs[job.ID] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id].Clone(), nil
}

func (s *MemoryStore) ListJobs(_ context.Context, filter JobFilter) ([]JobInfo, error) {
	s.mu.RLock()
	infos := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !filter.Since.IsZero() && j.CreatedAt.Before(filter.Since) {
			continue
		}
		infos = append(infos, JobInfo{ID: j.ID, Summary: j.Summary(), CreatedAt: j.CreatedAt})
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(a, b int) bool {
		if infos[a].CreatedAt.Equal(infos[b].CreatedAt) {
			return infos[a].ID < infos[b].ID
		}
		return infos[a].CreatedAt.After(infos[b].CreatedAt)
	})
	if filter.Offset >= len(infos) {
		return []JobInfo{}, nil
	}
	infos = infos[filter.Offset:]
	if len(infos) > filter.limit() {
		infos = infos[:filter.limit()]
	}
	return infos, nil
}

func (s *MemoryStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return eris.Errorf("job not found: %s", id)
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
