package finding

import (
	"context"
	"sort"
	"sync"

	"github.com/de-tools/storage-guard/pkg/models/domain"
)

// memoryStore is a Store with the same uniqueness and version semantics as the SQL store.
type memoryStore struct {
	mu       sync.Mutex
	findings map[string]domain.Finding

	// beforeWrite runs once before the next Create or Update, used to inject races.
	beforeWrite func(s *memoryStore)
	creates     int
	updates     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{findings: make(map[string]domain.Finding)}
}

func (s *memoryStore) hook() {
	if s.beforeWrite != nil {
		h := s.beforeWrite
		s.beforeWrite = nil
		h(s)
	}
}

func (s *memoryStore) FindByKey(_ context.Context, resourceID, controlID string) (domain.Finding, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.findings {
		if f.ResourceID == resourceID && f.ControlID == controlID {
			return f, true, nil
		}
	}
	return domain.Finding{}, false, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (domain.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.findings[id]
	if !ok {
		return domain.Finding{}, ErrNotFound
	}
	return f, nil
}

func (s *memoryStore) Create(_ context.Context, f domain.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook()
	s.creates++
	for _, existing := range s.findings {
		if existing.ResourceID == f.ResourceID && existing.ControlID == f.ControlID {
			return ErrDuplicate
		}
	}
	s.findings[f.ID] = f
	return nil
}

func (s *memoryStore) Update(_ context.Context, f domain.Finding, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook()
	s.updates++
	current, ok := s.findings[f.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrStale
	}
	s.findings[f.ID] = f
	return nil
}

func (s *memoryStore) List(_ context.Context, filter domain.FindingFilter) (domain.FindingPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.Finding
	for _, f := range s.findings {
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		items = append(items, f)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].RiskScore > items[j].RiskScore })
	return domain.FindingPage{Items: items, Total: len(items)}, nil
}

func (s *memoryStore) Statistics(_ context.Context, _ string) (domain.FindingStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := domain.FindingStatistics{BySeverity: map[domain.Severity]int{}}
	for _, f := range s.findings {
		if f.Status == domain.FindingStatusOpen || f.Status == domain.FindingStatusSuppressed {
			stats.Total++
			stats.BySeverity[f.Severity]++
		}
	}
	return stats, nil
}

func (s *memoryStore) all() []domain.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Finding, 0, len(s.findings))
	for _, f := range s.findings {
		out = append(out, f)
	}
	return out
}
