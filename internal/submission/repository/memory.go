package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"coderank/internal/submission/model"
)

// MemorySubmissionStore keeps records in process memory. Records are copied on the way in and out.
type MemorySubmissionStore struct {
	mu      sync.RWMutex
	records map[string]*model.Submission
}

// NewMemorySubmissionStore creates an empty in-memory store.
func NewMemorySubmissionStore() *MemorySubmissionStore {
	return &MemorySubmissionStore{records: make(map[string]*model.Submission)}
}

func (m *MemorySubmissionStore) Create(_ context.Context, submission *model.Submission) error {
	if err := validateRecord(submission); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[submission.ID]; ok {
		return ErrSubmissionExists
	}
	m.records[submission.ID] = submission.Clone()
	return nil
}

func (m *MemorySubmissionStore) Get(_ context.Context, id string) (*model.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.records[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	return s.Clone(), nil
}

func (m *MemorySubmissionStore) Update(_ context.Context, submission *model.Submission) error {
	if err := validateRecord(submission); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[submission.ID]; !ok {
		return ErrSubmissionNotFound
	}
	m.records[submission.ID] = submission.Clone()
	return nil
}

func (m *MemorySubmissionStore) FindByOwner(_ context.Context, ownerID string, page, size int) (Page, error) {
	page, size = normalizePage(page, size)

	m.mu.RLock()
	owned := make([]*model.Submission, 0)
	for _, s := range m.records {
		if s.OwnerID == ownerID {
			owned = append(owned, s.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	result := Page{Total: int64(len(owned)), Page: page, Size: size, Items: []*model.Submission{}}
	start := page * size
	if start >= len(owned) {
		return result, nil
	}
	end := start + size
	if end > len(owned) {
		end = len(owned)
	}
	result.Items = owned[start:end]
	return result, nil
}

func (m *MemorySubmissionStore) FindByStatus(_ context.Context, status model.Status, createdBefore time.Time, limit int) ([]*model.Submission, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	matched := make([]*model.Submission, 0)
	for _, s := range m.records {
		if s.Status == status && s.CreatedAt.Before(createdBefore) {
			matched = append(matched, s.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemorySubmissionStore) CountByOwnerSince(_ context.Context, ownerID string, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, s := range m.records {
		if s.OwnerID == ownerID && s.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}
