package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/newsinsight/docservice/internal/document"
)

// MemoryRepo is an in-memory repository used for local runs and unit tests.
// Records are copied on the way in and out so callers never share state with
// the store.
type MemoryRepo struct {
	mu     sync.RWMutex
	nextID int64
	store  map[int64]*document.Document
	now    func() time.Time
}

var _ Repository = (*MemoryRepo)(nil)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[int64]*document.Document), now: func() time.Time { return time.Now().UTC() }}
}

func (m *MemoryRepo) Create(ctx context.Context, doc *document.Document) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	d := clone(doc)
	d.ID = m.nextID
	d.UploadedAt = m.now()
	d.UpdatedAt = d.UploadedAt
	d.Revision = 0
	m.store[d.ID] = d
	return clone(d), nil
}

func (m *MemoryRepo) FindAll(ctx context.Context) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0, len(m.store))
	for _, d := range m.store {
		out = append(out, clone(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepo) FindByID(ctx context.Context, id int64) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return clone(d), nil
	}
	return nil, nil
}

func (m *MemoryRepo) UpdateResult(ctx context.Context, id int64, result map[string]any, status *document.Status, expectedRevision *int64) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	if expectedRevision != nil && *expectedRevision != d.Revision {
		return nil, ErrRevisionConflict
	}
	if changes(d, result, status) {
		d.Revision++
	}
	d.Result = copyResult(result)
	if status != nil {
		d.Status = *status
	}
	d.UpdatedAt = m.now()
	return clone(d), nil
}

func (m *MemoryRepo) FindStale(ctx context.Context, status document.Status, updatedBefore time.Time) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*document.Document{}
	for _, d := range m.store {
		if d.EffectiveStatus() == status && d.UpdatedAt.Before(updatedBefore) {
			out = append(out, clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func clone(d *document.Document) *document.Document {
	c := *d
	c.Result = copyResult(d.Result)
	return &c
}

func copyResult(r map[string]any) map[string]any {
	if r == nil {
		return nil
	}
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
