package directory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"staffdesk.org/internal/rbac"
)

// MemoryStore is an in-process Store used by tests and local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	admins map[string]AdminRecord
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(seed ...AdminRecord) *MemoryStore {
	m := &MemoryStore{admins: make(map[string]AdminRecord, len(seed))}
	for _, rec := range seed {
		m.admins[rec.SubjectID] = clone(rec)
	}
	return m
}

func (m *MemoryStore) GetAdmin(_ context.Context, subjectID string) (AdminRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.admins[subjectID]
	if !ok {
		return AdminRecord{}, ErrNotFound
	}
	return clone(rec), nil
}

func (m *MemoryStore) CreateAdmin(_ context.Context, rec AdminRecord) (AdminRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[rec.SubjectID]; ok {
		return AdminRecord{}, ErrConflict
	}
	m.admins[rec.SubjectID] = clone(rec)
	return clone(rec), nil
}

func (m *MemoryStore) CreateFirstAdmin(_ context.Context, rec AdminRecord) (AdminRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.admins) > 0 {
		return AdminRecord{}, ErrConflict
	}
	m.admins[rec.SubjectID] = clone(rec)
	return clone(rec), nil
}

func (m *MemoryStore) UpdateAdminRole(_ context.Context, subjectID string, role rbac.Role) (AdminRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.admins[subjectID]
	if !ok {
		return AdminRecord{}, ErrNotFound
	}
	rec.Role = role
	m.admins[subjectID] = rec
	return clone(rec), nil
}

func (m *MemoryStore) DeleteAdmin(_ context.Context, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[subjectID]; !ok {
		return ErrNotFound
	}
	delete(m.admins, subjectID)
	return nil
}

func (m *MemoryStore) ListAdmins(_ context.Context) ([]AdminRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AdminRecord, 0, len(m.admins))
	for _, rec := range m.admins {
		out = append(out, clone(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SubjectID < out[j].SubjectID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) CountAdmins(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.admins), nil
}

func clone(rec AdminRecord) AdminRecord {
	rec.Permissions = slices.Clone(rec.Permissions)
	if rec.Permissions == nil {
		rec.Permissions = []string{}
	}
	return rec
}
