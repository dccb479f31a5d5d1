package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(seed ...User) *MemoryStore {
	m := &MemoryStore{users: make(map[string]User, len(seed))}
	for _, u := range seed {
		m.users[u.ID] = u
	}
	return m
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) ListUsers(_ context.Context, opts ListOptions) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		if opts.After != "" && u.ID <= opts.After {
			continue
		}
		if opts.EmailPrefix != "" && !strings.HasPrefix(strings.ToLower(u.Email), opts.EmailPrefix) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateUser(_ context.Context, id string, p Patch, now time.Time) (User, User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before, ok := m.users[id]
	if !ok {
		return User{}, User{}, ErrNotFound
	}
	after := before
	if p.Email != nil {
		after.Email = *p.Email
	}
	if p.DisplayName != nil {
		after.DisplayName = *p.DisplayName
	}
	if p.Disabled != nil {
		after.Disabled = *p.Disabled
	}
	after.UpdatedAt = now
	m.users[id] = after
	return before, after, nil
}

func (m *MemoryStore) DeleteUser(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	delete(m.users, id)
	return u, nil
}

func (m *MemoryStore) AdjustCredits(_ context.Context, id string, delta int64, now time.Time) (User, User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before, ok := m.users[id]
	if !ok {
		return User{}, User{}, ErrNotFound
	}
	if before.Credits+delta < 0 {
		return User{}, User{}, ErrInsufficientFunds
	}
	after := before
	after.Credits += delta
	after.UpdatedAt = now
	m.users[id] = after
	return before, after, nil
}

func (m *MemoryStore) Summarize(_ context.Context, now time.Time) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	week := now.AddDate(0, 0, -7)
	month := now.AddDate(0, 0, -30)
	var s Summary
	for _, u := range m.users {
		s.TotalUsers++
		s.TotalCredits += u.Credits
		if u.Disabled {
			s.DisabledUsers++
		}
		if !u.CreatedAt.Before(week) {
			s.NewLast7Days++
		}
		if !u.CreatedAt.Before(month) {
			s.NewLast30Days++
		}
	}
	return s, nil
}
