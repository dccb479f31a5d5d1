package audit

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"staffdesk.org/internal/ids"
)

// MemoryStore is an append-only in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	last    time.Time
	now     func() time.Time

	// failWith, when set, makes every Append fail. Used to exercise failure paths.
	failWith error
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// FailAppends makes subsequent appends return err until called with nil.
func (m *MemoryStore) FailAppends(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

func (m *MemoryStore) Append(_ context.Context, e Entry) (Entry, error) {
	if strings.TrimSpace(e.AdminUID) == "" || strings.TrimSpace(e.Action) == "" {
		return Entry{}, ErrInvalidEntry
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return Entry{}, m.failWith
	}
	// Timestamps never go backwards so write order and sort order agree.
	ts := m.now().UTC()
	if ts.Before(m.last) {
		ts = m.last
	}
	m.last = ts
	e.Timestamp = ts
	e.ID = ids.NewAt(ts)
	e.Details = cloneDetails(e.Details)
	m.entries = append(m.entries, e)
	return copyEntry(e), nil
}

func (m *MemoryStore) List(_ context.Context, f Filter, after *Position, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.ActorID != "" && e.AdminUID != f.ActorID {
			continue
		}
		if after != nil && !after.Precedes(e) {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID > matched[j].ID
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]Entry, len(matched))
	for i, e := range matched {
		out[i] = copyEntry(e)
	}
	return out, nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func copyEntry(e Entry) Entry {
	e.Details = cloneDetails(e.Details)
	return e
}

func cloneDetails(d map[string]any) map[string]any {
	if d == nil {
		return map[string]any{}
	}
	return maps.Clone(d)
}
