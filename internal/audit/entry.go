package audit

import (
	"context"
	"errors"
	"time"
)

// Entry is one immutable audit fact. The core never updates or deletes entries.
type Entry struct {
	ID         string         `json:"id"`
	AdminUID   string         `json:"admin_uid"`
	AdminEmail string         `json:"admin_email"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details"`
	IPAddress  string         `json:"ip_address"`
	UserAgent  string         `json:"user_agent"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Filter narrows a query by exact match. Empty fields match everything.
type Filter struct {
	Action  string `json:"action,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

// Position identifies an entry in (timestamp desc, id desc) order.
type Position struct {
	Timestamp time.Time
	ID        string
}

// Precedes reports whether p lists strictly ahead of e in (timestamp desc, id desc) order.
func (p Position) Precedes(e Entry) bool {
	if !e.Timestamp.Equal(p.Timestamp) {
		return e.Timestamp.Before(p.Timestamp)
	}
	return e.ID < p.ID
}

// Store persists audit entries. Append assigns ID and Timestamp.
// List returns entries newest first, strictly after the position when one is given.
type Store interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	List(ctx context.Context, f Filter, after *Position, limit int) ([]Entry, error)
}

var (
	ErrInvalidCursor = errors.New("audit: invalid cursor")
	ErrInvalidEntry  = errors.New("audit: invalid entry")
)
