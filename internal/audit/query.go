package audit

import (
	"context"
	"errors"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/rbac"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Page selects a window of results.
type Page struct {
	Limit  int
	Cursor string
}

// Result is one page of entries. HasMore is a hint: it is true whenever the
// page came back full, even if nothing follows.
type Result struct {
	Entries    []Entry `json:"entries"`
	NextCursor string  `json:"next_cursor,omitempty"`
	HasMore    bool    `json:"has_more"`
}

// Authorizer is satisfied by *auth.Gate.
type Authorizer interface {
	Authorize(ctx context.Context, authHeader, required string) (auth.Identity, error)
}

// Query serves the audit trail to admins holding audit:read.
type Query struct {
	gate  Authorizer
	store Store
}

func NewQuery(gate Authorizer, store Store) (*Query, error) {
	if gate == nil || store == nil {
		return nil, errors.New("audit: query requires a gate and a store")
	}
	return &Query{gate: gate, store: store}, nil
}

// Run authorizes authHeader for audit:read and returns the requested page.
func (q *Query) Run(ctx context.Context, authHeader string, f Filter, p Page) (Result, error) {
	if _, err := q.gate.Authorize(ctx, authHeader, rbac.PermAuditRead); err != nil {
		return Result{}, err
	}
	after, err := DecodeCursor(p.Cursor)
	if err != nil {
		return Result{}, err
	}
	limit := ClampLimit(p.Limit)

	entries, err := q.store.List(ctx, f, after, limit)
	if err != nil {
		return Result{}, err
	}
	res := Result{Entries: entries, HasMore: len(entries) == limit}
	if res.Entries == nil {
		res.Entries = []Entry{}
	}
	if res.HasMore {
		res.NextCursor = EncodeCursor(entries[len(entries)-1])
	}
	return res, nil
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
