package users

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("users: not found")
	ErrInvalidInput      = errors.New("users: invalid input")
	ErrInsufficientFunds = errors.New("users: credit balance cannot go negative")
)

// User is an end-user account as seen by the back office.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Credits     int64     `json:"credits"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Patch holds the mutable fields; nil means unchanged.
type Patch struct {
	Email       *string `json:"email,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	Disabled    *bool   `json:"disabled,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Email == nil && p.DisplayName == nil && p.Disabled == nil
}

// ListOptions selects a page of users ordered by id.
type ListOptions struct {
	EmailPrefix string
	After       string
	Limit       int
}

// Summary aggregates the user base for the analytics view.
type Summary struct {
	TotalUsers    int       `json:"total_users"`
	DisabledUsers int       `json:"disabled_users"`
	TotalCredits  int64     `json:"total_credits"`
	NewLast7Days  int       `json:"new_last_7_days"`
	NewLast30Days int       `json:"new_last_30_days"`
	AdminCount    int       `json:"admin_count"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Store persists users. AdjustCredits must apply the delta atomically and
// return ErrInsufficientFunds instead of going below zero.
type Store interface {
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context, opts ListOptions) ([]User, error)
	UpdateUser(ctx context.Context, id string, p Patch, now time.Time) (before, after User, err error)
	DeleteUser(ctx context.Context, id string) (User, error)
	AdjustCredits(ctx context.Context, id string, delta int64, now time.Time) (before, after User, err error)
	// Summarize fills every Summary field except AdminCount.
	Summarize(ctx context.Context, now time.Time) (Summary, error)
}
