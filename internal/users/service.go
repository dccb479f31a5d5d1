package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxDisplayName   = 120
	maxReason        = 500
)

// AdminCounter reports how many admins exist.
type AdminCounter interface {
	Count(ctx context.Context) (int, error)
}

type Service struct {
	store  Store
	admins AdminCounter
	now    func() time.Time
}

func NewService(store Store, admins AdminCounter) (*Service, error) {
	if store == nil {
		return nil, errors.New("users: store is required")
	}
	return &Service{store: store, admins: admins, now: time.Now}, nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrNotFound
	}
	return s.store.GetUser(ctx, id)
}

// List returns one page of users ordered by id and the cursor for the next
// page, empty when the page was not full.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]User, string, error) {
	opts.EmailPrefix = strings.ToLower(strings.TrimSpace(opts.EmailPrefix))
	opts.After = strings.TrimSpace(opts.After)
	switch {
	case opts.Limit <= 0:
		opts.Limit = defaultListLimit
	case opts.Limit > maxListLimit:
		opts.Limit = maxListLimit
	}
	list, err := s.store.ListUsers(ctx, opts)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(list) == opts.Limit {
		next = list[len(list)-1].ID
	}
	return list, next, nil
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (before, after User, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, User{}, ErrNotFound
	}
	if p.Empty() {
		return User{}, User{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if p.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*p.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return User{}, User{}, fmt.Errorf("%w: email", ErrInvalidInput)
		}
		p.Email = &email
	}
	if p.DisplayName != nil {
		name := strings.TrimSpace(*p.DisplayName)
		if utf8.RuneCountInString(name) > maxDisplayName {
			return User{}, User{}, fmt.Errorf("%w: display_name too long", ErrInvalidInput)
		}
		p.DisplayName = &name
	}
	return s.store.UpdateUser(ctx, id, p, s.now().UTC())
}

func (s *Service) Delete(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrNotFound
	}
	return s.store.DeleteUser(ctx, id)
}

// AdjustCredits adds delta (which may be negative) to the user's balance.
func (s *Service) AdjustCredits(ctx context.Context, id string, delta int64, reason string) (before, after User, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, User{}, ErrNotFound
	}
	if delta == 0 {
		return User{}, User{}, fmt.Errorf("%w: delta must be non-zero", ErrInvalidInput)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" || utf8.RuneCountInString(reason) > maxReason {
		return User{}, User{}, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}
	return s.store.AdjustCredits(ctx, id, delta, s.now().UTC())
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	now := s.now().UTC()
	sum, err := s.store.Summarize(ctx, now)
	if err != nil {
		return Summary{}, err
	}
	if s.admins != nil {
		n, err := s.admins.Count(ctx)
		if err != nil {
			return Summary{}, fmt.Errorf("count admins: %w", err)
		}
		sum.AdminCount = n
	}
	sum.GeneratedAt = now
	return sum, nil
}
