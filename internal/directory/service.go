package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"staffdesk.org/internal/rbac"
)

// Actor is the admin performing a directory write.
type Actor struct {
	SubjectID string
	Role      rbac.Role
}

// Service reads and writes the admin directory.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("directory store is required")
	}
	return &Service{store: store, now: time.Now}, nil
}

// Lookup returns the admin record for subjectID or ErrNotFound.
// Every call reads the store so revocations take effect on the next request.
func (s *Service) Lookup(ctx context.Context, subjectID string) (AdminRecord, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return AdminRecord{}, ErrNotFound
	}
	return s.store.GetAdmin(ctx, subjectID)
}

func (s *Service) List(ctx context.Context) ([]AdminRecord, error) {
	return s.store.ListAdmins(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.CountAdmins(ctx)
}

// Grant makes subjectID an admin with role. The actor may only grant roles
// ranked strictly below its own, and owner is never grantable.
func (s *Service) Grant(ctx context.Context, actor Actor, subjectID, email string, role rbac.Role) (AdminRecord, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return AdminRecord{}, fmt.Errorf("%w: subject_id is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return AdminRecord{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if role == rbac.RoleOwner {
		return AdminRecord{}, fmt.Errorf("%w: the owner role cannot be granted", ErrForbidden)
	}
	if !actor.Role.Outranks(role) {
		return AdminRecord{}, fmt.Errorf("%w: %s cannot grant %s", ErrForbidden, actor.Role, role)
	}
	return s.store.CreateAdmin(ctx, AdminRecord{
		SubjectID:   subjectID,
		Email:       strings.TrimSpace(strings.ToLower(email)),
		Role:        role,
		Permissions: []string{},
		CreatedAt:   s.now().UTC(),
	})
}

// ChangeRole moves subjectID to role. The actor must outrank both the
// current and the new role and may not change its own record.
func (s *Service) ChangeRole(ctx context.Context, actor Actor, subjectID string, role rbac.Role) (before, after AdminRecord, err error) {
	if !role.Valid() {
		return AdminRecord{}, AdminRecord{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if role == rbac.RoleOwner {
		return AdminRecord{}, AdminRecord{}, fmt.Errorf("%w: the owner role cannot be granted", ErrForbidden)
	}
	before, err = s.target(ctx, actor, subjectID)
	if err != nil {
		return AdminRecord{}, AdminRecord{}, err
	}
	if !actor.Role.Outranks(role) {
		return AdminRecord{}, AdminRecord{}, fmt.Errorf("%w: %s cannot grant %s", ErrForbidden, actor.Role, role)
	}
	after, err = s.store.UpdateAdminRole(ctx, before.SubjectID, role)
	if err != nil {
		return AdminRecord{}, AdminRecord{}, err
	}
	return before, after, nil
}

// Revoke deletes the admin record of subjectID.
func (s *Service) Revoke(ctx context.Context, actor Actor, subjectID string) (AdminRecord, error) {
	rec, err := s.target(ctx, actor, subjectID)
	if err != nil {
		return AdminRecord{}, err
	}
	if err := s.store.DeleteAdmin(ctx, rec.SubjectID); err != nil {
		return AdminRecord{}, err
	}
	return rec, nil
}

// Bootstrap creates the first admin as owner. It fails with ErrConflict once
// any admin exists.
func (s *Service) Bootstrap(ctx context.Context, subjectID, email string) (AdminRecord, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return AdminRecord{}, fmt.Errorf("%w: subject_id is required", ErrInvalidInput)
	}
	return s.store.CreateFirstAdmin(ctx, AdminRecord{
		SubjectID:   subjectID,
		Email:       strings.TrimSpace(strings.ToLower(email)),
		Role:        rbac.RoleOwner,
		Permissions: []string{},
		CreatedAt:   s.now().UTC(),
	})
}

func (s *Service) target(ctx context.Context, actor Actor, subjectID string) (AdminRecord, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return AdminRecord{}, fmt.Errorf("%w: subject_id is required", ErrInvalidInput)
	}
	if subjectID == actor.SubjectID {
		return AdminRecord{}, fmt.Errorf("%w: admins cannot modify their own record", ErrForbidden)
	}
	rec, err := s.store.GetAdmin(ctx, subjectID)
	if err != nil {
		return AdminRecord{}, err
	}
	if !actor.Role.Outranks(rec.Role) {
		return AdminRecord{}, fmt.Errorf("%w: %s cannot modify %s", ErrForbidden, actor.Role, rec.Role)
	}
	return rec, nil
}
