package directory

import (
	"context"
	"errors"
	"time"

	"staffdesk.org/internal/rbac"
)

var (
	ErrNotFound     = errors.New("directory: admin not found")
	ErrConflict     = errors.New("directory: admin already exists")
	ErrForbidden    = errors.New("directory: operation not permitted")
	ErrInvalidInput = errors.New("directory: invalid input")
)

// AdminRecord identifies a privileged subject. At most one exists per SubjectID.
type AdminRecord struct {
	SubjectID string    `json:"subject_id"`
	Email     string    `json:"email"`
	Role      rbac.Role `json:"role"`
	// Permissions is reserved for per-admin overrides. It is persisted and
	// returned but authorization only ever consults Role.
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists admin records keyed by subject id.
type Store interface {
	GetAdmin(ctx context.Context, subjectID string) (AdminRecord, error)
	CreateAdmin(ctx context.Context, rec AdminRecord) (AdminRecord, error)
	// CreateFirstAdmin inserts rec only if no admin exists yet, atomically.
	CreateFirstAdmin(ctx context.Context, rec AdminRecord) (AdminRecord, error)
	UpdateAdminRole(ctx context.Context, subjectID string, role rbac.Role) (AdminRecord, error)
	DeleteAdmin(ctx context.Context, subjectID string) error
	ListAdmins(ctx context.Context) ([]AdminRecord, error)
	CountAdmins(ctx context.Context) (int, error)
}
