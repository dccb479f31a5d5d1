package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"staffdesk.org/internal/directory"
	"staffdesk.org/internal/identity"
	"staffdesk.org/internal/obs"
	"staffdesk.org/internal/rbac"
)

// Identity is an authorized admin.
type Identity struct {
	SubjectID string    `json:"subject_id"`
	Email     string    `json:"email"`
	Role      rbac.Role `json:"role"`
}

// AdminLookup resolves a verified subject to its admin record.
// A missing record must be reported as directory.ErrNotFound.
type AdminLookup interface {
	Lookup(ctx context.Context, subjectID string) (directory.AdminRecord, error)
}

// Gate is the single chokepoint every privileged request passes through.
// It holds no state across calls and performs no writes.
type Gate struct {
	verifier identity.Verifier
	admins   AdminLookup
}

func NewGate(verifier identity.Verifier, admins AdminLookup) (*Gate, error) {
	if verifier == nil {
		return nil, errors.New("auth: verifier is required")
	}
	if admins == nil {
		return nil, errors.New("auth: admin lookup is required")
	}
	return &Gate{verifier: verifier, admins: admins}, nil
}

// Authenticate performs the header check and token verification only.
func (g *Gate) Authenticate(ctx context.Context, authHeader string) (identity.Subject, error) {
	token, err := ParseBearer(authHeader)
	if err != nil {
		return identity.Subject{}, unauthenticated(err.Error())
	}
	subject, err := g.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			return identity.Subject{}, unauthenticated(identity.ErrInvalidToken.Error())
		}
		return identity.Subject{}, fmt.Errorf("%w: verify token: %v", ErrUnavailable, err)
	}
	return subject, nil
}

// Authorize returns the admin behind authHeader, requiring the permission
// named by required unless it is empty. Failures are either a *Rejection or
// an error wrapping ErrUnavailable.
func (g *Gate) Authorize(ctx context.Context, authHeader, required string) (Identity, error) {
	id, err := g.authorize(ctx, authHeader, strings.TrimSpace(required))
	obs.ObserveAuthz(outcome(err))
	return id, err
}

func (g *Gate) authorize(ctx context.Context, authHeader, required string) (Identity, error) {
	subject, err := g.Authenticate(ctx, authHeader)
	if err != nil {
		return Identity{}, err
	}

	rec, err := g.admins.Lookup(ctx, subject.ID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return Identity{}, permissionDenied("user is not an admin")
		}
		return Identity{}, fmt.Errorf("%w: lookup admin: %v", ErrUnavailable, err)
	}

	if required != "" && !rbac.HasPermission(rec.Role, required) {
		return Identity{}, permissionDenied("insufficient permissions, required: " + required)
	}

	email := subject.Email
	if email == "" {
		email = rec.Email
	}
	return Identity{SubjectID: subject.ID, Email: email, Role: rec.Role}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return obs.AuthzAllowed
	case IsUnauthenticated(err):
		return obs.AuthzUnauthenticated
	case IsPermissionDenied(err):
		return obs.AuthzDenied
	default:
		return obs.AuthzUnavailable
	}
}
