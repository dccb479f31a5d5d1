package pg

import (
	"context"
	"database/sql"
	"errors"

	"staffdesk.org/internal/identity"
)

var _ identity.ProfileLookup = (*Store)(nil)

// Email resolves a subject's address from the admin directory, then from the
// user table.
func (s *Store) Email(ctx context.Context, subjectID string) (string, error) {
	if s.db == nil {
		return "", errNoDB
	}
	var email string
	err := s.db.QueryRowContext(ctx, `
		select email from admins where subject_id = $1 and email <> ''
		union all
		select email from users where id = $1 and email <> ''
		limit 1
	`, subjectID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", identity.ErrProfileNotFound
	}
	if err != nil {
		return "", err
	}
	return email, nil
}
