package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"staffdesk.org/internal/directory"
	"staffdesk.org/internal/rbac"
)

var _ directory.Store = (*Store)(nil)

const adminColumns = `subject_id, email, role, permissions, created_at`

func (s *Store) GetAdmin(ctx context.Context, subjectID string) (directory.AdminRecord, error) {
	if s.db == nil {
		return directory.AdminRecord{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `select `+adminColumns+` from admins where subject_id = $1`, subjectID)
	rec, err := scanAdmin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.AdminRecord{}, directory.ErrNotFound
	}
	return rec, err
}

func (s *Store) CreateAdmin(ctx context.Context, rec directory.AdminRecord) (directory.AdminRecord, error) {
	if s.db == nil {
		return directory.AdminRecord{}, errNoDB
	}
	return insertAdmin(ctx, s.db, rec)
}

// CreateFirstAdmin serializes bootstrap attempts with a table lock so two
// concurrent callers cannot both observe an empty directory.
func (s *Store) CreateFirstAdmin(ctx context.Context, rec directory.AdminRecord) (directory.AdminRecord, error) {
	if s.db == nil {
		return directory.AdminRecord{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return directory.AdminRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `lock table admins in share row exclusive mode`); err != nil {
		return directory.AdminRecord{}, err
	}
	var n int
	if err := tx.QueryRowContext(ctx, `select count(*) from admins`).Scan(&n); err != nil {
		return directory.AdminRecord{}, err
	}
	if n > 0 {
		return directory.AdminRecord{}, directory.ErrConflict
	}
	created, err := insertAdmin(ctx, tx, rec)
	if err != nil {
		return directory.AdminRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return directory.AdminRecord{}, err
	}
	return created, nil
}

func (s *Store) UpdateAdminRole(ctx context.Context, subjectID string, role rbac.Role) (directory.AdminRecord, error) {
	if s.db == nil {
		return directory.AdminRecord{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		update admins set role = $2
		where subject_id = $1
		returning `+adminColumns, subjectID, string(role))
	rec, err := scanAdmin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.AdminRecord{}, directory.ErrNotFound
	}
	return rec, err
}

func (s *Store) DeleteAdmin(ctx context.Context, subjectID string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from admins where subject_id = $1`, subjectID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return directory.ErrNotFound
	}
	return nil
}

func (s *Store) ListAdmins(ctx context.Context) ([]directory.AdminRecord, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+adminColumns+` from admins order by created_at, subject_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []directory.AdminRecord{}
	for rows.Next() {
		rec, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from admins`).Scan(&n)
	return n, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func insertAdmin(ctx context.Context, q queryRower, rec directory.AdminRecord) (directory.AdminRecord, error) {
	perms := rec.Permissions
	if perms == nil {
		perms = []string{}
	}
	permJSON, err := json.Marshal(perms)
	if err != nil {
		return directory.AdminRecord{}, fmt.Errorf("encode permissions: %w", err)
	}
	row := q.QueryRowContext(ctx, `
		insert into admins (subject_id, email, role, permissions, created_at)
		values ($1, $2, $3, $4, $5)
		returning `+adminColumns,
		rec.SubjectID, rec.Email, string(rec.Role), permJSON, rec.CreatedAt.UTC())
	created, err := scanAdmin(row)
	if err != nil {
		if isUniqueViolation(err) {
			return directory.AdminRecord{}, directory.ErrConflict
		}
		return directory.AdminRecord{}, err
	}
	return created, nil
}

func scanAdmin(row scanner) (directory.AdminRecord, error) {
	var (
		rec     directory.AdminRecord
		role    string
		rawPerm []byte
	)
	if err := row.Scan(&rec.SubjectID, &rec.Email, &role, &rawPerm, &rec.CreatedAt); err != nil {
		return directory.AdminRecord{}, err
	}
	rec.Role = rbac.Role(role)
	rec.Permissions = []string{}
	if len(rawPerm) > 0 {
		if err := json.Unmarshal(rawPerm, &rec.Permissions); err != nil {
			return directory.AdminRecord{}, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return rec, nil
}
