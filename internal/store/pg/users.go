package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"staffdesk.org/internal/users"
)

var _ users.Store = (*Store)(nil)

const userColumns = `id, email, display_name, credits, disabled, created_at, updated_at`

func (s *Store) GetUser(ctx context.Context, id string) (users.User, error) {
	if s.db == nil {
		return users.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return users.User{}, users.ErrNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context, opts users.ListOptions) ([]users.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users
		where ($1 = '' or id > $1)
		  and ($2 = '' or lower(email) like $2 || '%')
		order by id
		limit $3
	`, opts.After, escapeLike(opts.EmailPrefix), opts.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []users.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, id string, p users.Patch, now time.Time) (before, after users.User, err error) {
	if s.db == nil {
		return users.User{}, users.User{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return users.User{}, users.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	before, err = lockUser(ctx, tx, id)
	if err != nil {
		return users.User{}, users.User{}, err
	}
	after = before
	if p.Email != nil {
		after.Email = *p.Email
	}
	if p.DisplayName != nil {
		after.DisplayName = *p.DisplayName
	}
	if p.Disabled != nil {
		after.Disabled = *p.Disabled
	}
	after, err = scanUser(tx.QueryRowContext(ctx, `
		update users set email = $2, display_name = $3, disabled = $4, updated_at = $5
		where id = $1
		returning `+userColumns, id, after.Email, after.DisplayName, after.Disabled, now))
	if err != nil {
		return users.User{}, users.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return users.User{}, users.User{}, err
	}
	return before, after, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) (users.User, error) {
	if s.db == nil {
		return users.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `delete from users where id = $1 returning `+userColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return users.User{}, users.ErrNotFound
	}
	return u, err
}

func (s *Store) AdjustCredits(ctx context.Context, id string, delta int64, now time.Time) (before, after users.User, err error) {
	if s.db == nil {
		return users.User{}, users.User{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return users.User{}, users.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	before, err = lockUser(ctx, tx, id)
	if err != nil {
		return users.User{}, users.User{}, err
	}
	if before.Credits+delta < 0 {
		return users.User{}, users.User{}, users.ErrInsufficientFunds
	}
	after, err = scanUser(tx.QueryRowContext(ctx, `
		update users set credits = credits + $2, updated_at = $3
		where id = $1
		returning `+userColumns, id, delta, now))
	if err != nil {
		return users.User{}, users.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return users.User{}, users.User{}, err
	}
	return before, after, nil
}

func (s *Store) Summarize(ctx context.Context, now time.Time) (users.Summary, error) {
	if s.db == nil {
		return users.Summary{}, errNoDB
	}
	var sum users.Summary
	err := s.db.QueryRowContext(ctx, `
		select count(*),
		       count(*) filter (where disabled),
		       coalesce(sum(credits), 0),
		       count(*) filter (where created_at >= $1),
		       count(*) filter (where created_at >= $2)
		from users
	`, now.AddDate(0, 0, -7), now.AddDate(0, 0, -30)).Scan(
		&sum.TotalUsers, &sum.DisabledUsers, &sum.TotalCredits, &sum.NewLast7Days, &sum.NewLast30Days)
	if err != nil {
		return users.Summary{}, fmt.Errorf("summarize users: %w", err)
	}
	return sum, nil
}

func lockUser(ctx context.Context, tx *sql.Tx, id string) (users.User, error) {
	u, err := scanUser(tx.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1 for update`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return users.User{}, users.ErrNotFound
	}
	return u, err
}

func scanUser(row scanner) (users.User, error) {
	var u users.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Credits, &u.Disabled, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
