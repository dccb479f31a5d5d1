package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"staffdesk.org/internal/audit"
	"staffdesk.org/internal/ids"
)

var _ audit.Store = (*Store)(nil)

// Append inserts e and lets the database stamp it with clock_timestamp(), so
// concurrent writers across processes share one clock.
func (s *Store) Append(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	if s.db == nil {
		return audit.Entry{}, errNoDB
	}
	if strings.TrimSpace(e.AdminUID) == "" || strings.TrimSpace(e.Action) == "" {
		return audit.Entry{}, audit.ErrInvalidEntry
	}
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("encode details: %w", err)
	}
	e.ID = ids.New()
	e.Details = details
	err = s.db.QueryRowContext(ctx, `
		insert into audit_log (id, admin_uid, admin_email, action, details, ip_address, user_agent)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at
	`, e.ID, e.AdminUID, e.AdminEmail, e.Action, raw, e.IPAddress, e.UserAgent).Scan(&e.Timestamp)
	if err != nil {
		return audit.Entry{}, err
	}
	return e, nil
}

func (s *Store) List(ctx context.Context, f audit.Filter, after *audit.Position, limit int) ([]audit.Entry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Action != "" {
		where = append(where, "action = "+arg(f.Action))
	}
	if f.ActorID != "" {
		where = append(where, "admin_uid = "+arg(f.ActorID))
	}
	if after != nil {
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", arg(after.Timestamp.UTC()), arg(after.ID)))
	}

	query := `select id, admin_uid, admin_email, action, details, ip_address, user_agent, created_at from audit_log`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	query += " order by created_at desc, id desc limit " + arg(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		var (
			e   audit.Entry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.AdminUID, &e.AdminEmail, &e.Action, &raw, &e.IPAddress, &e.UserAgent, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Details = map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Details); err != nil {
				return nil, fmt.Errorf("decode details of %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
