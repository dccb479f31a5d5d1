package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/directory"
	"staffdesk.org/internal/identity"
	"staffdesk.org/internal/rbac"
)

type allowAll struct{ calls int }

func (a *allowAll) Authorize(context.Context, string, string) (auth.Identity, error) {
	a.calls++
	return auth.Identity{SubjectID: "uid-reader", Role: rbac.RoleAdmin}, nil
}

type denyAll struct{}

func (denyAll) Authorize(context.Context, string, string) (auth.Identity, error) {
	return auth.Identity{}, &auth.Rejection{Kind: auth.KindPermissionDenied, Message: "insufficient permissions, required: audit:read"}
}

func seedEntries(t *testing.T, store *MemoryStore, n int) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	store.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}
	for i := 0; i < n; i++ {
		actor := "uid-a"
		if i%2 == 1 {
			actor = "uid-b"
		}
		action := "users:update"
		if i%3 == 0 {
			action = "credits:write"
		}
		if _, err := store.Append(context.Background(), Entry{AdminUID: actor, Action: action, Details: map[string]any{"n": i}}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func newTestQuery(t *testing.T, gate Authorizer, store Store) *Query {
	t.Helper()
	q, err := NewQuery(gate, store)
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}
	return q
}

func TestQueryIsReverseChronological(t *testing.T) {
	store := NewMemoryStore()
	seedEntries(t, store, 5)
	q := newTestQuery(t, &allowAll{}, store)

	res, err := q.Run(context.Background(), "Bearer x", Filter{}, Page{Limit: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Entries) != 5 || res.HasMore || res.NextCursor != "" {
		t.Fatalf("unexpected result: %d entries, hasMore=%v cursor=%q", len(res.Entries), res.HasMore, res.NextCursor)
	}
	for i := 1; i < len(res.Entries); i++ {
		if res.Entries[i].Timestamp.After(res.Entries[i-1].Timestamp) {
			t.Fatalf("entries out of order at %d", i)
		}
	}
	if res.Entries[0].Details["n"] != 4 {
		t.Fatalf("expected newest entry first, got %v", res.Entries[0].Details)
	}
}

func TestQueryPaginatesWithoutGapsOrDuplicates(t *testing.T) {
	store := NewMemoryStore()
	seedEntries(t, store, 7)
	q := newTestQuery(t, &allowAll{}, store)

	seen := map[string]bool{}
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 10 {
			t.Fatal("pagination did not terminate")
		}
		res, err := q.Run(context.Background(), "Bearer x", Filter{}, Page{Limit: 3, Cursor: cursor})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		for _, e := range res.Entries {
			if seen[e.ID] {
				t.Fatalf("duplicate entry %s", e.ID)
			}
			seen[e.ID] = true
		}
		if !res.HasMore {
			break
		}
		cursor = res.NextCursor
	}
	if len(seen) != 7 {
		t.Fatalf("expected 7 distinct entries, saw %d", len(seen))
	}
}

func TestQuerySameCursorSamePage(t *testing.T) {
	store := NewMemoryStore()
	seedEntries(t, store, 6)
	q := newTestQuery(t, &allowAll{}, store)

	first, err := q.Run(context.Background(), "Bearer x", Filter{ActorID: "uid-a"}, Page{Limit: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	a, err := q.Run(context.Background(), "Bearer x", Filter{ActorID: "uid-a"}, Page{Limit: 1, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := q.Run(context.Background(), "Bearer x", Filter{ActorID: "uid-a"}, Page{Limit: 1, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(a.Entries) != 1 || len(b.Entries) != 1 || a.Entries[0].ID != b.Entries[0].ID || a.NextCursor != b.NextCursor {
		t.Fatalf("repeated page differs: %+v vs %+v", a, b)
	}
}

func TestQueryFiltersAreExactMatch(t *testing.T) {
	store := NewMemoryStore()
	seedEntries(t, store, 6)
	q := newTestQuery(t, &allowAll{}, store)

	res, err := q.Run(context.Background(), "Bearer x", Filter{Action: "credits:write", ActorID: "uid-a"}, Page{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// credits:write entries are n=0 (uid-a) and n=3 (uid-b).
	if len(res.Entries) != 1 || res.Entries[0].Details["n"] != 0 {
		t.Fatalf("unexpected filtered entries %+v", res.Entries)
	}
	res, err = q.Run(context.Background(), "Bearer x", Filter{Action: "credits"}, Page{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Entries) != 0 {
		t.Fatalf("prefix must not match, got %d", len(res.Entries))
	}
}

func TestQueryAuthorizesFirst(t *testing.T) {
	store := NewMemoryStore()
	seedEntries(t, store, 2)
	q := newTestQuery(t, denyAll{}, store)

	_, err := q.Run(context.Background(), "Bearer x", Filter{}, Page{Cursor: "!!garbage"})
	if !auth.IsPermissionDenied(err) {
		t.Fatalf("expected permission denied before cursor parsing, got %v", err)
	}
}

func TestQueryRejectsBadCursor(t *testing.T) {
	q := newTestQuery(t, &allowAll{}, NewMemoryStore())
	for _, c := range []string{"!!", "bm90LWpzb24", EncodeCursor(Entry{})} {
		if _, err := q.Run(context.Background(), "Bearer x", Filter{}, Page{Cursor: c}); !errors.Is(err, ErrInvalidCursor) {
			t.Fatalf("cursor %q: expected ErrInvalidCursor, got %v", c, err)
		}
	}
}

func TestClampLimit(t *testing.T) {
	for in, want := range map[int]int{-5: DefaultLimit, 0: DefaultLimit, 1: 1, 100: 100, 101: MaxLimit, 5000: MaxLimit} {
		if got := ClampLimit(in); got != want {
			t.Fatalf("ClampLimit(%d)=%d, want %d", in, got, want)
		}
	}
}

func TestCursorRoundTrip(t *testing.T) {
	e := Entry{ID: "01J0000000000000000000000A", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 123456789, time.UTC)}
	pos, err := DecodeCursor(EncodeCursor(e))
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if pos.ID != e.ID || !pos.Timestamp.Equal(e.Timestamp) {
		t.Fatalf("unexpected position %+v", pos)
	}
	if pos, err := DecodeCursor(""); pos != nil || err != nil {
		t.Fatalf("empty cursor should be the first page, got %v %v", pos, err)
	}
}

func TestCreditsWriteIsQueryableByActor(t *testing.T) {
	issuer, err := identity.NewHMACIssuer("e2e-secret", "idp", "")
	if err != nil {
		t.Fatalf("NewHMACIssuer: %v", err)
	}
	verifier, err := identity.NewJWTVerifier(identity.WithHMACSecret("e2e-secret"), identity.WithIssuer("idp"))
	if err != nil {
		t.Fatalf("NewJWTVerifier: %v", err)
	}
	dir, err := directory.NewService(directory.NewMemoryStore(
		directory.AdminRecord{SubjectID: "uid-admin", Email: "admin@example.com", Role: rbac.RoleAdmin},
	))
	if err != nil {
		t.Fatalf("directory.NewService: %v", err)
	}
	gate, err := auth.NewGate(verifier, dir)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	store := NewMemoryStore()
	seedEntries(t, store, 4)
	store.now = time.Now
	rec := NewRecorder(store)
	q := newTestQuery(t, gate, store)

	token, _, err := issuer.Issue("uid-admin", "admin@example.com", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	header := "Bearer " + token
	ctx := context.Background()

	id, err := gate.Authorize(ctx, header, rbac.PermCreditsWrite)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	balance := 100
	balance += 25
	rec.Record(auth.ContextWithIdentity(ctx, id), id.SubjectID, rbac.PermCreditsWrite, map[string]any{"before": 100, "after": balance})

	res, err := q.Run(ctx, header, Filter{ActorID: "uid-admin"}, Page{Limit: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Entries) == 0 {
		t.Fatal("expected the recorded entry to be queryable")
	}
	first := res.Entries[0]
	if first.Action != "credits:write" || first.AdminUID != "uid-admin" || first.AdminEmail != "admin@example.com" {
		t.Fatalf("unexpected first entry %+v", first)
	}
	if fmt.Sprint(first.Details["after"]) != "125" {
		t.Fatalf("unexpected details %v", first.Details)
	}
}
