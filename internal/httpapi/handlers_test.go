package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"staffdesk.org/internal/audit"
	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/directory"
	"staffdesk.org/internal/identity"
	"staffdesk.org/internal/rbac"
	"staffdesk.org/internal/users"
)

const testSecret = "handlers-test-secret"

type apiClient struct {
	baseURL string
	client  *http.Client
	issuer  *identity.Issuer
	audit   *audit.MemoryStore
	users   *users.MemoryStore
	t       *testing.T
}

func newTestAPI(t *testing.T, admins ...directory.AdminRecord) *apiClient {
	t.Helper()

	issuer, err := identity.NewHMACIssuer(testSecret, "test-idp", "staffdesk")
	if err != nil {
		t.Fatalf("NewHMACIssuer: %v", err)
	}
	verifier, err := identity.NewJWTVerifier(
		identity.WithHMACSecret(testSecret),
		identity.WithIssuer("test-idp"),
		identity.WithAudience("staffdesk"),
	)
	if err != nil {
		t.Fatalf("NewJWTVerifier: %v", err)
	}
	dir, err := directory.NewService(directory.NewMemoryStore(admins...))
	if err != nil {
		t.Fatalf("directory.NewService: %v", err)
	}
	gate, err := auth.NewGate(verifier, dir)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	userStore := users.NewMemoryStore(
		users.User{ID: "user-1", Email: "ada@example.com", DisplayName: "Ada", Credits: 100, CreatedAt: time.Now().Add(-time.Hour)},
		users.User{ID: "user-2", Email: "bob@example.com", DisplayName: "Bob", Credits: 5, CreatedAt: time.Now().AddDate(0, 0, -20)},
	)
	userSvc, err := users.NewService(userStore, dir)
	if err != nil {
		t.Fatalf("users.NewService: %v", err)
	}
	auditStore := audit.NewMemoryStore()
	query, err := audit.NewQuery(gate, auditStore)
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}

	api, err := New(Deps{
		Gate:      gate,
		Directory: dir,
		Users:     userSvc,
		Recorder:  audit.NewRecorder(auditStore),
		Audit:     query,
	}, Options{Version: "test", RateBurst: 1000, RatePerSec: 1000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		issuer:  issuer,
		audit:   auditStore,
		users:   userStore,
		t:       t,
	}
}

func (c *apiClient) token(subject, email string) string {
	c.t.Helper()
	tok, _, err := c.issuer.Issue(subject, email, time.Minute)
	if err != nil {
		c.t.Fatalf("Issue: %v", err)
	}
	return tok
}

func (c *apiClient) do(method, path, token string, params url.Values, body any) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, u.String(), payload)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handlers-test")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}

var (
	owner   = directory.AdminRecord{SubjectID: "uid-owner", Email: "owner@example.com", Role: rbac.RoleOwner}
	admin   = directory.AdminRecord{SubjectID: "uid-admin", Email: "admin@example.com", Role: rbac.RoleAdmin}
	support = directory.AdminRecord{SubjectID: "uid-support", Email: "support@example.com", Role: rbac.RoleSupport}
)

func TestHealthz(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/healthz", "", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody[map[string]any](t, resp)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("unexpected body %v", body)
	}
	resp = c.do(http.MethodGet, "/readyz", "", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestRejectionsMapToStatus(t *testing.T) {
	c := newTestAPI(t, support)

	resp := c.do(http.MethodGet, "/v1/admin/users", "", nil, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/v1/admin/users", "garbage", nil, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	body := decodeBody[errorBody](t, resp)
	if body.Error != "invalid authentication token" || body.RequestID == "" {
		t.Fatalf("unexpected body %+v", body)
	}

	resp = c.do(http.MethodGet, "/v1/admin/users", c.token("uid-nobody", ""), nil, nil)
	expectStatus(t, resp, http.StatusForbidden)
	if body := decodeBody[errorBody](t, resp); body.Error != "user is not an admin" {
		t.Fatalf("unexpected body %+v", body)
	}

	resp = c.do(http.MethodPatch, "/v1/admin/users/user-1", c.token("uid-support", ""), nil, map[string]any{"display_name": "X"})
	expectStatus(t, resp, http.StatusForbidden)
	if body := decodeBody[errorBody](t, resp); body.Error != "insufficient permissions, required: users:write" {
		t.Fatalf("unexpected body %+v", body)
	}
	if c.audit.Len() != 0 {
		t.Fatal("denied requests must not be audited")
	}
}

func TestMeListsPermissions(t *testing.T) {
	c := newTestAPI(t, support)
	resp := c.do(http.MethodGet, "/v1/admin/me", c.token("uid-support", "support@example.com"), nil, nil)
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody[meResponse](t, resp)
	if body.SubjectID != "uid-support" || body.Role != rbac.RoleSupport || len(body.Permissions) != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestCreditsWriteIsAuditedAndQueryable(t *testing.T) {
	c := newTestAPI(t, admin)
	tok := c.token("uid-admin", "admin@example.com")

	resp := c.do(http.MethodPost, "/v1/admin/users/user-1/credits", tok, nil, adjustCreditsRequest{Delta: 25, Reason: "goodwill"})
	expectStatus(t, resp, http.StatusOK)
	if credits := decodeBody[creditsResponse](t, resp); credits.Credits != 125 {
		t.Fatalf("unexpected balance %+v", credits)
	}

	resp = c.do(http.MethodGet, "/v1/admin/audit", tok, url.Values{"actor_id": {"uid-admin"}, "limit": {"10"}}, nil)
	expectStatus(t, resp, http.StatusOK)
	res := decodeBody[audit.Result](t, resp)
	if len(res.Entries) != 1 || res.HasMore || res.NextCursor != "" {
		t.Fatalf("unexpected result %+v", res)
	}
	e := res.Entries[0]
	if e.Action != "credits:write" || e.AdminUID != "uid-admin" || e.AdminEmail != "admin@example.com" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.UserAgent != "handlers-test" || e.IPAddress == "" || e.Details["request_id"] == nil {
		t.Fatalf("request context missing from entry %+v", e)
	}
	if e.Details["before"] != float64(100) || e.Details["after"] != float64(125) {
		t.Fatalf("unexpected details %v", e.Details)
	}
}

func TestNegativeBalanceIsRefused(t *testing.T) {
	c := newTestAPI(t, admin)
	resp := c.do(http.MethodPost, "/v1/admin/users/user-2/credits", c.token("uid-admin", ""), nil, adjustCreditsRequest{Delta: -50, Reason: "chargeback"})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	resp.Body.Close()
	if c.audit.Len() != 0 {
		t.Fatal("failed operations must not be audited")
	}
}

func TestUpdateUserRecordsBeforeAndAfter(t *testing.T) {
	c := newTestAPI(t, admin)
	resp := c.do(http.MethodPatch, "/v1/admin/users/user-1", c.token("uid-admin", ""), nil, map[string]any{"disabled": true})
	expectStatus(t, resp, http.StatusOK)
	if u := decodeBody[users.User](t, resp); !u.Disabled {
		t.Fatalf("expected disabled user, got %+v", u)
	}

	entries, err := c.audit.List(t.Context(), audit.Filter{Action: "users:update"}, nil, 10)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one users:update entry, got %v %v", entries, err)
	}
	before, _ := entries[0].Details["before"].(map[string]any)
	after, _ := entries[0].Details["after"].(map[string]any)
	if before["disabled"] != false || after["disabled"] != true {
		t.Fatalf("unexpected details %v", entries[0].Details)
	}
}

func TestUserReadsAndDelete(t *testing.T) {
	c := newTestAPI(t, owner)
	tok := c.token("uid-owner", "")

	resp := c.do(http.MethodGet, "/v1/admin/users", tok, url.Values{"limit": {"1"}}, nil)
	expectStatus(t, resp, http.StatusOK)
	page := decodeBody[listUsersResponse](t, resp)
	if len(page.Users) != 1 || page.NextCursor != "user-1" {
		t.Fatalf("unexpected page %+v", page)
	}

	resp = c.do(http.MethodGet, "/v1/admin/users/user-2/credits", tok, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	if cr := decodeBody[creditsResponse](t, resp); cr.Credits != 5 {
		t.Fatalf("unexpected credits %+v", cr)
	}

	resp = c.do(http.MethodDelete, "/v1/admin/users/user-2", tok, nil, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/v1/admin/users/user-2", tok, nil, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	if _, err := c.users.GetUser(t.Context(), "user-2"); !errors.Is(err, users.ErrNotFound) {
		t.Fatalf("expected user removed, got %v", err)
	}

	resp = c.do(http.MethodGet, "/v1/admin/analytics/summary", tok, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	sum := decodeBody[users.Summary](t, resp)
	if sum.TotalUsers != 1 || sum.AdminCount != 1 || sum.NewLast7Days != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestBootstrapThenManageAdmins(t *testing.T) {
	c := newTestAPI(t)
	ownerTok := c.token("uid-first", "first@example.com")

	resp := c.do(http.MethodPost, "/v1/admin/bootstrap", ownerTok, nil, nil)
	expectStatus(t, resp, http.StatusCreated)
	if rec := decodeBody[directory.AdminRecord](t, resp); rec.Role != rbac.RoleOwner {
		t.Fatalf("unexpected bootstrap record %+v", rec)
	}

	resp = c.do(http.MethodPost, "/v1/admin/bootstrap", c.token("uid-second", ""), nil, nil)
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/v1/admin/admins", ownerTok, nil, grantAdminRequest{SubjectID: "uid-mod", Email: "mod@example.com", Role: "moderator"})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/v1/admin/admins", ownerTok, nil, grantAdminRequest{SubjectID: "uid-x", Role: "owner"})
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.do(http.MethodPatch, "/v1/admin/admins/uid-mod", ownerTok, nil, updateAdminRequest{Role: "admin"})
	expectStatus(t, resp, http.StatusOK)
	if rec := decodeBody[directory.AdminRecord](t, resp); rec.Role != rbac.RoleAdmin {
		t.Fatalf("unexpected record %+v", rec)
	}

	resp = c.do(http.MethodGet, "/v1/admin/admins", ownerTok, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	list := decodeBody[map[string][]directory.AdminRecord](t, resp)
	if len(list["admins"]) != 2 {
		t.Fatalf("expected 2 admins, got %+v", list)
	}

	// Revocation takes effect on the very next request.
	modTok := c.token("uid-mod", "")
	resp = c.do(http.MethodGet, "/v1/admin/me", modTok, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.do(http.MethodDelete, "/v1/admin/admins/uid-mod", ownerTok, nil, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/v1/admin/me", modTok, nil, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/v1/admin/audit", ownerTok, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	res := decodeBody[audit.Result](t, resp)
	want := []string{"admins:revoke", "admins:update", "admins:grant", "admins:bootstrap"}
	if len(res.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), res.Entries)
	}
	for i, action := range want {
		if res.Entries[i].Action != action {
			t.Fatalf("entry %d: expected %s, got %s", i, action, res.Entries[i].Action)
		}
	}
}

func TestAuditQueryValidation(t *testing.T) {
	c := newTestAPI(t, admin, support)

	resp := c.do(http.MethodGet, "/v1/admin/audit", c.token("uid-support", ""), nil, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/v1/admin/audit", c.token("uid-support", ""), url.Values{"limit": {"abc"}}, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	tok := c.token("uid-admin", "")
	resp = c.do(http.MethodGet, "/v1/admin/audit", tok, url.Values{"limit": {"abc"}}, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/v1/admin/audit", tok, url.Values{"cursor": {"%%%"}}, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/v1/admin/audit", tok, url.Values{"limit": {"500"}}, nil)
	expectStatus(t, resp, http.StatusOK)
	if res := decodeBody[audit.Result](t, resp); res.Entries == nil {
		t.Fatal("entries must encode as an empty array")
	}
}

func TestUnknownRouteAndBadBody(t *testing.T) {
	c := newTestAPI(t, admin)
	resp := c.do(http.MethodGet, "/v1/admin/nope", "", nil, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = c.do(http.MethodPatch, "/v1/admin/users/user-1", c.token("uid-admin", ""), nil, map[string]any{"credits": 1})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}
