package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"staffdesk.org/internal/rbac"
	"staffdesk.org/internal/users"
)

type listUsersResponse struct {
	Users      []users.User `json:"users"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type creditsResponse struct {
	UserID  string `json:"user_id"`
	Credits int64  `json:"credits"`
}

type adjustCreditsRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	list, next, err := a.deps.Users.List(r.Context(), users.ListOptions{
		EmailPrefix: q.Get("search"),
		After:       q.Get("cursor"),
		Limit:       limit,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listUsersResponse{Users: list, NextCursor: next})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.deps.Users.Get(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch users.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	before, after, err := a.deps.Users.Update(r.Context(), chi.URLParam(r, "uid"), patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	a.audit(r.Context(), currentAdmin(r).SubjectID, "users:update", map[string]any{
		"user_id": after.ID,
		"before":  userFields(before),
		"after":   userFields(after),
	})
	writeJSON(w, http.StatusOK, after)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.deps.Users.Delete(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	a.audit(r.Context(), currentAdmin(r).SubjectID, "users:delete", map[string]any{
		"user_id": u.ID,
		"email":   u.Email,
		"credits": u.Credits,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGetCredits(w http.ResponseWriter, r *http.Request) {
	u, err := a.deps.Users.Get(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, creditsResponse{UserID: u.ID, Credits: u.Credits})
}

func (a *API) handleAdjustCredits(w http.ResponseWriter, r *http.Request) {
	var req adjustCreditsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	before, after, err := a.deps.Users.AdjustCredits(r.Context(), chi.URLParam(r, "uid"), req.Delta, req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	a.audit(r.Context(), currentAdmin(r).SubjectID, rbac.PermCreditsWrite, map[string]any{
		"user_id": after.ID,
		"delta":   req.Delta,
		"reason":  strings.TrimSpace(req.Reason),
		"before":  before.Credits,
		"after":   after.Credits,
	})
	writeJSON(w, http.StatusOK, creditsResponse{UserID: after.ID, Credits: after.Credits})
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	s, err := a.deps.Users.Summary(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func userFields(u users.User) map[string]any {
	return map[string]any{
		"email":        u.Email,
		"display_name": u.DisplayName,
		"disabled":     u.Disabled,
	}
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errInvalidLimit
	}
	return n, nil
}
