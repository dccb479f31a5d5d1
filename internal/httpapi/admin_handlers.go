package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/rbac"
)

type meResponse struct {
	auth.Identity
	Permissions []string `json:"permissions"`
}

type grantAdminRequest struct {
	SubjectID string `json:"subject_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

type updateAdminRequest struct {
	Role string `json:"role"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id := currentAdmin(r)
	writeJSON(w, http.StatusOK, meResponse{Identity: id, Permissions: rbac.PermissionsFor(id.Role)})
}

// handleBootstrap makes the caller the owner of an empty directory. It only
// needs a valid token since no admin exists yet to authorize it.
func (a *API) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	subject, err := a.deps.Gate.Authenticate(r.Context(), r.Header.Get(authHeader))
	if err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := a.deps.Directory.Bootstrap(r.Context(), subject.ID, subject.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}
	a.audit(r.Context(), rec.SubjectID, "admins:bootstrap", map[string]any{
		"subject_id": rec.SubjectID,
		"role":       rec.Role,
	})
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	list, err := a.deps.Directory.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"admins": list})
}

func (a *API) handleGrantAdmin(w http.ResponseWriter, r *http.Request) {
	var req grantAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := rbac.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}
	rec, err := a.deps.Directory.Grant(r.Context(), actor(r), req.SubjectID, req.Email, role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	a.audit(r.Context(), currentAdmin(r).SubjectID, "admins:grant", map[string]any{
		"subject_id": rec.SubjectID,
		"email":      rec.Email,
		"role":       rec.Role,
	})
	w.Header().Set("Location", "/v1/admin/admins/"+rec.SubjectID)
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleUpdateAdmin(w http.ResponseWriter, r *http.Request) {
	var req updateAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := rbac.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}
	uid := strings.TrimSpace(chi.URLParam(r, "uid"))
	before, after, err := a.deps.Directory.ChangeRole(r.Context(), actor(r), uid, role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	a.audit(r.Context(), currentAdmin(r).SubjectID, "admins:update", map[string]any{
		"subject_id": after.SubjectID,
		"before":     map[string]any{"role": before.Role},
		"after":      map[string]any{"role": after.Role},
	})
	writeJSON(w, http.StatusOK, after)
}

func (a *API) handleRevokeAdmin(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(chi.URLParam(r, "uid"))
	rec, err := a.deps.Directory.Revoke(r.Context(), actor(r), uid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	a.audit(r.Context(), currentAdmin(r).SubjectID, "admins:revoke", map[string]any{
		"subject_id": rec.SubjectID,
		"role":       rec.Role,
	})
	w.WriteHeader(http.StatusNoContent)
}
