package httpapi

import (
	"errors"
	"net/http"

	"staffdesk.org/internal/audit"
	"staffdesk.org/internal/rbac"
)

var errInvalidLimit = errors.New("limit must be a non-negative integer")

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		// Callers without audit:read learn nothing about parameters.
		if _, authErr := a.deps.Gate.Authorize(r.Context(), r.Header.Get(authHeader), rbac.PermAuditRead); authErr != nil {
			respondError(w, r, authErr)
			return
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.deps.Audit.Run(r.Context(), r.Header.Get(authHeader),
		audit.Filter{Action: q.Get("action"), ActorID: q.Get("actor_id")},
		audit.Page{Limit: limit, Cursor: q.Get("cursor")},
	)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
