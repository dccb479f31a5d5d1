package httpapi

import (
	"context"
	"net/http"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/directory"
)

const authHeader = "Authorization"

// require passes the request through the gate. An empty permission admits
// any admin.
func (a *API) require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.deps.Gate.Authorize(r.Context(), r.Header.Get(authHeader), perm)
			if err != nil {
				respondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
		})
	}
}

// currentAdmin returns the admin the gate admitted. Only valid behind require.
func currentAdmin(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

func actor(r *http.Request) directory.Actor {
	id := currentAdmin(r)
	return directory.Actor{SubjectID: id.SubjectID, Role: id.Role}
}

// audit records a completed privileged action. Failures never reach the client.
func (a *API) audit(ctx context.Context, actorID, action string, details map[string]any) {
	if a.opts.DetachedAudit {
		a.deps.Recorder.Go(ctx, actorID, action, details)
		return
	}
	a.deps.Recorder.Record(ctx, actorID, action, details)
}
