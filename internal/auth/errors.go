package auth

import "errors"

// Kind discriminates gate rejections.
type Kind string

const (
	// KindUnauthenticated means no credential, or one the identity provider rejected.
	KindUnauthenticated Kind = "unauthenticated"
	// KindPermissionDenied means a verified subject that is not an admin or lacks the grant.
	KindPermissionDenied Kind = "permission_denied"
)

// Rejection is the typed refusal returned by the gate. Both kinds are terminal.
type Rejection struct {
	Kind    Kind
	Message string
}

func (r *Rejection) Error() string { return r.Message }

// ErrUnavailable wraps failures to reach the identity provider or the directory.
// It is never retried here; callers decide.
var ErrUnavailable = errors.New("auth: backend unavailable")

func unauthenticated(msg string) *Rejection {
	return &Rejection{Kind: KindUnauthenticated, Message: msg}
}

func permissionDenied(msg string) *Rejection {
	return &Rejection{Kind: KindPermissionDenied, Message: msg}
}

// AsRejection extracts a gate rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// IsUnauthenticated reports whether err is an Unauthenticated rejection.
func IsUnauthenticated(err error) bool {
	rej, ok := AsRejection(err)
	return ok && rej.Kind == KindUnauthenticated
}

// IsPermissionDenied reports whether err is a PermissionDenied rejection.
func IsPermissionDenied(err error) bool {
	rej, ok := AsRejection(err)
	return ok && rej.Kind == KindPermissionDenied
}
