package rbac

import (
	"sort"
	"strings"
)

// Role is one of the fixed admin roles. Roles are a flat enum; they do not inherit.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleModerator  Role = "moderator"
	RoleSupport    Role = "support"
)

// Wildcard grants every permission string.
const Wildcard = "*"

const (
	PermUsersRead     = "users:read"
	PermUsersWrite    = "users:write"
	PermUsersDelete   = "users:delete"
	PermCreditsRead   = "credits:read"
	PermCreditsWrite  = "credits:write"
	PermAnalyticsRead = "analytics:read"
	PermAuditRead     = "audit:read"
	PermAdminsRead    = "admins:read"
	PermAdminsWrite   = "admins:write"
)

// Roles lists every known role, most privileged first.
var Roles = []Role{RoleOwner, RoleSuperAdmin, RoleAdmin, RoleModerator, RoleSupport}

type grantSet map[string]struct{}

func newGrantSet(perms ...string) grantSet {
	set := make(grantSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// grants is built once at init and never mutated afterwards.
var grants = map[Role]grantSet{
	RoleOwner: newGrantSet(Wildcard),
	RoleSuperAdmin: newGrantSet(
		PermUsersRead, PermUsersWrite, PermUsersDelete,
		PermCreditsRead, PermCreditsWrite,
		PermAnalyticsRead, PermAuditRead,
		PermAdminsRead, PermAdminsWrite,
	),
	RoleAdmin: newGrantSet(
		PermUsersRead, PermUsersWrite,
		PermCreditsRead, PermCreditsWrite,
		PermAnalyticsRead, PermAuditRead,
	),
	RoleModerator: newGrantSet(PermUsersRead, PermCreditsRead, PermAnalyticsRead),
	RoleSupport:   newGrantSet(PermUsersRead, PermCreditsRead),
}

// PermissionsFor returns the sorted permissions granted by role.
// Unknown roles resolve to an empty set.
func PermissionsFor(role Role) []string {
	set, ok := grants[role]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// HasPermission reports whether role grants required, either directly or via the wildcard.
func HasPermission(role Role, required string) bool {
	set, ok := grants[role]
	if !ok {
		return false
	}
	if _, ok := set[Wildcard]; ok {
		return true
	}
	_, ok = set[required]
	return ok
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := grants[r]
	return ok
}

// Rank orders roles by privilege: 0 is owner, larger is less privileged.
// Unknown roles rank below every known role.
func (r Role) Rank() int {
	for i, known := range Roles {
		if known == r {
			return i
		}
	}
	return len(Roles)
}

// Outranks reports whether r is strictly more privileged than other.
func (r Role) Outranks(other Role) bool {
	return r.Valid() && r.Rank() < other.Rank()
}

func (r Role) String() string { return string(r) }

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.TrimSpace(strings.ToLower(s)))
	if !role.Valid() {
		return "", false
	}
	return role, true
}
