package rbac

// Decision is the verdict of the authorization decision point. Denials are
// returned as values, never errors, so every enforcement surface can render
// or redirect deterministically.
type Decision int

const (
	// Allow permits the request to continue
	Allow Decision = iota
	// DenyUnauthenticated means no valid session exists; route to sign-in
	DenyUnauthenticated
	// DenyNoRole means the session is valid but onboarding is incomplete;
	// route to onboarding
	DenyNoRole
	// DenyForbidden means a role is present but insufficient
	DenyForbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyUnauthenticated:
		return "deny_unauthenticated"
	case DenyNoRole:
		return "deny_no_role"
	case DenyForbidden:
		return "deny_forbidden"
	}
	return "unknown"
}

// Requirement describes what a caller demands of a principal. Fields are
// optional; set fields are evaluated in order: roles, permission, route.
type Requirement struct {
	// Roles allows any of the listed roles
	Roles []Role
	// Permission requires the role to hold this permission
	Permission Permission
	// Route checks the route access table with best-prefix matching
	Route string
}

// RequireRoles builds a requirement satisfied by any of the given roles
func RequireRoles(roles ...Role) Requirement {
	return Requirement{Roles: roles}
}

// RequirePermission builds a requirement for a single permission
func RequirePermission(perm Permission) Requirement {
	return Requirement{Permission: perm}
}

// RequireRoute builds a requirement checked against the route access table
func RequireRoute(route string) Requirement {
	return Requirement{Route: route}
}

// Authorize computes the decision for a principal against a requirement.
//
// The ordering is load-bearing: the "no role yet" check runs before any
// role-based check, so a newly registered user is routed to onboarding
// instead of being rejected as forbidden.
func (reg *Registry) Authorize(p Principal, req Requirement) Decision {
	if !p.Authenticated {
		return DenyUnauthenticated
	}

	if !p.HasRole() {
		if req.Route == reg.onboardingPath {
			return Allow
		}
		return DenyNoRole
	}

	// Onboarding stays reachable for users revisiting role selection
	if req.Route == reg.onboardingPath {
		return Allow
	}

	if len(req.Roles) > 0 && !containsRole(req.Roles, p.Role) {
		return DenyForbidden
	}

	if req.Permission != "" && !reg.HasPermission(p.Role, req.Permission) {
		return DenyForbidden
	}

	if req.Route != "" && !reg.CanAccessRoute(p.Role, req.Route) {
		return DenyForbidden
	}

	return Allow
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
