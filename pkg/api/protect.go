package api

import (
	"net/http"

	"github.com/skcetlabs/portal/pkg/httputil"
	"github.com/skcetlabs/portal/pkg/identity"
	"github.com/skcetlabs/portal/pkg/observability"
	"github.com/skcetlabs/portal/pkg/rbac"
)

// Error messages returned by protected API routes. Programmatic clients
// match on these strings, so they are part of the API contract.
const (
	MsgUnauthenticated   = "Unauthorized - Authentication required"
	MsgNoRole            = "Forbidden - No role assigned"
	MsgInsufficientRole  = "Forbidden - Insufficient role permissions"
	MsgMissingPermission = "Forbidden - Missing required permission"
)

// AuthInfo is what a handler learns about the caller after Protect passes
type AuthInfo struct {
	UserID string
	Role   rbac.Role
}

// Guard is the API enforcement surface. It shares the registry decision
// point with the edge gate and the client route guard, but answers with
// structured JSON errors instead of redirects.
type Guard struct {
	resolver *identity.SessionResolver
	registry *rbac.Registry
	metrics  *observability.Metrics
}

// NewGuard creates an API guard
func NewGuard(resolver *identity.SessionResolver, registry *rbac.Registry) *Guard {
	return &Guard{resolver: resolver, registry: registry}
}

// WithMetrics attaches decision metrics to the guard
func (g *Guard) WithMetrics(metrics *observability.Metrics) *Guard {
	g.metrics = metrics
	return g
}

// Protect authorizes the request for the given roles and, if perm is
// non-empty, the given permission. On denial it writes the error response
// and returns ok=false; handlers must return immediately.
//
// The role check runs before the permission check so a caller with the
// wrong role gets the role message, not the permission one.
func (g *Guard) Protect(w http.ResponseWriter, r *http.Request, allowedRoles []rbac.Role, perm rbac.Permission) (*AuthInfo, bool) {
	principal := g.principal(r)

	decision := g.registry.Authorize(principal, rbac.RequireRoles(allowedRoles...))
	g.observe(decision)
	switch decision {
	case rbac.DenyUnauthenticated:
		httputil.WriteUnauthorized(w, MsgUnauthenticated)
		return nil, false
	case rbac.DenyNoRole:
		httputil.WriteForbidden(w, MsgNoRole)
		return nil, false
	case rbac.DenyForbidden:
		httputil.WriteForbidden(w, MsgInsufficientRole)
		return nil, false
	}

	if perm != "" {
		permDecision := g.registry.Authorize(principal, rbac.RequirePermission(perm))
		g.observe(permDecision)
		if permDecision != rbac.Allow {
			httputil.WriteForbidden(w, MsgMissingPermission)
			return nil, false
		}
	}

	return &AuthInfo{UserID: principal.UserID, Role: principal.Role}, true
}

// Authenticate requires a signed-in caller but no particular role, for
// routes like onboarding that pre-date role assignment
func (g *Guard) Authenticate(w http.ResponseWriter, r *http.Request) (*AuthInfo, bool) {
	principal := g.principal(r)
	if !principal.Authenticated {
		g.observe(rbac.DenyUnauthenticated)
		httputil.WriteUnauthorized(w, MsgUnauthenticated)
		return nil, false
	}
	g.observe(rbac.Allow)
	return &AuthInfo{UserID: principal.UserID, Role: principal.Role}, true
}

// principal prefers the one the edge gate resolved; direct calls (tests,
// bare bearer tokens) fall back to resolving here
func (g *Guard) principal(r *http.Request) rbac.Principal {
	if principal, ok := rbac.PrincipalFromContext(r.Context()); ok {
		return principal
	}
	principal, err := g.resolver.Resolve(r)
	if err != nil {
		return rbac.Anonymous()
	}
	return principal
}

func (g *Guard) observe(decision rbac.Decision) {
	if g.metrics != nil {
		g.metrics.ObserveDecision("api", decision.String())
	}
}
