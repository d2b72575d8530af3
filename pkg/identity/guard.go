package identity

import (
	"github.com/skcetlabs/portal/pkg/observability"
	"github.com/skcetlabs/portal/pkg/rbac"
)

// GuardState is the client route guard's verdict for the current render
type GuardState int

const (
	// GuardPending means identity state has not loaded; render a loading
	// state, never the protected content and never a redirect
	GuardPending GuardState = iota
	// GuardRender means the principal may see the protected content
	GuardRender
	// GuardRedirect means navigate to Target and render nothing in the
	// meantime, so protected content never flashes during the transition
	GuardRedirect
)

func (g GuardState) String() string {
	switch g {
	case GuardPending:
		return "pending"
	case GuardRender:
		return "render"
	case GuardRedirect:
		return "redirect"
	}
	return "unknown"
}

// GuardResult carries the verdict and, for redirects, the target path
type GuardResult struct {
	State  GuardState
	Target string
}

// RouteGuard wraps a protected client route. It applies the same decision
// point as the server surfaces, driven by the reactive session state.
type RouteGuard struct {
	state    *SessionState
	registry *rbac.Registry
	allowed  []rbac.Role
	fallback string
	metrics  *observability.Metrics
}

// NewRouteGuard creates a guard allowing the given roles. fallback overrides
// the redirect target on forbidden; empty means the principal's own
// canonical dashboard.
func NewRouteGuard(state *SessionState, registry *rbac.Registry, allowed []rbac.Role, fallback string) *RouteGuard {
	return &RouteGuard{
		state:    state,
		registry: registry,
		allowed:  allowed,
		fallback: fallback,
	}
}

// WithMetrics attaches decision metrics to the guard
func (g *RouteGuard) WithMetrics(metrics *observability.Metrics) *RouteGuard {
	g.metrics = metrics
	return g
}

// Evaluate computes the verdict for the current session snapshot
func (g *RouteGuard) Evaluate() GuardResult {
	snap := g.state.Snapshot()
	if !snap.IsLoaded {
		return GuardResult{State: GuardPending}
	}

	decision := g.registry.Authorize(snap.Principal(), rbac.RequireRoles(g.allowed...))
	if g.metrics != nil {
		g.metrics.ObserveDecision("ui_guard", decision.String())
	}

	switch decision {
	case rbac.DenyUnauthenticated:
		return GuardResult{State: GuardRedirect, Target: "/sign-in"}
	case rbac.DenyNoRole:
		return GuardResult{State: GuardRedirect, Target: g.registry.OnboardingPath()}
	case rbac.DenyForbidden:
		target := g.fallback
		if target == "" {
			target = g.registry.DashboardFor(snap.Role)
		}
		return GuardResult{State: GuardRedirect, Target: target}
	default:
		return GuardResult{State: GuardRender}
	}
}

// PermissionGate reports whether the current session holds a permission.
// False while pending or signed out; gates hide content rather than
// redirecting.
func PermissionGate(state *SessionState, registry *rbac.Registry, perm rbac.Permission) bool {
	snap := state.Snapshot()
	if !snap.IsLoaded || !snap.IsSignedIn || snap.Role == "" {
		return false
	}
	return registry.HasPermission(snap.Role, perm)
}
