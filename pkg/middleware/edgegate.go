package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/skcetlabs/portal/pkg/contextkeys"
	"github.com/skcetlabs/portal/pkg/identity"
	"github.com/skcetlabs/portal/pkg/observability"
	"github.com/skcetlabs/portal/pkg/rbac"
)

// defaultPublicRoutes are reachable without a session. A trailing "*" makes
// the entry a prefix pattern; everything else is an exact path match.
// The auth flow paths must stay here: the callback runs before any session
// cookie exists, and sign-out has to be reachable from every role.
var defaultPublicRoutes = []string{
	"/",
	"/sign-in*",
	"/sign-up*",
	"/auth/callback",
	"/sign-out",
	"/onboarding",
	"/api/webhooks*",
	"/about",
	"/academics*",
	"/admissions",
	"/placements",
	"/contact",
	"/news*",
	"/facilities",
}

// EdgeGate enforces route access before any handler runs. Page routes get
// redirects; API routes are passed through so the API guard can answer with
// structured JSON instead.
type EdgeGate struct {
	resolver *identity.SessionResolver
	registry *rbac.Registry
	public   []string
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// DefaultPublicRoutes returns a copy of the built-in public route patterns,
// for callers that want to extend rather than replace the list
func DefaultPublicRoutes() []string {
	out := make([]string, len(defaultPublicRoutes))
	copy(out, defaultPublicRoutes)
	return out
}

// NewEdgeGate creates the gate with the built-in public route list
func NewEdgeGate(resolver *identity.SessionResolver, registry *rbac.Registry, logger *observability.Logger) *EdgeGate {
	return &EdgeGate{
		resolver: resolver,
		registry: registry,
		public:   defaultPublicRoutes,
		logger:   logger,
	}
}

// WithPublicRoutes replaces the public route patterns
func (g *EdgeGate) WithPublicRoutes(patterns []string) *EdgeGate {
	g.public = patterns
	return g
}

// WithMetrics attaches decision metrics to the gate
func (g *EdgeGate) WithMetrics(metrics *observability.Metrics) *EdgeGate {
	g.metrics = metrics
	return g
}

// Handler wraps next with edge enforcement
func (g *EdgeGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Principal resolution is best effort here: public pages and API
		// routes still want the identity in context when one exists.
		principal, err := g.resolver.Resolve(r)
		if err != nil {
			principal = rbac.Anonymous()
		}
		r = r.WithContext(contextkeys.WithPrincipal(r.Context(), principal))
		if principal.Authenticated {
			r = r.WithContext(contextkeys.WithUserID(r.Context(), principal.UserID))
		}

		if g.isPublic(path) {
			next.ServeHTTP(w, r)
			return
		}

		// API routes answer with JSON errors from the API guard, not
		// redirects; the gate only attaches the principal for them.
		if strings.HasPrefix(path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		decision := g.registry.Authorize(principal, rbac.RequireRoute(path))
		if g.metrics != nil {
			g.metrics.ObserveDecision("edge", decision.String())
		}

		switch decision {
		case rbac.Allow:
			next.ServeHTTP(w, r)
		case rbac.DenyUnauthenticated:
			g.redirect(w, r, "/sign-in?redirect_url="+url.QueryEscape(path))
		case rbac.DenyNoRole:
			g.redirect(w, r, g.registry.OnboardingPath())
		default:
			// Cross-role navigation lands on the principal's own dashboard
			// rather than an error page
			g.redirect(w, r, g.registry.DashboardFor(principal.Role))
		}
	})
}

func (g *EdgeGate) redirect(w http.ResponseWriter, r *http.Request, target string) {
	if g.logger != nil {
		g.logger.WithFields(map[string]interface{}{
			"path":   r.URL.Path,
			"target": target,
		}).Debug("edge gate redirect")
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (g *EdgeGate) isPublic(path string) bool {
	for _, pattern := range g.public {
		if stem, ok := strings.CutSuffix(pattern, "*"); ok {
			if strings.HasPrefix(path, stem) {
				return true
			}
			continue
		}
		if path == pattern {
			return true
		}
	}
	return false
}
