package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/skcetlabs/portal/pkg/observability"
	"github.com/skcetlabs/portal/pkg/rbac"
)

// ErrUnauthenticated is returned when no valid session exists on a request
var ErrUnauthenticated = errors.New("no valid session")

// Claims is the decoded claim set of a verified session token
type Claims map[string]interface{}

// TokenVerifier verifies a raw session token and returns its subject and
// claims. The production implementation delegates to the identity
// provider's OIDC verifier; tests substitute a fake.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (subject string, claims Claims, err error)
}

// ResolverOptions configures a SessionResolver
type ResolverOptions struct {
	// CookieName is the session cookie set by the provider (default "__session")
	CookieName string
	// RoleClaimPath is the dotted path to the role claim inside the token,
	// e.g. "unsafe_metadata.role". This is a configuration contract with
	// the provider dashboard, not discoverable from the token itself.
	RoleClaimPath string
	// CacheSize bounds the verified-principal cache (default 4096)
	CacheSize int
	// RoleRefreshWindow is how long a cached principal may be served before
	// the token is re-verified. The decision point trusts the session role
	// claim instead of the durable user record, so this window is exactly
	// the maximum staleness of a role change.
	RoleRefreshWindow time.Duration

	Metrics *observability.Metrics
}

// SessionResolver produces a Principal from an inbound request by verifying
// the provider-issued session token
type SessionResolver struct {
	verifier      TokenVerifier
	cookieName    string
	roleClaimPath string
	cache         *expirable.LRU[string, rbac.Principal]
	metrics       *observability.Metrics
}

// NewSessionResolver creates a resolver around a token verifier
func NewSessionResolver(verifier TokenVerifier, opts ResolverOptions) *SessionResolver {
	if opts.CookieName == "" {
		opts.CookieName = "__session"
	}
	if opts.RoleClaimPath == "" {
		opts.RoleClaimPath = "unsafe_metadata.role"
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4096
	}
	if opts.RoleRefreshWindow <= 0 {
		opts.RoleRefreshWindow = time.Minute
	}

	return &SessionResolver{
		verifier:      verifier,
		cookieName:    opts.CookieName,
		roleClaimPath: opts.RoleClaimPath,
		cache:         expirable.NewLRU[string, rbac.Principal](opts.CacheSize, nil, opts.RoleRefreshWindow),
		metrics:       opts.Metrics,
	}
}

// Resolve extracts the session token from the request and verifies it.
// Returns ErrUnauthenticated when no token is present or it fails
// verification; there are no partial results.
func (sr *SessionResolver) Resolve(r *http.Request) (rbac.Principal, error) {
	token := sr.extractToken(r)
	if token == "" {
		return rbac.Anonymous(), ErrUnauthenticated
	}
	return sr.ResolveToken(r.Context(), token)
}

// ResolveToken verifies a raw token and builds the principal, consulting
// the expiring cache first
func (sr *SessionResolver) ResolveToken(ctx context.Context, rawToken string) (rbac.Principal, error) {
	if principal, ok := sr.cache.Get(rawToken); ok {
		if sr.metrics != nil {
			sr.metrics.SessionCacheHits.Inc()
		}
		return principal, nil
	}
	if sr.metrics != nil {
		sr.metrics.SessionCacheMisses.Inc()
	}

	subject, claims, err := sr.verifier.Verify(ctx, rawToken)
	if err != nil {
		return rbac.Anonymous(), fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if subject == "" {
		return rbac.Anonymous(), fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	principal := rbac.Principal{
		UserID:        subject,
		Role:          rbac.Role(claimString(claims, sr.roleClaimPath)),
		Authenticated: true,
	}

	sr.cache.Add(rawToken, principal)
	return principal, nil
}

// Invalidate drops the cached principal for a token, forcing the next
// request to re-verify. Called after onboarding assigns a role so the new
// claim is picked up without waiting out the refresh window.
func (sr *SessionResolver) Invalidate(rawToken string) {
	sr.cache.Remove(rawToken)
}

// SessionToken returns the raw session token carried by the request, or ""
func (sr *SessionResolver) SessionToken(r *http.Request) string {
	return sr.extractToken(r)
}

func (sr *SessionResolver) extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(sr.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// claimString walks a dotted path through nested claim maps and returns the
// string leaf, or "" when any step is missing or not a string
func claimString(claims Claims, path string) string {
	var current interface{} = map[string]interface{}(claims)
	for _, key := range strings.Split(path, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current, ok = node[key]
		if !ok {
			return ""
		}
	}
	str, _ := current.(string)
	return str
}
