// Package middleware holds the portal's edge enforcement surface and the
// shared HTTP rate limiter.
//
// EdgeGate is the first of the three enforcement surfaces: it runs before
// routing, resolves the session principal once, and turns denials on page
// routes into redirects (sign-in, onboarding, or the principal's own
// dashboard). API routes pass through to the api package's guard, which
// answers with structured JSON instead of redirects. All surfaces share the
// rbac.Registry decision point, so a route cannot be reachable from one
// surface and denied by another.
package middleware
