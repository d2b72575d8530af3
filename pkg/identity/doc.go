// Package identity resolves authenticated principals from provider-issued
// sessions.
//
// Two resolution variants exist, mirroring the portal's surfaces:
//
//   - SessionResolver (server): verifies the session token carried by a
//     request (cookie or bearer header) through the provider's OIDC
//     verifier and extracts the user ID and role claim. Verified
//     principals are cached with an expiring LRU whose TTL is the
//     role-refresh window, the upper bound on how stale a role claim can
//     be served.
//
//   - SessionState + RouteGuard (client): a reactive mirror of the
//     provider's client-side identity state. Until the state loads the
//     guard reports pending, which renders a loading view; it is never
//     interpreted as a denial.
//
// Provider additionally implements the OIDC auth-code sign-in flow and is
// the production TokenVerifier.
package identity
