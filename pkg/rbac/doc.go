// Package rbac implements the portal's role-based access control core.
//
// The package has three pieces:
//
//   - Registry: the immutable role -> permission and route-prefix -> roles
//     tables, built once at startup (NewRegistry) with optional YAML route
//     overrides, plus pure lookup functions (PermissionsOf, HasPermission,
//     AllowedRolesFor, CanAccessRoute, DashboardFor).
//
//   - Principal: the identity resolved for one request. Constructed by
//     pkg/identity from the verified session token and never persisted.
//
//   - Authorize: the single decision point shared by all three enforcement
//     surfaces (edge middleware, client route guard, API guard). It returns
//     Allow, DenyUnauthenticated, DenyNoRole, or DenyForbidden as a value;
//     authorization failures are never errors.
//
// The decision point trusts the role claim embedded in the session token
// rather than re-reading the durable user record on every request. Role
// changes therefore lag until the session is refreshed; the resolver's cache
// TTL (pkg/identity) bounds that window explicitly.
package rbac
