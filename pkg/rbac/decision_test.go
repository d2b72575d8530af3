package rbac

import "testing"

func TestAuthorize_UnauthenticatedAlwaysDeniedFirst(t *testing.T) {
	reg := mustRegistry(t)

	requirements := []Requirement{
		RequireRoute("/admin/dashboard"),
		RequireRoute("/student/dashboard"),
		RequireRoute("/onboarding"),
		RequireRoles(RoleStudent),
		RequirePermission(PermViewResults),
	}

	// Role on the principal must not matter when unauthenticated
	principals := []Principal{
		Anonymous(),
		{UserID: "u_1", Role: RoleSuperAdmin, Authenticated: false},
	}

	for _, p := range principals {
		for _, req := range requirements {
			if got := reg.Authorize(p, req); got != DenyUnauthenticated {
				t.Errorf("Authorize(%+v, %+v) = %s, want deny_unauthenticated", p, req, got)
			}
		}
	}
}

func TestAuthorize_NoRoleBeforeForbidden(t *testing.T) {
	reg := mustRegistry(t)
	p := Principal{UserID: "u_new", Authenticated: true}

	// Any non-onboarding requirement yields DenyNoRole, never DenyForbidden
	requirements := []Requirement{
		RequireRoute("/admin/dashboard"),
		RequireRoute("/faculty/dashboard"),
		RequireRoute("/somewhere/unmapped"),
		RequireRoles(RoleSuperAdmin),
		RequirePermission(PermManageResults),
	}
	for _, req := range requirements {
		if got := reg.Authorize(p, req); got != DenyNoRole {
			t.Errorf("Authorize(no-role, %+v) = %s, want deny_no_role", req, got)
		}
	}

	if got := reg.Authorize(p, RequireRoute("/onboarding")); got != Allow {
		t.Errorf("onboarding route should allow a role-less principal, got %s", got)
	}
}

func TestAuthorize_OnboardingAllowedWithRole(t *testing.T) {
	reg := mustRegistry(t)
	p := Principal{UserID: "u_1", Role: RoleStudent, Authenticated: true}

	if got := reg.Authorize(p, RequireRoute("/onboarding")); got != Allow {
		t.Errorf("onboarding route should stay reachable once a role exists, got %s", got)
	}
}

func TestAuthorize_RoleRequirement(t *testing.T) {
	reg := mustRegistry(t)

	cases := []struct {
		name string
		role Role
		req  Requirement
		want Decision
	}{
		{"matching role", RoleSuperAdmin, RequireRoles(RoleSuperAdmin), Allow},
		{"any-of match", RoleExamCoordinator, RequireRoles(RoleSuperAdmin, RoleExamCoordinator), Allow},
		{"mismatch", RoleStudent, RequireRoles(RoleSuperAdmin), DenyForbidden},
		{"held permission", RoleExamCoordinator, RequirePermission(PermUploadResults), Allow},
		{"missing permission", RoleFaculty, RequirePermission(PermManageResults), DenyForbidden},
		{"mapped route", RoleStudent, RequireRoute("/student/results"), Allow},
		{"foreign route", RoleStudent, RequireRoute("/admin/dashboard"), DenyForbidden},
		{"unmapped route", RoleSuperAdmin, RequireRoute("/registrar"), DenyForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Principal{UserID: "u_1", Role: tc.role, Authenticated: true}
			if got := reg.Authorize(p, tc.req); got != tc.want {
				t.Errorf("Authorize(%s, %+v) = %s, want %s", tc.role, tc.req, got, tc.want)
			}
		})
	}
}

func TestAuthorize_CombinedRolesAndPermission(t *testing.T) {
	reg := mustRegistry(t)

	// Mirrors the results-upload API guard: role must match AND the
	// permission must be held.
	req := Requirement{
		Roles:      []Role{RoleSuperAdmin, RoleExamCoordinator},
		Permission: PermUploadResults,
	}

	coordinator := Principal{UserID: "u_1", Role: RoleExamCoordinator, Authenticated: true}
	if got := reg.Authorize(coordinator, req); got != Allow {
		t.Errorf("coordinator should pass role+permission check, got %s", got)
	}

	// super_admin is in the allowed roles but does not hold upload:results
	admin := Principal{UserID: "u_2", Role: RoleSuperAdmin, Authenticated: true}
	if got := reg.Authorize(admin, req); got != DenyForbidden {
		t.Errorf("super_admin lacks upload:results, want deny_forbidden, got %s", got)
	}
}

func TestDecisionString(t *testing.T) {
	cases := map[Decision]string{
		Allow:               "allow",
		DenyUnauthenticated: "deny_unauthenticated",
		DenyNoRole:          "deny_no_role",
		DenyForbidden:       "deny_forbidden",
		Decision(42):        "unknown",
	}
	for d, want := range cases {
		if got := d.String(); got != want {
			t.Errorf("Decision(%d).String() = %q, want %q", d, got, want)
		}
	}
}
