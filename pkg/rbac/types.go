package rbac

// Role represents a portal role carried in the session role claim
type Role string

const (
	RoleSuperAdmin      Role = "super_admin"
	RoleExamCoordinator Role = "exam_coordinator"
	RoleFaculty         Role = "faculty"
	RoleStudent         Role = "student"
)

// AllRoles returns every role known to the portal
func AllRoles() []Role {
	return []Role{RoleSuperAdmin, RoleExamCoordinator, RoleFaculty, RoleStudent}
}

// IsValid reports whether the role is one of the known portal roles
func (r Role) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleExamCoordinator, RoleFaculty, RoleStudent:
		return true
	}
	return false
}

// Permission represents an action grant, e.g. "manage:results"
type Permission string

const (
	PermManageUsers       Permission = "manage:users"
	PermManageRoles       Permission = "manage:roles"
	PermManageResults     Permission = "manage:results"
	PermManageAdmissions  Permission = "manage:admissions"
	PermManageFaculty     Permission = "manage:faculty"
	PermManageStudents    Permission = "manage:students"
	PermManageSettings    Permission = "manage:settings"
	PermManageDepartments Permission = "manage:departments"
	PermViewAnalytics     Permission = "view:analytics"
	PermViewStudents      Permission = "view:students"
	PermViewResults       Permission = "view:results"
	PermViewProfile       Permission = "view:profile"
	PermViewSchedule      Permission = "view:schedule"
	PermUploadResults     Permission = "upload:results"
	PermPublishResults    Permission = "publish:results"
	PermUpdateProfile     Permission = "update:profile"
	PermApplyAdmission    Permission = "apply:admission"
)

// Principal is the resolved identity for one request or render cycle.
// It is built fresh from the verified session and never persisted.
type Principal struct {
	UserID        string `json:"user_id"`
	Role          Role   `json:"role,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

// HasRole reports whether a role claim is present on the principal
func (p Principal) HasRole() bool {
	return p.Role != ""
}

// Anonymous returns an unauthenticated principal
func Anonymous() Principal {
	return Principal{}
}

// RouteRule maps a route prefix to the roles allowed under it
type RouteRule struct {
	Prefix string `yaml:"prefix" json:"prefix"`
	Roles  []Role `yaml:"roles" json:"roles"`
}

// defaultRolePermissions is the built-in role -> permission table.
// Every role maps to a non-empty set; the registry validates this at
// construction time.
func defaultRolePermissions() map[Role][]Permission {
	return map[Role][]Permission{
		RoleSuperAdmin: {
			PermManageUsers,
			PermManageRoles,
			PermManageResults,
			PermManageAdmissions,
			PermManageFaculty,
			PermManageStudents,
			PermViewAnalytics,
			PermManageSettings,
			PermManageDepartments,
		},
		RoleExamCoordinator: {
			PermManageResults,
			PermViewStudents,
			PermUploadResults,
			PermPublishResults,
			PermViewAnalytics,
		},
		RoleFaculty: {
			PermViewStudents,
			PermViewResults,
			PermUpdateProfile,
			PermViewSchedule,
		},
		RoleStudent: {
			PermViewResults,
			PermViewProfile,
			PermUpdateProfile,
			PermViewSchedule,
			PermApplyAdmission,
		},
	}
}

// defaultRouteRules is the built-in route-prefix -> allowed-roles table.
// Lookups use longest-prefix matching; unmapped routes deny every role.
func defaultRouteRules() []RouteRule {
	return []RouteRule{
		{Prefix: "/admin", Roles: []Role{RoleSuperAdmin}},
		{Prefix: "/admin/dashboard", Roles: []Role{RoleSuperAdmin}},
		{Prefix: "/admin/results", Roles: []Role{RoleSuperAdmin, RoleExamCoordinator}},
		{Prefix: "/admin/admissions", Roles: []Role{RoleSuperAdmin}},
		{Prefix: "/admin/faculty", Roles: []Role{RoleSuperAdmin}},
		{Prefix: "/admin/students", Roles: []Role{RoleSuperAdmin, RoleExamCoordinator}},
		{Prefix: "/admin/settings", Roles: []Role{RoleSuperAdmin}},
		{Prefix: "/faculty", Roles: []Role{RoleFaculty}},
		{Prefix: "/faculty/dashboard", Roles: []Role{RoleFaculty}},
		{Prefix: "/student", Roles: []Role{RoleStudent}},
		{Prefix: "/student/dashboard", Roles: []Role{RoleStudent}},
		{Prefix: "/student/results", Roles: []Role{RoleStudent}},
	}
}

// defaultDashboards maps each role to its canonical landing page
func defaultDashboards() map[Role]string {
	return map[Role]string{
		RoleSuperAdmin:      "/admin/dashboard",
		RoleExamCoordinator: "/admin/results",
		RoleFaculty:         "/faculty/dashboard",
		RoleStudent:         "/student/dashboard",
	}
}
