package rbac

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry holds the immutable role/permission and route access tables.
// It is constructed once at process start and is safe for unsynchronized
// concurrent reads; nothing mutates it afterwards.
type Registry struct {
	rolePermissions map[Role]map[Permission]struct{}
	routeRoles      map[string]map[Role]struct{}
	routePrefixes   []string // sorted longest-first for prefix matching
	dashboards      map[Role]string
	onboardingPath  string
}

// RegistryOption customizes registry construction
type RegistryOption func(*registryConfig)

type registryConfig struct {
	extraRoutes    []RouteRule
	onboardingPath string
}

// WithRouteRules adds route rules on top of the built-in table.
// A rule for an existing prefix replaces the built-in entry.
func WithRouteRules(rules []RouteRule) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.extraRoutes = append(cfg.extraRoutes, rules...)
	}
}

// WithOnboardingPath overrides the onboarding route (default "/onboarding")
func WithOnboardingPath(path string) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.onboardingPath = path
	}
}

// NewRegistry builds the registry from the built-in tables plus any options.
// It fails if a role would end up with an empty permission set, so a dangling
// permission check can never silently degrade to "denied".
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	cfg := &registryConfig{onboardingPath: "/onboarding"}
	for _, opt := range opts {
		opt(cfg)
	}

	reg := &Registry{
		rolePermissions: make(map[Role]map[Permission]struct{}),
		routeRoles:      make(map[string]map[Role]struct{}),
		dashboards:      defaultDashboards(),
		onboardingPath:  cfg.onboardingPath,
	}

	for role, perms := range defaultRolePermissions() {
		if len(perms) == 0 {
			return nil, fmt.Errorf("role %q has an empty permission set", role)
		}
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		reg.rolePermissions[role] = set
	}

	rules := defaultRouteRules()
	rules = append(rules, cfg.extraRoutes...)
	for _, rule := range rules {
		if rule.Prefix == "" || !strings.HasPrefix(rule.Prefix, "/") {
			return nil, fmt.Errorf("route rule prefix %q must start with /", rule.Prefix)
		}
		set := make(map[Role]struct{}, len(rule.Roles))
		for _, r := range rule.Roles {
			if !r.IsValid() {
				return nil, fmt.Errorf("route rule %q references unknown role %q", rule.Prefix, r)
			}
			set[r] = struct{}{}
		}
		reg.routeRoles[rule.Prefix] = set
	}

	reg.routePrefixes = make([]string, 0, len(reg.routeRoles))
	for prefix := range reg.routeRoles {
		reg.routePrefixes = append(reg.routePrefixes, prefix)
	}
	sort.Slice(reg.routePrefixes, func(i, j int) bool {
		return len(reg.routePrefixes[i]) > len(reg.routePrefixes[j])
	})

	return reg, nil
}

// routePolicyFile is the on-disk shape of a route policy override
type routePolicyFile struct {
	Routes []RouteRule `yaml:"routes"`
}

// LoadRouteRules reads extra route rules from a YAML policy file
func LoadRouteRules(path string) ([]RouteRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route policy file: %w", err)
	}

	var file routePolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse route policy file: %w", err)
	}

	return file.Routes, nil
}

// PermissionsOf returns the permission set for a role.
// Unknown roles yield an empty set, never an error.
func (reg *Registry) PermissionsOf(role Role) []Permission {
	set, ok := reg.rolePermissions[role]
	if !ok {
		return nil
	}
	perms := make([]Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// HasPermission reports whether the role's configured set contains the permission
func (reg *Registry) HasPermission(role Role, perm Permission) bool {
	set, ok := reg.rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// AllowedRolesFor returns the roles allowed for a route using best-prefix
// matching. Unmapped routes return an empty set.
func (reg *Registry) AllowedRolesFor(route string) []Role {
	set, ok := reg.matchRoute(route)
	if !ok {
		return nil
	}
	roles := make([]Role, 0, len(set))
	for r := range set {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// CanAccessRoute reports whether the role may access the route.
// Unmapped routes deny every role.
func (reg *Registry) CanAccessRoute(role Role, route string) bool {
	set, ok := reg.matchRoute(route)
	if !ok {
		return false
	}
	_, ok = set[role]
	return ok
}

// DashboardFor returns the canonical dashboard path for a role, or "/" for
// roles without one
func (reg *Registry) DashboardFor(role Role) string {
	if path, ok := reg.dashboards[role]; ok {
		return path
	}
	return "/"
}

// OnboardingPath returns the route a role-less authenticated user is sent to
func (reg *Registry) OnboardingPath() string {
	return reg.onboardingPath
}

// matchRoute finds the longest registered prefix covering the route
func (reg *Registry) matchRoute(route string) (map[Role]struct{}, bool) {
	for _, prefix := range reg.routePrefixes {
		if route == prefix || strings.HasPrefix(route, prefix+"/") {
			return reg.routeRoles[prefix], true
		}
	}
	return nil, false
}
