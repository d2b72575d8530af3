package identity

import (
	"testing"

	"github.com/skcetlabs/portal/pkg/rbac"
)

func newTestRegistry(t *testing.T) *rbac.Registry {
	t.Helper()
	registry, err := rbac.NewRegistry()
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return registry
}

func TestRouteGuard_Evaluate(t *testing.T) {
	registry := newTestRegistry(t)

	t.Run("pending while identity state is unloaded", func(t *testing.T) {
		state := NewSessionState()
		guard := NewRouteGuard(state, registry, []rbac.Role{rbac.RoleStudent}, "")

		result := guard.Evaluate()
		if result.State != GuardPending {
			t.Errorf("expected pending, got %s", result.State)
		}
		if result.Target != "" {
			t.Errorf("pending must not carry a redirect target, got %s", result.Target)
		}
	})

	t.Run("signed-out redirects to sign-in", func(t *testing.T) {
		state := NewSessionState()
		state.SetSignedOut()
		guard := NewRouteGuard(state, registry, []rbac.Role{rbac.RoleStudent}, "")

		result := guard.Evaluate()
		if result.State != GuardRedirect {
			t.Fatalf("expected redirect, got %s", result.State)
		}
		if result.Target != "/sign-in" {
			t.Errorf("expected /sign-in, got %s", result.Target)
		}
	})

	t.Run("signed-in without role redirects to onboarding", func(t *testing.T) {
		state := NewSessionState()
		state.SetSignedIn("user_1", "")
		guard := NewRouteGuard(state, registry, []rbac.Role{rbac.RoleStudent}, "")

		result := guard.Evaluate()
		if result.State != GuardRedirect {
			t.Fatalf("expected redirect, got %s", result.State)
		}
		if result.Target != "/onboarding" {
			t.Errorf("expected /onboarding, got %s", result.Target)
		}
	})

	t.Run("allowed role renders", func(t *testing.T) {
		state := NewSessionState()
		state.SetSignedIn("user_1", rbac.RoleStudent)
		guard := NewRouteGuard(state, registry, []rbac.Role{rbac.RoleStudent}, "")

		result := guard.Evaluate()
		if result.State != GuardRender {
			t.Errorf("expected render, got %s", result.State)
		}
	})

	t.Run("wrong role redirects to its own dashboard", func(t *testing.T) {
		state := NewSessionState()
		state.SetSignedIn("user_1", rbac.RoleStudent)
		guard := NewRouteGuard(state, registry, []rbac.Role{rbac.RoleFaculty}, "")

		result := guard.Evaluate()
		if result.State != GuardRedirect {
			t.Fatalf("expected redirect, got %s", result.State)
		}
		if result.Target != "/student/dashboard" {
			t.Errorf("expected /student/dashboard, got %s", result.Target)
		}
	})

	t.Run("explicit fallback overrides the dashboard redirect", func(t *testing.T) {
		state := NewSessionState()
		state.SetSignedIn("user_1", rbac.RoleStudent)
		guard := NewRouteGuard(state, registry, []rbac.Role{rbac.RoleFaculty}, "/denied")

		result := guard.Evaluate()
		if result.Target != "/denied" {
			t.Errorf("expected /denied, got %s", result.Target)
		}
	})

	t.Run("state transition pending to signed-in flips the verdict", func(t *testing.T) {
		state := NewSessionState()
		guard := NewRouteGuard(state, registry, []rbac.Role{rbac.RoleFaculty}, "")

		if result := guard.Evaluate(); result.State != GuardPending {
			t.Fatalf("expected pending before load, got %s", result.State)
		}

		state.SetSignedIn("user_9", rbac.RoleFaculty)
		if result := guard.Evaluate(); result.State != GuardRender {
			t.Errorf("expected render after load, got %s", result.State)
		}
	})
}

func TestPermissionGate(t *testing.T) {
	registry := newTestRegistry(t)

	t.Run("false while pending", func(t *testing.T) {
		state := NewSessionState()
		if PermissionGate(state, registry, rbac.PermViewStudents) {
			t.Error("gate must be closed while pending")
		}
	})

	t.Run("false when signed out", func(t *testing.T) {
		state := NewSessionState()
		state.SetSignedOut()
		if PermissionGate(state, registry, rbac.PermViewStudents) {
			t.Error("gate must be closed when signed out")
		}
	})

	t.Run("false without the permission", func(t *testing.T) {
		state := NewSessionState()
		state.SetSignedIn("user_1", rbac.RoleStudent)
		if PermissionGate(state, registry, rbac.PermManageUsers) {
			t.Error("student must not pass a manage:users gate")
		}
	})

	t.Run("true with the permission", func(t *testing.T) {
		state := NewSessionState()
		state.SetSignedIn("user_1", rbac.RoleFaculty)
		if !PermissionGate(state, registry, rbac.PermViewStudents) {
			t.Error("faculty must pass a view:students gate")
		}
	})
}

func TestSessionState_Subscribe(t *testing.T) {
	t.Run("subscriber sees the latest snapshot", func(t *testing.T) {
		state := NewSessionState()
		ch, cancel := state.Subscribe()
		defer cancel()

		state.SetSignedIn("user_1", rbac.RoleStudent)

		snap := <-ch
		if !snap.IsSignedIn || snap.UserID != "user_1" {
			t.Errorf("unexpected snapshot: %+v", snap)
		}
	})

	t.Run("undrained notification is replaced not queued", func(t *testing.T) {
		state := NewSessionState()
		ch, cancel := state.Subscribe()
		defer cancel()

		state.SetSignedIn("user_1", rbac.RoleStudent)
		state.SetSignedOut()

		snap := <-ch
		if snap.IsSignedIn {
			t.Error("expected the latest (signed-out) snapshot")
		}
		select {
		case extra := <-ch:
			t.Errorf("expected no queued snapshot, got %+v", extra)
		default:
		}
	})

	t.Run("cancel stops delivery", func(t *testing.T) {
		state := NewSessionState()
		ch, cancel := state.Subscribe()
		cancel()

		state.SetSignedIn("user_1", rbac.RoleStudent)
		select {
		case snap := <-ch:
			t.Errorf("expected no delivery after cancel, got %+v", snap)
		default:
		}
	})
}
