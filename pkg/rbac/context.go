package rbac

import (
	"context"

	"github.com/skcetlabs/portal/pkg/contextkeys"
)

// PrincipalFromContext retrieves the principal the edge gate resolved for
// this request. ok is false when no gate ran, e.g. in direct handler tests.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(contextkeys.PrincipalKey).(Principal)
	return principal, ok
}
