package users

import (
	"time"

	"github.com/skcetlabs/portal/pkg/rbac"
)

// UserRecord is the durable mirror of an identity-provider user. The
// provider remains the source of truth for authentication; this record
// exists for listings, joins, and reporting.
type UserRecord struct {
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Role       rbac.Role `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
