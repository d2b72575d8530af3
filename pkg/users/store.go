package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/skcetlabs/portal/pkg/rbac"
)

// ErrNotFound is returned when no mirrored user matches the external ID
var ErrNotFound = errors.New("user not found")

// Store persists the mirrored user records in Postgres
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database handle
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the users table if it does not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS portal_users (
			external_id TEXT PRIMARY KEY,
			email       TEXT NOT NULL DEFAULT '',
			first_name  TEXT NOT NULL DEFAULT '',
			last_name   TEXT NOT NULL DEFAULT '',
			role        TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to ensure users schema: %w", err)
	}
	return nil
}

// Upsert inserts the user or refreshes an existing row. Webhook deliveries
// can arrive more than once and out of order, so created events must not
// fail on an existing row.
func (s *Store) Upsert(ctx context.Context, user UserRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portal_users (external_id, email, first_name, last_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (external_id) DO UPDATE SET
			email      = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			role       = EXCLUDED.role,
			updated_at = now()`,
		user.ExternalID, user.Email, user.FirstName, user.LastName, string(user.Role))
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.ExternalID, err)
	}
	return nil
}

// Update refreshes the mutable fields of an existing row. Updating a user
// that was never mirrored falls back to an insert, which keeps replayed or
// reordered deliveries idempotent.
func (s *Store) Update(ctx context.Context, user UserRecord) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE portal_users
		SET email = $2, first_name = $3, last_name = $4, role = $5, updated_at = now()
		WHERE external_id = $1`,
		user.ExternalID, user.Email, user.FirstName, user.LastName, string(user.Role))
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", user.ExternalID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for %s: %w", user.ExternalID, err)
	}
	if rows == 0 {
		return s.Upsert(ctx, user)
	}
	return nil
}

// Delete removes the mirrored row. Deleting an absent user is not an
// error; the desired end state already holds.
func (s *Store) Delete(ctx context.Context, externalID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM portal_users WHERE external_id = $1`, externalID)
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", externalID, err)
	}
	return nil
}

// SetRole updates only the role column, used by onboarding self-assignment
func (s *Store) SetRole(ctx context.Context, externalID string, role rbac.Role) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE portal_users SET role = $2, updated_at = now()
		WHERE external_id = $1`,
		externalID, string(role))
	if err != nil {
		return fmt.Errorf("failed to set role for %s: %w", externalID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read role update result for %s: %w", externalID, err)
	}
	if rows == 0 {
		// The lifecycle webhook may not have landed yet; mirror what we know
		return s.Upsert(ctx, UserRecord{ExternalID: externalID, Role: role})
	}
	return nil
}

// GetByExternalID fetches one mirrored user
func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*UserRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT external_id, email, first_name, last_name, role, created_at, updated_at
		FROM portal_users WHERE external_id = $1`, externalID)

	var user UserRecord
	var role string
	err := row.Scan(&user.ExternalID, &user.Email, &user.FirstName, &user.LastName, &role, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", externalID, err)
	}
	user.Role = rbac.Role(role)
	return &user, nil
}

// List returns mirrored users ordered by creation time, newest first
func (s *Store) List(ctx context.Context, limit, offset int) ([]UserRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, email, first_name, last_name, role, created_at, updated_at
		FROM portal_users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []UserRecord
	for rows.Next() {
		var user UserRecord
		var role string
		if err := rows.Scan(&user.ExternalID, &user.Email, &user.FirstName, &user.LastName, &role, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		user.Role = rbac.Role(role)
		users = append(users, user)
	}
	return users, rows.Err()
}

// Count returns the number of mirrored users
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM portal_users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
