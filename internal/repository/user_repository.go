package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sourcevia/be-entity-workflow/internal/database"
	"github.com/sourcevia/be-entity-workflow/internal/errors"
)

// UserRepository reads the workflow user directory. The directory is synced
// from the identity platform out-of-band; this service only reads it.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// ListActive returns all active users, ordered by name for the reviewer picker.
func (r *UserRepository) ListActive(ctx context.Context) ([]*User, error) {
	query := `
		SELECT id, name, email, role, is_active
		FROM workflow_users
		WHERE is_active = TRUE
		ORDER BY name ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list active users")
	}
	defer rows.Close()

	return scanUsers(rows)
}

// GetByIDs resolves a set of user IDs, preserving the input order. Unknown or
// inactive IDs are reported as a not-found error so a forward cannot name a
// reviewer who can never act.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) ([]*User, error) {
	query := `
		SELECT id, name, email, role, is_active
		FROM workflow_users
		WHERE id = ANY($1) AND is_active = TRUE
	`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get users")
	}
	defer rows.Close()

	byID := make(map[string]*User, len(ids))
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.IsActive); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan user")
		}
		byID[u.ID] = u
	}

	users := make([]*User, 0, len(ids))
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			return nil, errors.NotFound("user", id)
		}
		users = append(users, u)
	}
	return users, nil
}

// ListByRole returns active users holding the given role, used to resolve
// notification recipients.
func (r *UserRepository) ListByRole(ctx context.Context, role string) ([]*User, error) {
	query := `
		SELECT id, name, email, role, is_active
		FROM workflow_users
		WHERE role = $1 AND is_active = TRUE
		ORDER BY name ASC
	`

	rows, err := r.db.Query(ctx, query, role)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list users by role")
	}
	defer rows.Close()

	return scanUsers(rows)
}

func scanUsers(rows pgx.Rows) ([]*User, error) {
	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.IsActive); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan user")
		}
		users = append(users, u)
	}
	return users, nil
}
