package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cardvault/apiserver/types"
	"github.com/google/uuid"
)

// RoleRepository handles persistence for role assignments.
type RoleRepository struct {
	db *sql.DB
}

func NewRoleRepository(db *sql.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Assign appends one role row per given role. Duplicates are allowed; the
// role set is the set of distinct values present.
func (r *RoleRepository) Assign(ctx context.Context, profileID uuid.UUID, roles []types.Role) error {
	const query = `
		INSERT INTO role (profile_id, role, created_date)
		VALUES ($1, $2, $3)`
	now := time.Now()
	for _, role := range roles {
		if _, err := r.db.ExecContext(ctx, query, profileID, role, now); err != nil {
			return err
		}
	}
	return nil
}

// ListByProfile returns the distinct roles granted to the profile.
func (r *RoleRepository) ListByProfile(ctx context.Context, profileID uuid.UUID) ([]types.Role, error) {
	const query = `
		SELECT DISTINCT role
		FROM role
		WHERE profile_id = $1
		ORDER BY role`
	rows, err := r.db.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []types.Role
	for rows.Next() {
		var role types.Role
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
