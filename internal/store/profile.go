package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cardvault/apiserver/types"
	"github.com/google/uuid"
)

// ProfileRepository handles persistence for profiles.
type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `id, name, username, password_hash, created_date, visible, status`

func scanProfile(row *sql.Row) (types.Profile, error) {
	var p types.Profile
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Username,
		&p.PasswordHash,
		&p.CreatedAt,
		&p.Visible,
		&p.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Profile{}, ErrNotFound
		}
		return types.Profile{}, err
	}
	return p, nil
}

// GetVisibleByID returns a profile that has not been logically deleted.
func (r *ProfileRepository) GetVisibleByID(ctx context.Context, id uuid.UUID) (types.Profile, error) {
	const query = `
		SELECT ` + profileColumns + `
		FROM profile
		WHERE id = $1 AND visible = TRUE`
	return scanProfile(r.db.QueryRowContext(ctx, query, id))
}

// GetVisibleByUsername returns the visible profile owning the username.
func (r *ProfileRepository) GetVisibleByUsername(ctx context.Context, username string) (types.Profile, error) {
	const query = `
		SELECT ` + profileColumns + `
		FROM profile
		WHERE username = $1 AND visible = TRUE`
	return scanProfile(r.db.QueryRowContext(ctx, query, username))
}

// GetByID returns a profile regardless of visibility. Admin read path only.
func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (types.Profile, error) {
	const query = `
		SELECT ` + profileColumns + `
		FROM profile
		WHERE id = $1`
	return scanProfile(r.db.QueryRowContext(ctx, query, id))
}

// List returns every profile, newest first.
func (r *ProfileRepository) List(ctx context.Context) ([]types.Profile, error) {
	const query = `
		SELECT ` + profileColumns + `
		FROM profile
		ORDER BY created_date DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []types.Profile
	for rows.Next() {
		var p types.Profile
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Username,
			&p.PasswordHash,
			&p.CreatedAt,
			&p.Visible,
			&p.Status,
		); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Create inserts a new visible ACTIVE profile. The caller is responsible
// for checking username uniqueness among visible profiles first.
func (r *ProfileRepository) Create(ctx context.Context, profile types.Profile) (types.Profile, error) {
	profile.ID = uuid.New()
	profile.CreatedAt = time.Now()
	profile.Visible = true
	profile.Status = types.ProfileActive

	const query = `
		INSERT INTO profile (id, name, username, password_hash, created_date, visible, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		profile.ID,
		profile.Name,
		profile.Username,
		profile.PasswordHash,
		profile.CreatedAt,
		profile.Visible,
		profile.Status,
	); err != nil {
		return types.Profile{}, err
	}
	return profile, nil
}

// SetStatus writes the profile status unconditionally.
func (r *ProfileRepository) SetStatus(ctx context.Context, id uuid.UUID, status types.ProfileStatus) error {
	const query = `UPDATE profile SET status = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetInvisible logically deletes the profile. The row stays for history.
func (r *ProfileRepository) SetInvisible(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE profile SET visible = FALSE WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
