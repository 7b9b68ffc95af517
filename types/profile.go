package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProfileStatus is the lifecycle state of a profile.
type ProfileStatus string

const (
	ProfileActive  ProfileStatus = "ACTIVE"
	ProfileBlocked ProfileStatus = "BLOCKED"
)

// ParseProfileStatus validates a client-supplied profile status value.
func ParseProfileStatus(s string) (ProfileStatus, error) {
	switch ProfileStatus(s) {
	case ProfileActive, ProfileBlocked:
		return ProfileStatus(s), nil
	default:
		return "", fmt.Errorf("unknown profile status %q", s)
	}
}

// Role is an authorization role granted to a profile. A profile may carry
// several role rows; authorization treats them as a set.
type Role string

const (
	RoleUser  Role = "ROLE_USER"
	RoleAdmin Role = "ROLE_ADMIN"
)

// ParseRole validates a role name, e.g. one recovered from a token claim.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Profile represents an end-user account.
type Profile struct {
	// ID is the server-assigned identifier of the profile.
	ID uuid.UUID `json:"id" db:"id"`

	// Name is the profile's display name.
	Name string `json:"name" db:"name"`

	// Username is unique among visible profiles.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the bcrypt hash of the profile's password.
	// Never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the profile was registered.
	CreatedAt time.Time `json:"created_at" db:"created_date"`

	// Visible is the logical-deletion flag. Deleted profiles keep their
	// row but are excluded from every read path.
	Visible bool `json:"-" db:"visible"`

	// Status is ACTIVE or BLOCKED.
	Status ProfileStatus `json:"status" db:"status"`
}

// RoleAssignment binds one role to a profile.
type RoleAssignment struct {
	ID        int       `json:"id" db:"id"`
	ProfileID uuid.UUID `json:"profile_id" db:"profile_id"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_date"`
}
