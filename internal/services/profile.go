package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/cardvault/apiserver/internal/store"
	"github.com/cardvault/apiserver/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProfileRepository defines persistence operations for profiles.
type ProfileRepository interface {
	GetVisibleByID(ctx context.Context, id uuid.UUID) (types.Profile, error)
	GetVisibleByUsername(ctx context.Context, username string) (types.Profile, error)
	GetByID(ctx context.Context, id uuid.UUID) (types.Profile, error)
	List(ctx context.Context) ([]types.Profile, error)
	Create(ctx context.Context, profile types.Profile) (types.Profile, error)
	SetStatus(ctx context.Context, id uuid.UUID, status types.ProfileStatus) error
	SetInvisible(ctx context.Context, id uuid.UUID) error
}

// ProfileView is the profile projection returned to administrators.
type ProfileView struct {
	ID       uuid.UUID
	Name     string
	Username string
	Status   types.ProfileStatus
	Roles    []types.Role
}

// ProfileService implements the admin profile lifecycle.
type ProfileService struct {
	profiles ProfileRepository
	roles    RoleRepository
	log      *logrus.Logger
}

func NewProfileService(profiles ProfileRepository, roles RoleRepository, log *logrus.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, roles: roles, log: log}
}

// List returns every profile with its role set. Admin only.
func (s *ProfileService) List(ctx context.Context, principal types.Principal) ([]ProfileView, error) {
	if !principal.IsAdmin() {
		return nil, Forbidden("Admin privileges are required")
	}

	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	views := make([]ProfileView, 0, len(profiles))
	for _, p := range profiles {
		roles, err := s.roles.ListByProfile(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("load roles for %s: %w", p.ID, err)
		}
		views = append(views, toProfileView(p, roles))
	}
	return views, nil
}

// GetByID returns one profile with its role set. Admin only.
func (s *ProfileService) GetByID(ctx context.Context, principal types.Principal, profileID uuid.UUID) (ProfileView, error) {
	if !principal.IsAdmin() {
		return ProfileView{}, Forbidden("Admin privileges are required")
	}

	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ProfileView{}, NotFound("Profile not found")
		}
		return ProfileView{}, fmt.Errorf("load profile: %w", err)
	}

	roles, err := s.roles.ListByProfile(ctx, profile.ID)
	if err != nil {
		return ProfileView{}, fmt.Errorf("load roles: %w", err)
	}
	return toProfileView(profile, roles), nil
}

// ChangeStatus writes the profile status. Re-blocking an already BLOCKED
// profile is rejected before anything is written.
func (s *ProfileService) ChangeStatus(ctx context.Context, principal types.Principal, profileID uuid.UUID, status types.ProfileStatus) error {
	if !principal.IsAdmin() {
		return Forbidden("Admin privileges are required")
	}

	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("Profile not found")
		}
		return fmt.Errorf("load profile: %w", err)
	}

	if profile.Status == types.ProfileBlocked && status == types.ProfileBlocked {
		return BadRequest("Profile is already blocked")
	}

	if err := s.profiles.SetStatus(ctx, profileID, status); err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	s.log.Infof("profile %s status changed to %s", profileID, status)
	return nil
}

// Delete logically deletes the profile. Admin only.
func (s *ProfileService) Delete(ctx context.Context, principal types.Principal, profileID uuid.UUID) error {
	if !principal.IsAdmin() {
		return Forbidden("Admin privileges are required")
	}

	if err := s.profiles.SetInvisible(ctx, profileID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("Profile not found")
		}
		return fmt.Errorf("delete profile: %w", err)
	}

	s.log.Infof("profile deleted: %s", profileID)
	return nil
}

func toProfileView(profile types.Profile, roles []types.Role) ProfileView {
	return ProfileView{
		ID:       profile.ID,
		Name:     profile.Name,
		Username: profile.Username,
		Status:   profile.Status,
		Roles:    roles,
	}
}
