package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/cardvault/apiserver/internal/store"
	"github.com/cardvault/apiserver/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// RoleRepository defines persistence operations for role assignments.
type RoleRepository interface {
	Assign(ctx context.Context, profileID uuid.UUID, roles []types.Role) error
	ListByProfile(ctx context.Context, profileID uuid.UUID) ([]types.Role, error)
}

// AuthService handles registration and credential checks.
type AuthService struct {
	profiles ProfileRepository
	roles    RoleRepository
	log      *logrus.Logger
}

func NewAuthService(profiles ProfileRepository, roles RoleRepository, log *logrus.Logger) *AuthService {
	return &AuthService{profiles: profiles, roles: roles, log: log}
}

// LoginResult is the authenticated profile together with its role set.
// Token issuance happens at the HTTP boundary.
type LoginResult struct {
	Profile types.Profile
	Roles   []types.Role
}

// Register creates a new profile with a bcrypt-hashed password and grants
// it ROLE_USER.
func (s *AuthService) Register(ctx context.Context, name, username, password string) (types.Profile, error) {
	_, err := s.profiles.GetVisibleByUsername(ctx, username)
	if err == nil {
		return types.Profile{}, BadRequest("Username already exists")
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.Profile{}, fmt.Errorf("check username: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	profile, err := s.profiles.Create(ctx, types.Profile{
		Name:         name,
		Username:     username,
		PasswordHash: string(hashed),
	})
	if err != nil {
		return types.Profile{}, fmt.Errorf("create profile: %w", err)
	}

	if err := s.roles.Assign(ctx, profile.ID, []types.Role{types.RoleUser}); err != nil {
		return types.Profile{}, fmt.Errorf("assign role: %w", err)
	}

	s.log.Infof("profile registered: %s", profile.Username)
	return profile, nil
}

// Login verifies the credentials against the visible profile owning the
// username. Any failure, unknown username included, yields the same
// message so login probing cannot distinguish the two.
func (s *AuthService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	profile, err := s.profiles.GetVisibleByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, BadRequest("Invalid username or password")
		}
		return LoginResult{}, fmt.Errorf("load profile: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, BadRequest("Invalid username or password")
	}

	roles, err := s.roles.ListByProfile(ctx, profile.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("load roles: %w", err)
	}

	s.log.Infof("profile logged in: %s", profile.Username)
	return LoginResult{Profile: profile, Roles: roles}, nil
}
