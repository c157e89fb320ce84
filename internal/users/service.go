// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

// Package users provides the user CRUD resource handlers served behind the
// token gate. The auth subsystem treats these as external collaborators;
// they share the users table but never see a password hash leave it.
package users

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wiregate/wiregate/internal/auth"
)

// Profile is the read projection of a user. It deliberately excludes the
// password hash.
type Profile struct {
	ID        ulid.ULID
	Name      string
	Email     string
	CreatedAt time.Time
}

// Service provides user management operations.
type Service struct {
	users  auth.UserRepository
	hasher auth.PasswordHasher
}

// NewService creates a user management service.
func NewService(users auth.UserRepository, hasher auth.PasswordHasher) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &Service{users: users, hasher: hasher}, nil
}

// Create creates a user account on behalf of an authenticated caller.
// Same shape as registration: the email must be unused and the password is
// hashed before it is stored.
func (s *Service) Create(ctx context.Context, name, email, password string) (*Profile, error) {
	if err := auth.ValidateName(name); err != nil {
		return nil, err
	}
	if err := auth.ValidateEmail(email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrEmptyPassword) {
			return nil, err
		}
		return nil, oops.Code("USERS_CREATE_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := auth.NewUser(name, email, hash)
	if err != nil {
		return nil, oops.Code("USERS_CREATE_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, auth.ErrDuplicate) {
			return nil, oops.Code("USERS_EMAIL_TAKEN").
				With("email", email).
				Wrap(err)
		}
		return nil, oops.Code("USERS_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}

	return profileOf(user), nil
}

// Get retrieves a user profile by id.
func (s *Service) Get(ctx context.Context, id ulid.ULID) (*Profile, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, oops.Code("USERS_NOT_FOUND").
				With("id", id.String()).
				Wrap(err)
		}
		return nil, oops.Code("USERS_GET_FAILED").
			With("operation", "get user").
			With("id", id.String()).
			Wrap(err)
	}
	return profileOf(user), nil
}

// Update changes a user's name and email.
func (s *Service) Update(ctx context.Context, id ulid.ULID, name, email string) error {
	if err := auth.ValidateName(name); err != nil {
		return err
	}
	if err := auth.ValidateEmail(email); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return oops.Code("USERS_NOT_FOUND").
				With("id", id.String()).
				Wrap(err)
		}
		return oops.Code("USERS_UPDATE_FAILED").
			With("operation", "get user").
			With("id", id.String()).
			Wrap(err)
	}

	user.Name = name
	user.Email = email

	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, auth.ErrNotFound):
			return oops.Code("USERS_NOT_FOUND").
				With("id", id.String()).
				Wrap(err)
		case errors.Is(err, auth.ErrDuplicate):
			return oops.Code("USERS_EMAIL_TAKEN").
				With("email", email).
				Wrap(err)
		default:
			return oops.Code("USERS_UPDATE_FAILED").
				With("operation", "update user").
				With("id", id.String()).
				Wrap(err)
		}
	}
	return nil
}

// Delete removes a user account.
func (s *Service) Delete(ctx context.Context, id ulid.ULID) error {
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return oops.Code("USERS_NOT_FOUND").
				With("id", id.String()).
				Wrap(err)
		}
		return oops.Code("USERS_DELETE_FAILED").
			With("operation", "delete user").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

func profileOf(user *auth.User) *Profile {
	return &Profile{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}
