// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dummyPasswordHash is used when a user doesn't exist to prevent timing
// attacks. We still run password verification to make response time
// consistent. This is NOT a real credential - it's a fake hash that will
// never match any password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service is the session manager. It is stateless aside from its
// repository handles and safe for concurrent use.
type Service struct {
	users  UserRepository
	tokens TokenRepository
	hasher PasswordHasher
	ttl    time.Duration
}

// NewService creates a new Service. A ttl of zero selects DefaultTokenTTL.
func NewService(users UserRepository, tokens TokenRepository, hasher PasswordHasher, ttl time.Duration) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if ttl < 0 {
		return nil, oops.Errorf("token TTL cannot be negative")
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		ttl:    ttl,
	}, nil
}

// TokenTTL returns the validity window applied to issued tokens.
func (s *Service) TokenTTL() time.Duration {
	return s.ttl
}

// Register creates a new account. Email uniqueness is enforced by the
// store's unique constraint, so concurrent registrations for the same
// email yield exactly one success; the rest fail with AUTH_EMAIL_TAKEN and
// write nothing.
func (s *Service) Register(ctx context.Context, name, email, password string) (*User, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, ErrEmptyPassword) {
			return nil, err
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(name, email, hash)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, oops.Code("AUTH_EMAIL_TAKEN").
				With("email", email).
				Wrap(err)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}

	return user, nil
}

// IssueToken authenticates a user by email and password and issues a new
// session token. Returns the persisted token row and its plaintext value.
//
// Unknown email and wrong password produce the same AUTH_INVALID_CREDENTIALS
// error so callers cannot enumerate registered addresses, and verification
// runs against a dummy hash when the user is absent to keep response time
// consistent. Failed attempts persist nothing.
func (s *Service) IssueToken(ctx context.Context, email, password, clientIP, clientAgent string) (*Token, string, error) {
	user, lookupErr := s.users.GetByEmail(ctx, email)

	var targetHash string
	var userExists bool

	if lookupErr != nil {
		if errors.Is(lookupErr, ErrNotFound) {
			targetHash = dummyPasswordHash
		} else {
			return nil, "", oops.Code("AUTH_ISSUE_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			// Dummy hash verification errors collapse to the unified failure.
			return nil, "", errInvalidCredentials()
		}
		return nil, "", oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists || !valid {
		return nil, "", errInvalidCredentials()
	}

	value, err := GenerateToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "generate token").
			Wrap(err)
	}

	token, err := NewToken(user.ID, value, clientIP, clientAgent, time.Now().Add(s.ttl))
	if err != nil {
		return nil, "", oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "create token").
			Wrap(err)
	}

	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, "", oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "persist token").
			Wrap(err)
	}

	return token, value, nil
}

// VerifyToken resolves a bearer token to its owning user id. It is
// side-effect-free and idempotent: expired, revoked, and never-issued
// tokens all yield (zero, false, nil). A non-nil error means the store
// failed and the caller must still deny access.
func (s *Service) VerifyToken(ctx context.Context, value string) (ulid.ULID, bool, error) {
	if value == "" {
		return ulid.ULID{}, false, nil
	}

	token, err := s.tokens.GetActive(ctx, value, time.Now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, false, nil
		}
		return ulid.ULID{}, false, oops.Code("AUTH_VERIFY_FAILED").
			With("operation", "get active token").
			Wrap(err)
	}

	return token.UserID, true, nil
}

// RevokeToken soft-revokes a token by clearing its active flag. The row is
// retained for audit. Revoking an unknown token is not an error to the
// caller's advantage; it still returns AUTH_TOKEN_UNKNOWN for logging.
func (s *Service) RevokeToken(ctx context.Context, value string) error {
	if value == "" {
		return oops.Code("AUTH_TOKEN_UNKNOWN").Errorf("token cannot be empty")
	}
	if err := s.tokens.Revoke(ctx, value); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_TOKEN_UNKNOWN").Wrap(err)
		}
		return oops.Code("AUTH_REVOKE_FAILED").
			With("operation", "revoke token").
			Wrap(err)
	}
	return nil
}

func errInvalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid email or password")
}
