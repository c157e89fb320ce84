// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	// TokenBytes is the entropy of a session token. 32 random bytes hex
	// encode to the 64-character opaque string clients present.
	TokenBytes = 32

	// DefaultTokenTTL is the validity window applied when the service is
	// constructed without an explicit TTL.
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// Token is a bearer session token. The Value string is the credential
// itself; it is unguessable (crypto-random) and unique by construction.
// ClientIP and ClientAgent are audit metadata captured at issuance and are
// never used for enforcement. Rows are soft-revoked via Active and retained
// for audit, never deleted by this subsystem.
type Token struct {
	Value       string
	UserID      ulid.ULID
	ClientIP    string
	ClientAgent string
	ExpiresAt   time.Time
	Active      bool
	CreatedAt   time.Time
}

// NewToken creates a validated Token. ClientIP and ClientAgent may be empty.
func NewToken(userID ulid.ULID, value, clientIP, clientAgent string, expiresAt time.Time) (*Token, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if value == "" {
		return nil, oops.Code("TOKEN_INVALID_VALUE").Errorf("token value cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &Token{
		Value:       value,
		UserID:      userID,
		ClientIP:    clientIP,
		ClientAgent: clientAgent,
		ExpiresAt:   expiresAt,
		Active:      true,
		CreatedAt:   time.Now(),
	}, nil
}

// Valid reports whether the token is usable right now.
// A token is valid if and only if it is active and not past expiry.
func (t *Token) Valid() bool {
	return t.ValidAt(time.Now())
}

// ValidAt reports whether the token would be usable at the given time.
// Useful for testing with deterministic time values.
func (t *Token) ValidAt(now time.Time) bool {
	return t.Active && now.Before(t.ExpiresAt)
}

// GenerateToken creates a cryptographically random session token value.
func GenerateToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}

// TokenRepository manages session token persistence.
type TokenRepository interface {
	// Create stores a new token row.
	Create(ctx context.Context, token *Token) error

	// GetActive retrieves the token matching the exact value, but only if
	// it is active and expires after now. Expired, revoked, and
	// never-issued tokens are indistinguishable: all return ErrNotFound.
	GetActive(ctx context.Context, value string, now time.Time) (*Token, error)

	// Revoke clears the active flag. The row is retained for audit.
	// Returns ErrNotFound if no such token exists.
	Revoke(ctx context.Context, value string) error

	// GetByUser retrieves all tokens issued to a user, newest first.
	GetByUser(ctx context.Context, userID ulid.ULID) ([]*Token, error)
}
