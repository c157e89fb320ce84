// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wiregate/wiregate/internal/auth"
)

// TokenRepository implements auth.TokenRepository using PostgreSQL.
type TokenRepository struct {
	pool poolIface
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(pool poolIface) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// Create stores a new session token row.
func (r *TokenRepository) Create(ctx context.Context, token *auth.Token) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO session_tokens (token, user_id, client_ip, client_agent, expires_at, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		token.Value,
		token.UserID.String(),
		token.ClientIP,
		token.ClientAgent,
		token.ExpiresAt,
		token.Active,
		token.CreatedAt,
	)
	if err != nil {
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "insert session_token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetActive retrieves the token matching the exact value if it is active
// and unexpired. Expired, revoked, and never-issued values all take the
// same query path and the same ErrNotFound result, so none of them is
// distinguishable to a caller.
func (r *TokenRepository) GetActive(ctx context.Context, value string, now time.Time) (*auth.Token, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT token, user_id, client_ip, client_agent, expires_at, active, created_at
		FROM session_tokens
		WHERE token = $1 AND active = TRUE AND expires_at > $2
	`, value, now)

	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_ACTIVE_FAILED").
			With("operation", "get active token").
			Wrap(err)
	}
	return token, nil
}

// Revoke clears the active flag. The row is retained for audit.
func (r *TokenRepository) Revoke(ctx context.Context, value string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE session_tokens SET active = FALSE
		WHERE token = $1
	`, value)
	if err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").
			With("operation", "revoke session_token").
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// GetByUser retrieves all tokens issued to a user, newest first.
func (r *TokenRepository) GetByUser(ctx context.Context, userID ulid.ULID) ([]*auth.Token, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT token, user_id, client_ip, client_agent, expires_at, active, created_at
		FROM session_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID.String())
	if err != nil {
		return nil, oops.Code("TOKEN_GET_BY_USER_FAILED").
			With("operation", "get tokens by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var tokens []*auth.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, oops.Code("TOKEN_SCAN_FAILED").
				With("operation", "scan token row").
				Wrap(err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, oops.Code("TOKEN_ROWS_ERROR").
			With("operation", "iterate token rows").
			Wrap(err)
	}

	return tokens, nil
}

// scanToken scans a single row into a Token.
// Callers are responsible for handling pgx.ErrNoRows.
func scanToken(row pgx.Row) (*auth.Token, error) {
	var (
		value       string
		userIDStr   string
		clientIP    string
		clientAgent string
		expiresAt   time.Time
		active      bool
		createdAt   time.Time
	)

	if err := row.Scan(&value, &userIDStr, &clientIP, &clientAgent, &expiresAt, &active, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("TOKEN_SCAN_FAILED").
			With("operation", "scan session_token").
			Wrap(err)
	}

	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	return &auth.Token{
		Value:       value,
		UserID:      userID,
		ClientIP:    clientIP,
		ClientAgent: clientAgent,
		ExpiresAt:   expiresAt,
		Active:      active,
		CreatedAt:   createdAt,
	}, nil
}

// Compile-time interface check.
var _ auth.TokenRepository = (*TokenRepository)(nil)
