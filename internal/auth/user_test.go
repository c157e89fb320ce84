// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiregate/wiregate/internal/auth"
	"github.com/wiregate/wiregate/pkg/errutil"
)

func TestNewUser(t *testing.T) {
	t.Run("valid user", func(t *testing.T) {
		user, err := auth.NewUser("Ada", "ada@example.com", "$argon2id$fake")
		require.NoError(t, err)
		assert.NotEqual(t, ulid.ULID{}, user.ID)
		assert.Equal(t, "Ada", user.Name)
		assert.Equal(t, "ada@example.com", user.Email)
		assert.False(t, user.CreatedAt.IsZero())
		assert.Equal(t, user.CreatedAt, user.UpdatedAt)
	})

	t.Run("empty hash rejected", func(t *testing.T) {
		_, err := auth.NewUser("Ada", "ada@example.com", "")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
	})

	t.Run("unique IDs", func(t *testing.T) {
		a, err := auth.NewUser("Ada", "ada@example.com", "$argon2id$fake")
		require.NoError(t, err)
		b, err := auth.NewUser("Ada", "ada2@example.com", "$argon2id$fake")
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"single character", "A", false},
		{"typical name", "Ada Lovelace", false},
		{"max length", strings.Repeat("a", auth.MaxNameLength), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", auth.MaxNameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "AUTH_INVALID_NAME")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"typical address", "ada@example.com", false},
		{"subdomain", "ada@mail.example.co.uk", false},
		{"plus tag", "ada+test@example.com", false},
		{"empty", "", true},
		{"missing at", "ada.example.com", true},
		{"missing domain dot", "ada@example", true},
		{"embedded space", "ada lovelace@example.com", true},
		{"double at", "ada@@example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateEmail(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "AUTH_INVALID_EMAIL")
			} else {
				require.NoError(t, err)
			}
		})
	}
}
