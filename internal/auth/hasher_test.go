// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiregate/wiregate/internal/auth"
	"github.com/wiregate/wiregate/pkg/errutil"
)

func TestArgon2idHasher_HashAndVerify(t *testing.T) {
	hasher := auth.NewArgon2idHasher(auth.DefaultHashCost)

	hash, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := hasher.Verify("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2idHasher_EmptyPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher(auth.DefaultHashCost)

	_, err := hasher.Hash("")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
}

func TestArgon2idHasher_UniqueSalts(t *testing.T) {
	hasher := auth.NewArgon2idHasher(auth.DefaultHashCost)

	first, err := hasher.Hash("password123")
	require.NoError(t, err)
	second, err := hasher.Hash("password123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestArgon2idHasher_VerifyAcrossCosts(t *testing.T) {
	// Parameters are encoded in the PHC string, so a hash produced under
	// one cost must verify under a hasher configured with another.
	old := auth.NewArgon2idHasher(1)
	hash, err := old.Hash("password123")
	require.NoError(t, err)

	current := auth.NewArgon2idHasher(3)
	ok, err := current.Verify("password123", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestArgon2idHasher_InvalidHashFormats(t *testing.T) {
	hasher := auth.NewArgon2idHasher(auth.DefaultHashCost)

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"garbage", "not-a-hash"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"missing sections", "$argon2id$v=19$m=65536,t=1,p=4"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=1,p=4$!!!!$aGFzaA"},
		{"bad params", "$argon2id$v=19$bogus$c2FsdA$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := hasher.Verify("password123", tt.hash)
			require.Error(t, err)
			assert.False(t, ok)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
		})
	}
}

func TestNewArgon2idHasher_CostFloor(t *testing.T) {
	// Costs below 1 fall back to the default instead of producing a
	// zero-iteration hash.
	hasher := auth.NewArgon2idHasher(0)

	hash, err := hasher.Hash("password123")
	require.NoError(t, err)
	assert.Contains(t, hash, ",t=1,")
}
