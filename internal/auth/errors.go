// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a uniqueness constraint is violated,
// such as registering an email that already has an account.
var ErrDuplicate = errors.New("duplicate")
