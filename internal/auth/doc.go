// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

// Package auth provides the credential and session-token subsystem for
// WireGate.
//
// # Domain Types
//
// Domain types (User, Token) should be created through their constructors:
//   - NewUser - creates a User with a validated name, email, and password hash
//   - NewToken - creates a Token bound to a user with a validated expiry
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated values from these
// constructors.
//
// # Service
//
// Service is the session manager. It orchestrates registration, token
// issuance, verification, and revocation against the UserRepository and
// TokenRepository, and owns every authentication invariant: email
// uniqueness, unified login failure errors, and the token validity rule
// (active and not past expiry).
package auth
