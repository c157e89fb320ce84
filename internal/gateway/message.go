// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

package gateway

import "encoding/json"

// Message is one inbound request frame. Channel names an operation and is
// namespaced by "/": the auth/ namespace bypasses the token gate, every
// other namespace requires APIToken. Agent is optional connection metadata
// (the raw TCP transport has no handshake header to carry it); the first
// non-empty value seen on a connection sticks for its lifetime.
type Message struct {
	Channel  string          `json:"channel"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	APIToken string          `json:"apiToken,omitempty"`
	Agent    string          `json:"agent,omitempty"`
}

// Response is the single reply produced for one Message: either a success
// object carrying "success": true plus result fields, or {"error": msg}.
type Response map[string]any

// OK builds a success response with the given result fields.
func OK(fields map[string]any) Response {
	resp := Response{"success": true}
	for k, v := range fields {
		resp[k] = v
	}
	return resp
}

// Fail builds an error response.
func Fail(msg string) Response {
	return Response{"error": msg}
}

// IsError reports whether the response carries an error.
func (r Response) IsError() bool {
	_, ok := r["error"]
	return ok
}

// Client-visible error messages. Unauthorized deliberately collapses
// missing, invalid, expired, and revoked tokens into one signal, and the
// login failure never reveals whether the email exists.
const (
	ErrMsgMalformed      = "malformed request"
	ErrMsgUnknownChannel = "unknown channel"
	ErrMsgUnauthorized   = "unauthorized or expired token"
	ErrMsgEmailTaken     = "email already registered"
	ErrMsgBadCredentials = "invalid email or password"
	ErrMsgInternal       = "internal error"
)
