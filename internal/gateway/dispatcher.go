// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

// Package gateway provides the persistent-connection message server and
// the per-message dispatcher that gates resource channels behind bearer
// tokens.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wiregate/wiregate/internal/audit"
	"github.com/wiregate/wiregate/internal/auth"
)

// authNamespace is the channel prefix that bypasses the token gate.
const authNamespace = "auth/"

// Auth channels.
const (
	ChannelRegister      = "auth/register"
	ChannelGenerateToken = "auth/generateToken"
)

// AuthService defines the session-manager operations the dispatcher needs.
type AuthService interface {
	// Register creates a new account.
	Register(ctx context.Context, name, email, password string) (*auth.User, error)

	// IssueToken authenticates and issues a session token.
	IssueToken(ctx context.Context, email, password, clientIP, clientAgent string) (*auth.Token, string, error)

	// VerifyToken resolves a bearer token to its owning user id.
	VerifyToken(ctx context.Context, value string) (ulid.ULID, bool, error)
}

// ResourceHandler performs one gated resource operation. It is invoked only
// after token verification succeeds, with the verified user id.
type ResourceHandler func(ctx context.Context, userID ulid.ULID, payload json.RawMessage) Response

// ConnMeta carries connection-derived client metadata into auth operations.
type ConnMeta struct {
	ClientIP    string
	ClientAgent string
}

// RequestObserver is notified of every dispatched request and its outcome.
// Used to feed metrics without coupling the dispatcher to a registry.
type RequestObserver func(channel, status string)

// AuthFailureObserver is notified of every rejected auth attempt with a
// coarse reason label.
type AuthFailureObserver func(reason string)

// Auth failure reasons reported to the AuthFailureObserver.
const (
	ReasonBadCredentials = "bad_credentials"
	ReasonEmailTaken     = "email_taken"
	ReasonUnauthorized   = "unauthorized"
	ReasonMalformed      = "malformed"
	ReasonInternal       = "internal"
)

// Dispatcher routes one inbound message to exactly one response. It holds
// no per-message state and is safe for concurrent use across connections.
type Dispatcher struct {
	auth        AuthService
	handlers    map[string]ResourceHandler
	sink        audit.Sink
	observe     RequestObserver
	authFailObs AuthFailureObserver
	logger      *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAuditSink sets the audit sink. Defaults to a no-op sink.
func WithAuditSink(sink audit.Sink) DispatcherOption {
	return func(d *Dispatcher) {
		if sink != nil {
			d.sink = sink
		}
	}
}

// WithRequestObserver sets the request observer.
func WithRequestObserver(observe RequestObserver) DispatcherOption {
	return func(d *Dispatcher) {
		if observe != nil {
			d.observe = observe
		}
	}
}

// WithAuthFailureObserver sets the auth failure observer.
func WithAuthFailureObserver(observe AuthFailureObserver) DispatcherOption {
	return func(d *Dispatcher) {
		if observe != nil {
			d.authFailObs = observe
		}
	}
}

// WithLogger sets the dispatcher logger. Defaults to a discard logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a Dispatcher. The handler registry is copied;
// registration is fixed at construction (no globals, no runtime mutation).
func NewDispatcher(authService AuthService, handlers map[string]ResourceHandler, opts ...DispatcherOption) (*Dispatcher, error) {
	if authService == nil {
		return nil, oops.Errorf("auth service is required")
	}

	registry := make(map[string]ResourceHandler, len(handlers))
	for channel, handler := range handlers {
		if strings.HasPrefix(channel, authNamespace) {
			return nil, oops.Code("GATE_RESERVED_CHANNEL").
				With("channel", channel).
				Errorf("channel %q is in the reserved auth namespace", channel)
		}
		registry[channel] = handler
	}

	d := &Dispatcher{
		auth:        authService,
		handlers:    registry,
		sink:        audit.NopSink{},
		observe:     func(string, string) {},
		authFailObs: func(string) {},
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch processes one raw message frame and always returns exactly one
// response. Internal failures, including handler panics, are converted to
// an error response so the connection survives every failed message.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte, meta ConnMeta) (resp Response) {
	channel := "unknown"
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic during dispatch",
				"channel", channel,
				"panic", r,
			)
			resp = Fail(ErrMsgInternal)
		}
		status := "ok"
		if resp.IsError() {
			status = "error"
		}
		d.observe(channel, status)
	}()

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Channel == "" {
		return Fail(ErrMsgMalformed)
	}
	channel = msg.Channel

	if strings.HasPrefix(msg.Channel, authNamespace) {
		return d.dispatchAuth(ctx, msg, meta)
	}
	return d.dispatchResource(ctx, msg, meta)
}

// registerPayload is the auth/register argument shape.
type registerPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenPayload is the auth/generateToken argument shape. client_ip and
// client_agent are never read from the payload; the server supplies them
// from the connection.
type tokenPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d *Dispatcher) dispatchAuth(ctx context.Context, msg Message, meta ConnMeta) Response {
	switch msg.Channel {
	case ChannelRegister:
		return d.handleRegister(ctx, msg, meta)
	case ChannelGenerateToken:
		return d.handleGenerateToken(ctx, msg, meta)
	default:
		return Fail(ErrMsgUnknownChannel)
	}
}

func (d *Dispatcher) handleRegister(ctx context.Context, msg Message, meta ConnMeta) Response {
	var p registerPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return Fail(ErrMsgMalformed)
	}
	if p.Name == "" || p.Email == "" || p.Password == "" {
		return Fail(ErrMsgMalformed)
	}

	user, err := d.auth.Register(ctx, p.Name, p.Email, p.Password)
	if err != nil {
		return d.authFailure(msg.Channel, meta, err)
	}

	d.sink.Emit(audit.Event{
		Time:        time.Now(),
		Kind:        audit.KindRegister,
		Channel:     msg.Channel,
		UserID:      user.ID.String(),
		ClientIP:    meta.ClientIP,
		ClientAgent: meta.ClientAgent,
	})

	return OK(map[string]any{"userId": user.ID.String()})
}

func (d *Dispatcher) handleGenerateToken(ctx context.Context, msg Message, meta ConnMeta) Response {
	var p tokenPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return Fail(ErrMsgMalformed)
	}
	if p.Email == "" || p.Password == "" {
		return Fail(ErrMsgMalformed)
	}

	token, plaintext, err := d.auth.IssueToken(ctx, p.Email, p.Password, meta.ClientIP, meta.ClientAgent)
	if err != nil {
		return d.authFailure(msg.Channel, meta, err)
	}

	d.sink.Emit(audit.Event{
		Time:        time.Now(),
		Kind:        audit.KindLogin,
		Channel:     msg.Channel,
		UserID:      token.UserID.String(),
		ClientIP:    meta.ClientIP,
		ClientAgent: meta.ClientAgent,
	})

	return OK(map[string]any{
		"token":     plaintext,
		"expiresAt": token.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// authFailure maps a session-manager error to its wire message and records
// the failure.
func (d *Dispatcher) authFailure(channel string, meta ConnMeta, err error) Response {
	msg := ErrMsgInternal
	kind := audit.KindDispatch
	reason := ReasonInternal

	if oopsErr, ok := oops.AsOops(err); ok {
		switch oopsErr.Code() {
		case "AUTH_EMAIL_TAKEN":
			msg = ErrMsgEmailTaken
			reason = ReasonEmailTaken
		case "AUTH_INVALID_CREDENTIALS":
			msg = ErrMsgBadCredentials
			kind = audit.KindLoginFailed
			reason = ReasonBadCredentials
		case "AUTH_INVALID_NAME", "AUTH_INVALID_EMAIL", "AUTH_EMPTY_PASSWORD":
			msg = ErrMsgMalformed
			reason = ReasonMalformed
		}
	}
	d.authFailObs(reason)

	if msg == ErrMsgInternal {
		d.logger.Error("auth operation failed",
			"channel", channel,
			"error", err,
		)
	}

	d.sink.Emit(audit.Event{
		Time:        time.Now(),
		Kind:        kind,
		Channel:     channel,
		ClientIP:    meta.ClientIP,
		ClientAgent: meta.ClientAgent,
		Detail:      msg,
	})

	return Fail(msg)
}

func (d *Dispatcher) dispatchResource(ctx context.Context, msg Message, meta ConnMeta) Response {
	userID, ok, err := d.auth.VerifyToken(ctx, msg.APIToken)
	if err != nil {
		// Store failure: fail closed without touching the handler, but
		// surface it as internal rather than blaming the credential.
		d.logger.Error("token verification failed",
			"channel", msg.Channel,
			"error", err,
		)
		return Fail(ErrMsgInternal)
	}
	if !ok {
		d.authFailObs(ReasonUnauthorized)
		d.sink.Emit(audit.Event{
			Time:        time.Now(),
			Kind:        audit.KindUnauthorized,
			Channel:     msg.Channel,
			ClientIP:    meta.ClientIP,
			ClientAgent: meta.ClientAgent,
		})
		return Fail(ErrMsgUnauthorized)
	}

	handler, found := d.handlers[msg.Channel]
	if !found {
		return Fail(ErrMsgUnknownChannel)
	}

	resp := handler(ctx, userID, msg.Payload)

	d.sink.Emit(audit.Event{
		Time:        time.Now(),
		Kind:        audit.KindDispatch,
		Channel:     msg.Channel,
		UserID:      userID.String(),
		ClientIP:    meta.ClientIP,
		ClientAgent: meta.ClientAgent,
	})

	return resp
}
