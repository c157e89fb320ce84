// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiregate/wiregate/internal/audit"
	"github.com/wiregate/wiregate/internal/auth"
	"github.com/wiregate/wiregate/internal/gateway"
)

// stubAuthService is a hand-rolled gateway.AuthService for dispatcher tests.
type stubAuthService struct {
	registerUser *auth.User
	registerErr  error

	issueToken *auth.Token
	issueValue string
	issueErr   error

	verifyUserID ulid.ULID
	verifyOK     bool
	verifyErr    error

	mu            sync.Mutex
	verifiedWith  []string
	issuedMeta    []string
	registerCalls int
}

func (s *stubAuthService) Register(_ context.Context, _, _, _ string) (*auth.User, error) {
	s.mu.Lock()
	s.registerCalls++
	s.mu.Unlock()
	return s.registerUser, s.registerErr
}

func (s *stubAuthService) IssueToken(_ context.Context, _, _, clientIP, clientAgent string) (*auth.Token, string, error) {
	s.mu.Lock()
	s.issuedMeta = append(s.issuedMeta, clientIP+"|"+clientAgent)
	s.mu.Unlock()
	return s.issueToken, s.issueValue, s.issueErr
}

func (s *stubAuthService) VerifyToken(_ context.Context, value string) (ulid.ULID, bool, error) {
	s.mu.Lock()
	s.verifiedWith = append(s.verifiedWith, value)
	s.mu.Unlock()
	return s.verifyUserID, s.verifyOK, s.verifyErr
}

// recordingSink captures audit events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Emit(event audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) kinds() []audit.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]audit.Kind, len(s.events))
	for i, e := range s.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func frame(t *testing.T, channel string, payload any, token string) []byte {
	t.Helper()
	msg := map[string]any{"channel": channel}
	if payload != nil {
		msg["payload"] = payload
	}
	if token != "" {
		msg["apiToken"] = token
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return raw
}

func TestNewDispatcher(t *testing.T) {
	t.Run("nil auth service rejected", func(t *testing.T) {
		d, err := gateway.NewDispatcher(nil, nil)
		require.Error(t, err)
		assert.Nil(t, d)
	})

	t.Run("handler in auth namespace rejected", func(t *testing.T) {
		handlers := map[string]gateway.ResourceHandler{
			"auth/steal": func(context.Context, ulid.ULID, json.RawMessage) gateway.Response {
				return gateway.OK(nil)
			},
		}
		d, err := gateway.NewDispatcher(&stubAuthService{}, handlers)
		require.Error(t, err)
		assert.Nil(t, d)
		assert.Contains(t, err.Error(), "reserved")
	})
}

func TestDispatcher_Malformed(t *testing.T) {
	ctx := context.Background()
	d, err := gateway.NewDispatcher(&stubAuthService{}, nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  []byte
	}{
		{"invalid json", []byte(`{not json`)},
		{"empty object", []byte(`{}`)},
		{"missing channel", []byte(`{"payload":{}}`)},
		{"channel wrong type", []byte(`{"channel":42}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := d.Dispatch(ctx, tt.raw, gateway.ConnMeta{})
			assert.Equal(t, gateway.Fail(gateway.ErrMsgMalformed), resp)
		})
	}
}

func TestDispatcher_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		user, err := auth.NewUser("Ada", "ada@example.com", "$argon2id$fake")
		require.NoError(t, err)

		sink := &recordingSink{}
		svc := &stubAuthService{registerUser: user}
		d, err := gateway.NewDispatcher(svc, nil, gateway.WithAuditSink(sink))
		require.NoError(t, err)

		raw := frame(t, gateway.ChannelRegister,
			map[string]string{"name": "Ada", "email": "ada@example.com", "password": "pw"}, "")
		resp := d.Dispatch(ctx, raw, gateway.ConnMeta{ClientIP: "192.0.2.1"})

		assert.Equal(t, true, resp["success"])
		assert.Equal(t, user.ID.String(), resp["userId"])
		assert.Equal(t, []audit.Kind{audit.KindRegister}, sink.kinds())
	})

	t.Run("email taken", func(t *testing.T) {
		svc := &stubAuthService{registerErr: oops.Code("AUTH_EMAIL_TAKEN").Errorf("taken")}
		d, err := gateway.NewDispatcher(svc, nil)
		require.NoError(t, err)

		raw := frame(t, gateway.ChannelRegister,
			map[string]string{"name": "Ada", "email": "ada@example.com", "password": "pw"}, "")
		resp := d.Dispatch(ctx, raw, gateway.ConnMeta{})

		assert.Equal(t, gateway.Fail(gateway.ErrMsgEmailTaken), resp)
	})

	t.Run("missing fields", func(t *testing.T) {
		svc := &stubAuthService{}
		d, err := gateway.NewDispatcher(svc, nil)
		require.NoError(t, err)

		raw := frame(t, gateway.ChannelRegister, map[string]string{"name": "Ada"}, "")
		resp := d.Dispatch(ctx, raw, gateway.ConnMeta{})

		assert.Equal(t, gateway.Fail(gateway.ErrMsgMalformed), resp)
		assert.Zero(t, svc.registerCalls)
	})

	t.Run("internal failure hidden from client", func(t *testing.T) {
		svc := &stubAuthService{registerErr: errors.New("connection refused")}
		d, err := gateway.NewDispatcher(svc, nil)
		require.NoError(t, err)

		raw := frame(t, gateway.ChannelRegister,
			map[string]string{"name": "Ada", "email": "ada@example.com", "password": "pw"}, "")
		resp := d.Dispatch(ctx, raw, gateway.ConnMeta{})

		assert.Equal(t, gateway.Fail(gateway.ErrMsgInternal), resp)
	})
}

func TestDispatcher_GenerateToken(t *testing.T) {
	ctx := context.Background()

	t.Run("success includes token and expiry", func(t *testing.T) {
		userID := ulid.Make()
		expiry := time.Now().Add(time.Hour)
		token, err := auth.NewToken(userID, "deadbeef", "192.0.2.1", "TestClient/1.0", expiry)
		require.NoError(t, err)

		svc := &stubAuthService{issueToken: token, issueValue: "deadbeef"}
		d, err := gateway.NewDispatcher(svc, nil)
		require.NoError(t, err)

		raw := frame(t, gateway.ChannelGenerateToken,
			map[string]string{"email": "ada@example.com", "password": "pw"}, "")
		resp := d.Dispatch(ctx, raw, gateway.ConnMeta{ClientIP: "192.0.2.1", ClientAgent: "TestClient/1.0"})

		assert.Equal(t, true, resp["success"])
		assert.Equal(t, "deadbeef", resp["token"])
		assert.Equal(t, expiry.UTC().Format(time.RFC3339), resp["expiresAt"])
		require.Len(t, svc.issuedMeta, 1)
		assert.Equal(t, "192.0.2.1|TestClient/1.0", svc.issuedMeta[0])
	})

	t.Run("bad credentials", func(t *testing.T) {
		sink := &recordingSink{}
		svc := &stubAuthService{issueErr: oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("nope")}
		d, err := gateway.NewDispatcher(svc, nil, gateway.WithAuditSink(sink))
		require.NoError(t, err)

		raw := frame(t, gateway.ChannelGenerateToken,
			map[string]string{"email": "ada@example.com", "password": "wrong"}, "")
		resp := d.Dispatch(ctx, raw, gateway.ConnMeta{})

		assert.Equal(t, gateway.Fail(gateway.ErrMsgBadCredentials), resp)
		assert.Equal(t, []audit.Kind{audit.KindLoginFailed}, sink.kinds())
	})

	t.Run("unknown auth channel", func(t *testing.T) {
		d, err := gateway.NewDispatcher(&stubAuthService{}, nil)
		require.NoError(t, err)

		raw := frame(t, "auth/whoami", nil, "")
		resp := d.Dispatch(ctx, raw, gateway.ConnMeta{})

		assert.Equal(t, gateway.Fail(gateway.ErrMsgUnknownChannel), resp)
	})
}

func TestDispatcher_ResourceChannels(t *testing.T) {
	ctx := context.Background()
	userID := ulid.Make()

	newHandlers := func(invoked *int, gotUser *ulid.ULID) map[string]gateway.ResourceHandler {
		return map[string]gateway.ResourceHandler{
			"echo/say": func(_ context.Context, uid ulid.ULID, payload json.RawMessage) gateway.Response {
				*invoked++
				*gotUser = uid
				return gateway.OK(map[string]any{"echo": string(payload)})
			},
		}
	}

	t.Run("valid token invokes handler with user id", func(t *testing.T) {
		var invoked int
		var gotUser ulid.ULID
		svc := &stubAuthService{verifyUserID: userID, verifyOK: true}
		d, err := gateway.NewDispatcher(svc, newHandlers(&invoked, &gotUser))
		require.NoError(t, err)

		raw := frame(t, "echo/say", map[string]string{"text": "hi"}, "deadbeef")
		resp := d.Dispatch(ctx, raw, gateway.ConnMeta{})

		assert.Equal(t, true, resp["success"])
		assert.Equal(t, 1, invoked)
		assert.Equal(t, userID, gotUser)
		assert.Equal(t, []string{"deadbeef"}, svc.verifiedWith)
	})

	t.Run("invalid token never reaches handler", func(t *testing.T) {
		var invoked int
		var gotUser ulid.ULID
		sink := &recordingSink{}
		svc := &stubAuthService{verifyOK: false}
		d, err := gateway.NewDispatcher(svc, newHandlers(&invoked, &gotUser), gateway.WithAuditSink(sink))
		require.NoError(t, err)

		raw := frame(t, "echo/say", map[string]string{"text": "hi"}, "expired")
		resp := d.Dispatch(ctx, raw, gateway.ConnMeta{})

		assert.Equal(t, gateway.Fail(gateway.ErrMsgUnauthorized), resp)
		assert.Zero(t, invoked)
		assert.Equal(t, []audit.Kind{audit.KindUnauthorized}, sink.kinds())
	})

	t.Run("missing token treated like invalid", func(t *testing.T) {
		var invoked int
		var gotUser ulid.ULID
		svc := &stubAuthService{verifyOK: false}
		d, err := gateway.NewDispatcher(svc, newHandlers(&invoked, &gotUser))
		require.NoError(t, err)

		raw := frame(t, "echo/say", map[string]string{"text": "hi"}, "")
		resp := d.Dispatch(ctx, raw, gateway.ConnMeta{})

		assert.Equal(t, gateway.Fail(gateway.ErrMsgUnauthorized), resp)
		assert.Zero(t, invoked)
	})

	t.Run("store failure denies with internal error", func(t *testing.T) {
		var invoked int
		var gotUser ulid.ULID
		svc := &stubAuthService{verifyErr: errors.New("connection refused")}
		d, err := gateway.NewDispatcher(svc, newHandlers(&invoked, &gotUser))
		require.NoError(t, err)

		raw := frame(t, "echo/say", map[string]string{"text": "hi"}, "deadbeef")
		resp := d.Dispatch(ctx, raw, gateway.ConnMeta{})

		assert.Equal(t, gateway.Fail(gateway.ErrMsgInternal), resp)
		assert.Zero(t, invoked)
	})

	t.Run("unknown channel checked after token", func(t *testing.T) {
		svc := &stubAuthService{verifyUserID: userID, verifyOK: true}
		d, err := gateway.NewDispatcher(svc, nil)
		require.NoError(t, err)

		raw := frame(t, "nosuch/thing", nil, "deadbeef")
		resp := d.Dispatch(ctx, raw, gateway.ConnMeta{})

		assert.Equal(t, gateway.Fail(gateway.ErrMsgUnknownChannel), resp)
	})
}

func TestDispatcher_PanicRecovery(t *testing.T) {
	ctx := context.Background()

	handlers := map[string]gateway.ResourceHandler{
		"boom/now": func(context.Context, ulid.ULID, json.RawMessage) gateway.Response {
			panic("handler bug")
		},
	}
	svc := &stubAuthService{verifyUserID: ulid.Make(), verifyOK: true}
	d, err := gateway.NewDispatcher(svc, handlers)
	require.NoError(t, err)

	var resp gateway.Response
	assert.NotPanics(t, func() {
		resp = d.Dispatch(ctx, frame(t, "boom/now", nil, "deadbeef"), gateway.ConnMeta{})
	})
	assert.Equal(t, gateway.Fail(gateway.ErrMsgInternal), resp)

	// Dispatcher must stay usable after a panic.
	resp = d.Dispatch(ctx, frame(t, "nosuch/thing", nil, "deadbeef"), gateway.ConnMeta{})
	assert.Equal(t, gateway.Fail(gateway.ErrMsgUnknownChannel), resp)
}

func TestDispatcher_Observers(t *testing.T) {
	ctx := context.Background()

	type obs struct {
		channel, status string
	}
	var requests []obs
	var reasons []string

	svc := &stubAuthService{issueErr: oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("nope")}
	d, err := gateway.NewDispatcher(svc, nil,
		gateway.WithRequestObserver(func(channel, status string) {
			requests = append(requests, obs{channel, status})
		}),
		gateway.WithAuthFailureObserver(func(reason string) {
			reasons = append(reasons, reason)
		}),
	)
	require.NoError(t, err)

	d.Dispatch(ctx, frame(t, gateway.ChannelGenerateToken,
		map[string]string{"email": "a@b.co", "password": "x"}, ""), gateway.ConnMeta{})
	d.Dispatch(ctx, []byte(`{not json`), gateway.ConnMeta{})

	require.Len(t, requests, 2)
	assert.Equal(t, obs{gateway.ChannelGenerateToken, "error"}, requests[0])
	assert.Equal(t, obs{"unknown", "error"}, requests[1])
	assert.Equal(t, []string{gateway.ReasonBadCredentials}, reasons)
}
