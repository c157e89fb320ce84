// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

package users

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wiregate/wiregate/internal/gateway"
)

// User CRUD channels.
const (
	ChannelCreate = "user/create"
	ChannelRead   = "user/read"
	ChannelUpdate = "user/update"
	ChannelDelete = "user/delete"
)

// User-facing error messages for this resource.
const (
	errMsgNotFound   = "user not found"
	errMsgEmailTaken = "email already registered"
)

// Handlers returns the resource-handler registry for the user channels.
// Payload shapes are validated here, at the dispatch boundary, before any
// service call.
func Handlers(svc *Service) map[string]gateway.ResourceHandler {
	return map[string]gateway.ResourceHandler{
		ChannelCreate: createHandler(svc),
		ChannelRead:   readHandler(svc),
		ChannelUpdate: updateHandler(svc),
		ChannelDelete: deleteHandler(svc),
	}
}

type createPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type readPayload struct {
	ID string `json:"id"`
}

type updatePayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type deletePayload struct {
	ID string `json:"id"`
}

func createHandler(svc *Service) gateway.ResourceHandler {
	return func(ctx context.Context, _ ulid.ULID, payload json.RawMessage) gateway.Response {
		var p createPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.Name == "" || p.Email == "" || p.Password == "" {
			return gateway.Fail(gateway.ErrMsgMalformed)
		}

		profile, err := svc.Create(ctx, p.Name, p.Email, p.Password)
		if err != nil {
			return failureResponse(err)
		}
		return gateway.OK(map[string]any{"userId": profile.ID.String()})
	}
}

func readHandler(svc *Service) gateway.ResourceHandler {
	return func(ctx context.Context, _ ulid.ULID, payload json.RawMessage) gateway.Response {
		var p readPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.ID == "" {
			return gateway.Fail(gateway.ErrMsgMalformed)
		}
		id, err := ulid.Parse(p.ID)
		if err != nil {
			return gateway.Fail(gateway.ErrMsgMalformed)
		}

		profile, err := svc.Get(ctx, id)
		if err != nil {
			return failureResponse(err)
		}
		return gateway.OK(map[string]any{
			"id":        profile.ID.String(),
			"name":      profile.Name,
			"email":     profile.Email,
			"createdAt": profile.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
}

func updateHandler(svc *Service) gateway.ResourceHandler {
	return func(ctx context.Context, _ ulid.ULID, payload json.RawMessage) gateway.Response {
		var p updatePayload
		if err := json.Unmarshal(payload, &p); err != nil || p.ID == "" || p.Name == "" || p.Email == "" {
			return gateway.Fail(gateway.ErrMsgMalformed)
		}
		id, err := ulid.Parse(p.ID)
		if err != nil {
			return gateway.Fail(gateway.ErrMsgMalformed)
		}

		if err := svc.Update(ctx, id, p.Name, p.Email); err != nil {
			return failureResponse(err)
		}
		return gateway.OK(nil)
	}
}

func deleteHandler(svc *Service) gateway.ResourceHandler {
	return func(ctx context.Context, _ ulid.ULID, payload json.RawMessage) gateway.Response {
		var p deletePayload
		if err := json.Unmarshal(payload, &p); err != nil || p.ID == "" {
			return gateway.Fail(gateway.ErrMsgMalformed)
		}
		id, err := ulid.Parse(p.ID)
		if err != nil {
			return gateway.Fail(gateway.ErrMsgMalformed)
		}

		if err := svc.Delete(ctx, id); err != nil {
			return failureResponse(err)
		}
		return gateway.OK(nil)
	}
}

// failureResponse maps a service error to its wire message.
func failureResponse(err error) gateway.Response {
	if oopsErr, ok := oops.AsOops(err); ok {
		switch oopsErr.Code() {
		case "USERS_NOT_FOUND":
			return gateway.Fail(errMsgNotFound)
		case "USERS_EMAIL_TAKEN":
			return gateway.Fail(errMsgEmailTaken)
		case "AUTH_INVALID_NAME", "AUTH_INVALID_EMAIL", "AUTH_EMPTY_PASSWORD":
			return gateway.Fail(gateway.ErrMsgMalformed)
		}
	}
	return gateway.Fail(gateway.ErrMsgInternal)
}
