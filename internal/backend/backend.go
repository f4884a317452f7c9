// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"time"

	"github.com/jeranaias/parley/internal/model"
)

// =============================================================================
// COLLABORATOR CONTRACTS
// =============================================================================

// Created is the server's answer to a conversation create call.
type Created struct {
	RemoteID  string    `json:"remote_id"`
	ModelID   string    `json:"model_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationBackend creates conversations on the server.
// Create may fail with a network or validation error; the caller decides
// what happens to in-flight sends.
type ConversationBackend interface {
	CreateConversation(ctx context.Context, modelID string) (Created, error)
}

// ModelBackend forwards prompts to a model endpoint and returns the
// recorded message. Broadcast endpoints return a message carrying one
// ModelResponse per model.
type ModelBackend interface {
	Send(ctx context.Context, endpoint string, ref model.Ref, content string) (*model.Message, error)
}

// RatingBackend persists user ratings for model responses. Optional:
// model backends that also implement it get rating updates forwarded.
type RatingBackend interface {
	RateResponse(ctx context.Context, responseID string, rating model.Rating) error
}

// AuthContext reports the currently authenticated user, or nil when the
// session is anonymous.
type AuthContext interface {
	CurrentUser() *model.User
}

// LogEntry is one request-log record.
type LogEntry struct {
	UserID     string    `json:"user_id"`
	ModelName  string    `json:"model_name"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	TokenCount int       `json:"token_count"`
	Quality    float64   `json:"quality"`
	CreatedAt  time.Time `json:"created_at"`
}

// LoggingSink records request log entries. Callers treat Record as
// fire-and-forget: failures are logged locally and never surfaced.
type LoggingSink interface {
	Record(entry LogEntry) error
}

// =============================================================================
// NO-OP COLLABORATORS
// =============================================================================

// AnonymousAuth is an AuthContext with no signed-in user.
type AnonymousAuth struct{}

// CurrentUser always returns nil.
func (AnonymousAuth) CurrentUser() *model.User { return nil }

// StaticAuth is an AuthContext that always reports the same user.
type StaticAuth struct {
	User model.User
}

// CurrentUser returns the configured user.
func (a StaticAuth) CurrentUser() *model.User {
	u := a.User
	return &u
}

// DiscardLog is a LoggingSink that drops every entry.
type DiscardLog struct{}

// Record does nothing.
func (DiscardLog) Record(LogEntry) error { return nil }
