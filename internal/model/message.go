// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleModel     Role = "model"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
// These labels are part of the context-transfer serialization format and
// must stay stable (see assemble.BuildContext).
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleModel:
		return "Model"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// RATING TYPE
// =============================================================================

// Rating is a user's verdict on a single model response.
// It is the only mutable field of a ModelResponse.
type Rating string

const (
	RatingNone    Rating = ""
	RatingLike    Rating = "like"
	RatingDislike Rating = "dislike"
)

// ErrInvalidRating is returned when a rating value is not one of the
// known values.
var ErrInvalidRating = errors.New("invalid rating")

// Valid reports whether the rating is one of the known values.
func (r Rating) Valid() bool {
	return r == RatingNone || r == RatingLike || r == RatingDislike
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// ConversationLocalID is set at creation time and never changes.
// ConversationRemoteID starts empty for messages created while the owning
// conversation is still a draft; the store rewrites it once the conversation
// is confirmed.
type Message struct {
	// Identity
	RemoteID  string    `json:"remote_id,omitempty"`
	Author    Role      `json:"author"`
	CreatedAt time.Time `json:"created_at"`

	// Conversation reference
	ConversationRemoteID string `json:"conversation_remote_id,omitempty"`
	ConversationLocalID  string `json:"conversation_local_id"`

	// Content
	Content string `json:"content"`

	// Model responses attached to this message (broadcast sends carry
	// one entry per model).
	Responses []*ModelResponse `json:"responses,omitempty"`
}

// NewUserMessage creates a user message tagged with the conversation's
// local identifier. The remote reference is filled in later if the
// conversation is still a draft.
func NewUserMessage(conversationLocalID, content string) *Message {
	return &Message{
		Author:              RoleUser,
		Content:             content,
		ConversationLocalID: conversationLocalID,
		CreatedAt:           time.Now(),
	}
}

// NewModelMessage creates a model message carrying the given responses.
func NewModelMessage(conversationLocalID string, responses []*ModelResponse) *Message {
	return &Message{
		Author:              RoleModel,
		ConversationLocalID: conversationLocalID,
		Responses:           responses,
		CreatedAt:           time.Now(),
	}
}

// IsConfirmed reports whether the message carries a resolved remote
// conversation reference.
func (m *Message) IsConfirmed() bool {
	return m.ConversationRemoteID != ""
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// ResponseByID returns the attached response with the given remote ID.
func (m *Message) ResponseByID(id string) *ModelResponse {
	for _, r := range m.Responses {
		if r.RemoteID == id {
			return r
		}
	}
	return nil
}

// =============================================================================
// MODEL RESPONSE TYPE
// =============================================================================

// ModelResponse is a single model's answer attached to a message.
// Immutable once created, except for the user rating.
type ModelResponse struct {
	RemoteID       string    `json:"remote_id"`
	MessageID      string    `json:"message_id"`
	ModelName      string    `json:"model_name"`
	Content        string    `json:"content"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Rating         Rating    `json:"rating,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Preview returns a truncated preview of the response content.
func (r *ModelResponse) Preview(maxLen int) string {
	runes := []rune(r.Content)
	if len(runes) <= maxLen {
		return r.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
