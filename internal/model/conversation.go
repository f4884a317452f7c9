// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// =============================================================================
// CONVERSATION STATE
// =============================================================================

// State is the lifecycle state of a conversation.
//
// Draft -> Confirming -> Confirmed, with Confirming falling back to Draft
// when the backend create call fails. Confirmed is terminal.
type State string

const (
	// StateDraft means the conversation exists only on the client.
	StateDraft State = "draft"

	// StateConfirming means a backend create request is in flight.
	StateConfirming State = "confirming"

	// StateConfirmed means the server has issued a remote identifier.
	StateConfirmed State = "confirmed"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is a chat conversation, possibly not yet known to the server.
//
// LocalID is permanent and never reused. RemoteID is assigned exactly once,
// on confirmation, and never reassigned.
type Conversation struct {
	RemoteID  string    `json:"remote_id,omitempty"`
	LocalID   string    `json:"local_id"`
	ModelID   string    `json:"model_id"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// NewDraft creates a draft conversation for the given model, keyed by a
// caller-supplied local identifier (see ident.NextLocalID).
func NewDraft(localID, modelID string) *Conversation {
	return &Conversation{
		LocalID:   localID,
		ModelID:   modelID,
		State:     StateDraft,
		CreatedAt: time.Now(),
	}
}

// IsDraft reports whether the conversation has no server identity yet.
// A confirming conversation still counts as draft for reference purposes.
func (c *Conversation) IsDraft() bool {
	return c.State != StateConfirmed
}

// IsConfirmed reports whether the server has assigned a remote identifier.
func (c *Conversation) IsConfirmed() bool {
	return c.State == StateConfirmed
}

// Ref returns the reference callers should use when talking to the model
// backend: the remote ID once confirmed, the local ID otherwise.
func (c *Conversation) Ref() Ref {
	if c.IsConfirmed() {
		return RemoteRef(c.RemoteID)
	}
	return LocalRef(c.LocalID)
}

// Clone returns a copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	return &cp
}

// =============================================================================
// CONVERSATION REFERENCE
// =============================================================================

// Ref identifies a conversation by either its local or remote identifier.
// Selectors accept both so the UI can keep rendering through the
// draft-to-confirmed transition without re-resolving anything.
type Ref struct {
	Remote string
	Local  string
}

// LocalRef builds a reference from a client-issued local identifier.
func LocalRef(id string) Ref {
	return Ref{Local: id}
}

// RemoteRef builds a reference from a server-issued identifier.
func RemoteRef(id string) Ref {
	return Ref{Remote: id}
}

// IsRemote reports whether the reference carries a server identifier.
func (r Ref) IsRemote() bool {
	return r.Remote != ""
}

// String returns the identifier the reference resolves to.
func (r Ref) String() string {
	if r.Remote != "" {
		return r.Remote
	}
	return r.Local
}

// =============================================================================
// USER TYPE
// =============================================================================

// User is the authenticated user as reported by the auth collaborator.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
}
