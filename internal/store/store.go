// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jeranaias/parley/internal/backend"
	"github.com/jeranaias/parley/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// StoreError represents a store-related error.
// Use errors.Is to compare against the sentinel values below.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

var (
	// ErrConversationNotFound is returned for unknown local identifiers.
	ErrConversationNotFound = &StoreError{Message: "conversation not found"}

	// ErrConfirmInFlight is returned when a second confirmation is
	// attempted while one is already running for the same conversation.
	ErrConfirmInFlight = &StoreError{Message: "confirmation already in flight"}

	// ErrResponseNotFound is returned for unknown model response IDs.
	ErrResponseNotFound = &StoreError{Message: "model response not found"}
)

// =============================================================================
// STORE
// =============================================================================

// Store owns the conversation and message collections. Only the session
// orchestrator and its reconciliation calls mutate it; the UI reads it
// through the selectors.
type Store struct {
	mu sync.RWMutex

	// conversations keyed by local ID; the local ID is permanent, so it
	// stays the primary key even after confirmation.
	conversations map[string]*model.Conversation

	// byRemote maps server-issued IDs back to local IDs.
	byRemote map[string]string

	// messages in insertion order, plus a remote-ID index for merge
	// deduplication.
	messages    []*model.Message
	msgByRemote map[string]*model.Message
}

// New creates an empty store.
func New() *Store {
	return &Store{
		conversations: make(map[string]*model.Conversation),
		byRemote:      make(map[string]string),
		msgByRemote:   make(map[string]*model.Message),
	}
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// CreateDraft registers a new draft conversation under the given local ID.
func (s *Store) CreateDraft(localID, modelID string) *model.Conversation {
	conv := model.NewDraft(localID, modelID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[localID] = conv
	return conv.Clone()
}

// Conversation returns a copy of the conversation for a local or remote
// reference.
func (s *Store) Conversation(ref model.Ref) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv := s.resolveLocked(ref)
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	return conv.Clone(), nil
}

// List returns copies of all conversations, oldest first.
func (s *Store) List() []*model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, conv.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// PendingConfirmation reports whether a create request is in flight for
// the given draft conversation.
func (s *Store) PendingConfirmation(localID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[localID]
	return ok && conv.State == model.StateConfirming
}

// resolveLocked finds a conversation by reference. Caller holds the lock.
func (s *Store) resolveLocked(ref model.Ref) *model.Conversation {
	if ref.Local != "" {
		if conv, ok := s.conversations[ref.Local]; ok {
			return conv
		}
	}
	if ref.Remote != "" {
		if localID, ok := s.byRemote[ref.Remote]; ok {
			return s.conversations[localID]
		}
	}
	return nil
}

// =============================================================================
// CONFIRMATION
// =============================================================================

// Confirm resolves a draft conversation against the backend.
//
// On success the conversation is stored as confirmed and every message
// tagged with its local ID is rewritten to carry the new remote ID, all
// under one lock acquisition. On failure the conversation returns to
// Draft and stays eligible for a retried confirmation under the same
// local ID.
//
// Confirm on an already-confirmed conversation is a no-op returning the
// confirmed conversation. A concurrent confirmation for the same local ID
// fails with ErrConfirmInFlight; the orchestrator coalesces duplicates
// before they reach the store.
func (s *Store) Confirm(ctx context.Context, localID string, be backend.ConversationBackend) (*model.Conversation, error) {
	s.mu.Lock()
	conv, ok := s.conversations[localID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrConversationNotFound
	}
	switch conv.State {
	case model.StateConfirmed:
		clone := conv.Clone()
		s.mu.Unlock()
		return clone, nil
	case model.StateConfirming:
		s.mu.Unlock()
		return nil, ErrConfirmInFlight
	}
	conv.State = model.StateConfirming
	modelID := conv.ModelID
	s.mu.Unlock()

	// Network call runs outside the lock; reads during this window see a
	// draft conversation with the pending-confirmation flag set.
	created, err := be.CreateConversation(ctx, modelID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		conv.State = model.StateDraft
		return nil, err
	}

	s.applyConfirmLocked(conv, created)
	return conv.Clone(), nil
}

// applyConfirmLocked is the transactional half of Confirm: it assigns the
// remote ID and rewrites every matching message in one step. Caller holds
// the lock.
func (s *Store) applyConfirmLocked(conv *model.Conversation, created backend.Created) {
	conv.RemoteID = created.RemoteID
	conv.State = model.StateConfirmed
	if !created.CreatedAt.IsZero() {
		conv.CreatedAt = created.CreatedAt
	}
	s.byRemote[created.RemoteID] = conv.LocalID
	s.rewriteLocked(conv.LocalID, created.RemoteID)
}

// RewriteConversationID sets the remote reference on every message tagged
// with the given local ID. Idempotent: a second run with the same
// arguments changes nothing. Messages appended after a rewrite are
// corrected by Append itself, which consults the confirmed conversation.
func (s *Store) RewriteConversationID(localID, remoteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewriteLocked(localID, remoteID)
}

// rewriteLocked is the shared rewrite pass. Caller holds the lock.
func (s *Store) rewriteLocked(localID, remoteID string) {
	for _, msg := range s.messages {
		if msg.ConversationLocalID == localID && msg.ConversationRemoteID != remoteID {
			msg.ConversationRemoteID = remoteID
		}
	}
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// Append adds a message to the store. If the owning conversation is
// already confirmed, the remote reference is filled in immediately, so a
// message created between a read and a rewrite can never stay unresolved.
func (s *Store) Append(msg *model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ConversationRemoteID == "" {
		if conv, ok := s.conversations[msg.ConversationLocalID]; ok && conv.IsConfirmed() {
			msg.ConversationRemoteID = conv.RemoteID
		}
	}

	s.messages = append(s.messages, msg)
	if msg.RemoteID != "" {
		s.msgByRemote[msg.RemoteID] = msg
	}
}

// MergeIncoming adds server-side messages not already present by remote
// ID, then restores chronological order by creation time.
func (s *Store) MergeIncoming(ref model.Ref, incoming []*model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.resolveLocked(ref)

	added := false
	for _, msg := range incoming {
		if msg.RemoteID != "" {
			if _, exists := s.msgByRemote[msg.RemoteID]; exists {
				continue
			}
		}
		if conv != nil {
			if msg.ConversationLocalID == "" {
				msg.ConversationLocalID = conv.LocalID
			}
			if msg.ConversationRemoteID == "" && conv.IsConfirmed() {
				msg.ConversationRemoteID = conv.RemoteID
			}
		}
		s.messages = append(s.messages, msg)
		if msg.RemoteID != "" {
			s.msgByRemote[msg.RemoteID] = msg
		}
		added = true
	}

	if added {
		sort.SliceStable(s.messages, func(i, j int) bool {
			return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
		})
	}
}

// MessagesFor returns copies of the messages belonging to the referenced
// conversation, in chronological order.
func (s *Store) MessagesFor(ref model.Ref) []*model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	localID := ref.Local
	if conv := s.resolveLocked(ref); conv != nil {
		localID = conv.LocalID
	}
	if localID == "" {
		return nil
	}

	var out []*model.Message
	for _, msg := range s.messages {
		if msg.ConversationLocalID == localID {
			out = append(out, copyMessage(msg))
		}
	}
	return out
}

// ResponseByID finds a model response anywhere in the store.
func (s *Store) ResponseByID(responseID string) (*model.ModelResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp := s.findResponseLocked(responseID)
	if resp == nil {
		return nil, false
	}
	cp := *resp
	return &cp, true
}

// SetRating updates the rating on a model response, the only mutation a
// response supports after creation.
func (s *Store) SetRating(responseID string, rating model.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := s.findResponseLocked(responseID)
	if resp == nil {
		return ErrResponseNotFound
	}
	resp.Rating = rating
	return nil
}

// findResponseLocked scans messages for a response. Caller holds the lock.
func (s *Store) findResponseLocked(responseID string) *model.ModelResponse {
	for _, msg := range s.messages {
		for _, resp := range msg.Responses {
			if resp.RemoteID == responseID {
				return resp
			}
		}
	}
	return nil
}

// copyMessage returns a deep-enough copy for read-only consumers.
func copyMessage(msg *model.Message) *model.Message {
	cp := *msg
	if len(msg.Responses) > 0 {
		cp.Responses = make([]*model.ModelResponse, len(msg.Responses))
		for i, resp := range msg.Responses {
			rc := *resp
			cp.Responses[i] = &rc
		}
	}
	return &cp
}

// =============================================================================
// METADATA
// =============================================================================

// Meta is lightweight conversation metadata for listing.
type Meta struct {
	LocalID      string    `json:"local_id"`
	RemoteID     string    `json:"remote_id,omitempty"`
	ModelID      string    `json:"model_id"`
	State        string    `json:"state"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	Preview      string    `json:"preview"`
}

// Metas returns listing metadata for every conversation, oldest first.
func (s *Store) Metas() []Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	previews := make(map[string]string)
	for _, msg := range s.messages {
		counts[msg.ConversationLocalID]++
		if _, ok := previews[msg.ConversationLocalID]; !ok && msg.Author == model.RoleUser {
			previews[msg.ConversationLocalID] = msg.Preview(80)
		}
	}

	out := make([]Meta, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, Meta{
			LocalID:      conv.LocalID,
			RemoteID:     conv.RemoteID,
			ModelID:      conv.ModelID,
			State:        conv.State.String(),
			MessageCount: counts[conv.LocalID],
			CreatedAt:    conv.CreatedAt,
			Preview:      previews[conv.LocalID],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
