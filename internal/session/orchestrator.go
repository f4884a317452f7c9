// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/parley/internal/assemble"
	"github.com/jeranaias/parley/internal/backend"
	"github.com/jeranaias/parley/internal/estimate"
	"github.com/jeranaias/parley/internal/ident"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/score"
	"github.com/jeranaias/parley/internal/store"
)

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator is the coordinating state machine for a chat session.
//
// It is the only writer of the store: every mutation flows through a send,
// a confirmation, or a rating update. Backend failures are caught here and
// surfaced as non-fatal, typed errors; nothing is retried automatically.
type Orchestrator struct {
	store         *store.Store
	conversations backend.ConversationBackend
	models        backend.ModelBackend
	auth          backend.AuthContext
	sink          backend.LoggingSink
	registry      *score.Registry

	// mu guards the selection state below.
	mu            sync.Mutex
	mode          score.Mode
	selectedModel string
	contextBudget int

	// confirmMu guards the in-flight confirmation map. Concurrent sends
	// for the same draft conversation coalesce on these channels instead
	// of issuing duplicate create calls.
	confirmMu sync.Mutex
	confirms  map[string]chan struct{}
}

// Config holds the collaborators and policy for an orchestrator.
type Config struct {
	// Store is the conversation/message store. Required.
	Store *store.Store

	// Conversations creates conversations on the server. Required.
	Conversations backend.ConversationBackend

	// Models forwards prompts to model endpoints. Required.
	Models backend.ModelBackend

	// Auth reports the signed-in user. Optional; anonymous when nil.
	Auth backend.AuthContext

	// Sink receives request log entries. Optional.
	Sink backend.LoggingSink

	// Registry holds per-model running scores. A fresh one is created
	// when nil.
	Registry *score.Registry

	// Mode is the auto-selection policy (default: manual).
	Mode score.Mode

	// DefaultModel is the initially selected model endpoint.
	DefaultModel string

	// ContextBudget caps assembled context transfers, in tokens
	// (default: estimate.DefaultMaxContextTokens).
	ContextBudget int
}

// New creates an orchestrator from the given configuration.
func New(cfg Config) *Orchestrator {
	registry := cfg.Registry
	if registry == nil {
		registry = score.NewRegistry()
	}
	mode := cfg.Mode
	if mode == "" {
		mode = score.ModeManual
	}
	budget := cfg.ContextBudget
	if budget <= 0 {
		budget = estimate.DefaultMaxContextTokens
	}
	var auth backend.AuthContext = cfg.Auth
	if auth == nil {
		auth = backend.AnonymousAuth{}
	}

	return &Orchestrator{
		store:         cfg.Store,
		conversations: cfg.Conversations,
		models:        cfg.Models,
		auth:          auth,
		sink:          cfg.Sink,
		registry:      registry,
		mode:          mode,
		selectedModel: cfg.DefaultModel,
		contextBudget: budget,
		confirms:      make(map[string]chan struct{}),
	}
}

// Store exposes the read-only selectors for the UI layer.
func (o *Orchestrator) Store() *store.Store { return o.store }

// Registry exposes the running scores for display.
func (o *Orchestrator) Registry() *score.Registry { return o.registry }

// =============================================================================
// SELECTION STATE
// =============================================================================

// SelectedModel returns the model targeted by the next prompt.
func (o *Orchestrator) SelectedModel() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selectedModel
}

// SelectModel manually points the next prompt at a model.
func (o *Orchestrator) SelectModel(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.selectedModel = name
}

// SelectionMode returns the auto-selection policy.
func (o *Orchestrator) SelectionMode() score.Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// SetSelectionMode changes the auto-selection policy.
func (o *Orchestrator) SetSelectionMode(mode score.Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mode = mode
}

// =============================================================================
// CONVERSATION LIFECYCLE
// =============================================================================

// NewConversation creates a draft conversation for the given model and
// returns its local identifier.
func (o *Orchestrator) NewConversation(modelID string) string {
	localID := ident.NextLocalID()
	o.store.CreateDraft(localID, modelID)
	return localID
}

// confirm resolves a draft conversation, coalescing concurrent attempts
// for the same local ID onto a single backend create call. The send step
// never starts until this returns, which is the ordering guarantee the
// model call depends on.
func (o *Orchestrator) confirm(ctx context.Context, localID string) error {
	o.confirmMu.Lock()
	if ch, inflight := o.confirms[localID]; inflight {
		o.confirmMu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		conv, err := o.store.Conversation(model.LocalRef(localID))
		if err != nil {
			return err
		}
		if conv.IsConfirmed() {
			return nil
		}
		return ErrConfirmFailed
	}

	ch := make(chan struct{})
	o.confirms[localID] = ch
	o.confirmMu.Unlock()

	_, err := o.store.Confirm(ctx, localID, o.conversations)

	o.confirmMu.Lock()
	delete(o.confirms, localID)
	close(ch)
	o.confirmMu.Unlock()

	return err
}

// =============================================================================
// SEND
// =============================================================================

// SendOptions tune a single prompt send.
type SendOptions struct {
	// Endpoint overrides the selected model endpoint for this send
	// (for example a broadcast endpoint).
	Endpoint string

	// TransferContext sends the assembled entire-conversation transcript
	// instead of the bare prompt, for context-carrying model switches.
	TransferContext bool
}

// SendResult reports what a send produced.
type SendResult struct {
	// UserMessage is the optimistic message appended before any network
	// round-trip.
	UserMessage *model.Message

	// Reply is the recorded model message, nil if the send failed after
	// the optimistic append.
	Reply *model.Message

	// SelectedModel is the model pointer after auto-selection ran.
	SelectedModel string

	// Truncation describes the context-transfer truncation, if one was
	// assembled for this send.
	Truncation *estimate.Suggestion
}

// SendPrompt runs the full send sequence for a conversation:
//
//  1. Append the optimistic user message (visible to readers immediately).
//  2. Confirm the conversation if it is still a draft. This completes,
//     success or failure, before any model call; a failure aborts the
//     send and leaves the draft and its optimistic message in place.
//  3. Forward the prompt (or assembled context) to the model backend and
//     record the returned message.
//  4. Score every returned model response into the running registry.
//  5. Re-run auto-selection unless the policy is manual.
//  6. Emit a request log entry when a user is signed in.
func (o *Orchestrator) SendPrompt(ctx context.Context, localID, prompt string, opts SendOptions) (*SendResult, error) {
	conv, err := o.store.Conversation(model.LocalRef(localID))
	if err != nil {
		return nil, err
	}

	// History is captured before the optimistic append so an assembled
	// context does not duplicate the current prompt.
	var history []*model.Message
	if opts.TransferContext {
		history = o.store.MessagesFor(model.LocalRef(localID))
	}

	// Step 1: optimistic append.
	userMsg := model.NewUserMessage(localID, prompt)
	o.store.Append(userMsg)
	result := &SendResult{UserMessage: userMsg}

	// Step 2: gated confirmation, strictly before the model send.
	if !conv.IsConfirmed() {
		if err := o.confirm(ctx, localID); err != nil {
			cerr := &ConversationCreationError{LocalID: localID, Err: err}
			log.Printf("session: %v", cerr)
			return result, cerr
		}
		conv, err = o.store.Conversation(model.LocalRef(localID))
		if err != nil {
			return result, err
		}
	}

	// Step 3: model send with a resolved conversation reference.
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = o.SelectedModel()
	}
	if endpoint == "" {
		endpoint = conv.ModelID
	}
	if endpoint == "" {
		return result, ErrNoModelSelected
	}

	content := prompt
	if opts.TransferContext {
		o.mu.Lock()
		budget := o.contextBudget
		o.mu.Unlock()
		assembled, suggestion := assemble.BuildBudgetedContext(history, prompt, budget)
		content = assembled
		result.Truncation = &suggestion
	}

	start := time.Now()
	reply, err := o.models.Send(ctx, endpoint, conv.Ref(), content)
	if err != nil {
		serr := &ModelSendError{Endpoint: endpoint, Err: err}
		log.Printf("session: %v", serr)
		return result, serr
	}

	reply.ConversationLocalID = localID
	for _, resp := range reply.Responses {
		if resp.ResponseTimeMs == 0 {
			resp.ResponseTimeMs = time.Since(start).Milliseconds()
		}
	}
	o.store.Append(reply)
	result.Reply = reply

	// Step 4: fold every response into the running scores.
	for _, resp := range reply.Responses {
		o.registry.Observe(resp)
	}

	// Step 5: auto-selection over running scores, not just this round.
	o.mu.Lock()
	if o.mode != score.ModeManual {
		if best, ok := o.registry.Best(o.mode); ok {
			o.selectedModel = best
		}
	}
	result.SelectedModel = o.selectedModel
	o.mu.Unlock()

	// Step 6: request log for signed-in users, fire-and-forget.
	if user := o.auth.CurrentUser(); user != nil && o.sink != nil {
		o.record(user, endpoint, prompt, reply)
	}

	return result, nil
}

// record emits one request log entry. Sink failures are logged locally
// and never surfaced to the send path.
func (o *Orchestrator) record(user *model.User, endpoint, prompt string, reply *model.Message) {
	response := reply.Content
	quality := 0.0
	modelName := endpoint
	if len(reply.Responses) > 0 {
		first := reply.Responses[0]
		response = first.Content
		quality = score.Quality(first)
		modelName = first.ModelName
	}

	entry := backend.LogEntry{
		UserID:     user.ID,
		ModelName:  modelName,
		Prompt:     prompt,
		Response:   response,
		TokenCount: estimate.Tokens(prompt) + estimate.Tokens(response),
		Quality:    quality,
		CreatedAt:  time.Now(),
	}
	if err := o.sink.Record(entry); err != nil {
		log.Printf("session: request log record failed: %v", err)
	}
}

// =============================================================================
// RATINGS
// =============================================================================

// RateResponse applies a user rating to a model response. The local store
// is updated only after the backend (when it supports ratings) accepts
// the change; failures are propagated, never swallowed.
func (o *Orchestrator) RateResponse(ctx context.Context, responseID string, rating model.Rating) error {
	if !rating.Valid() {
		return &RatingUpdateError{ResponseID: responseID, Err: model.ErrInvalidRating}
	}

	if rb, ok := o.models.(backend.RatingBackend); ok {
		if err := rb.RateResponse(ctx, responseID, rating); err != nil {
			return &RatingUpdateError{ResponseID: responseID, Err: err}
		}
	}

	if err := o.store.SetRating(responseID, rating); err != nil {
		return &RatingUpdateError{ResponseID: responseID, Err: err}
	}
	return nil
}

// =============================================================================
// ESTIMATION HELPERS
// =============================================================================

// EstimateConversation returns the token footprint of a conversation's
// history, including the fixed system overhead.
func (o *Orchestrator) EstimateConversation(ref model.Ref) estimate.Estimation {
	return estimate.Context(o.store.MessagesFor(ref), true)
}

// SuggestTruncation previews the truncation the next context transfer
// would apply for this conversation.
func (o *Orchestrator) SuggestTruncation(ref model.Ref) estimate.Suggestion {
	o.mu.Lock()
	budget := o.contextBudget
	o.mu.Unlock()
	return estimate.SuggestTruncation(o.store.MessagesFor(ref), budget)
}
