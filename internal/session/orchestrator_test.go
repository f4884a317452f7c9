// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/parley/internal/backend"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/score"
	"github.com/jeranaias/parley/internal/store"
)

// =============================================================================
// FAKE BACKENDS
// =============================================================================

// fakeBackend scripts both conversation creation and model sends.
type fakeBackend struct {
	mu sync.Mutex

	createErr   error
	createCalls int
	nextRemote  int

	sendErr   error
	sendCalls int
	nextResp  int

	// lastContent records what the model endpoint actually received.
	lastContent  string
	lastEndpoint string
	lastRef      model.Ref

	// responsesFor maps endpoint -> responses to return; when empty, a
	// single default response is fabricated.
	responsesFor map[string][]*model.ModelResponse

	rateErr   error
	ratings   map[string]model.Rating
	rateCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		responsesFor: make(map[string][]*model.ModelResponse),
		ratings:      make(map[string]model.Rating),
	}
}

func (f *fakeBackend) CreateConversation(ctx context.Context, modelID string) (backend.Created, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return backend.Created{}, f.createErr
	}
	f.nextRemote++
	return backend.Created{
		RemoteID:  fmt.Sprintf("conv-%d", f.nextRemote),
		ModelID:   modelID,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeBackend) Send(ctx context.Context, endpoint string, ref model.Ref, content string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	f.lastContent = content
	f.lastEndpoint = endpoint
	f.lastRef = ref
	if f.sendErr != nil {
		return nil, f.sendErr
	}

	responses := f.responsesFor[endpoint]
	if len(responses) == 0 {
		f.nextResp++
		responses = []*model.ModelResponse{{
			RemoteID:       fmt.Sprintf("resp-%d", f.nextResp),
			ModelName:      endpoint,
			Content:        "echo: " + content,
			ResponseTimeMs: 120,
			CreatedAt:      time.Now(),
		}}
	}

	f.nextResp++
	return &model.Message{
		RemoteID:             fmt.Sprintf("msg-%d", f.nextResp),
		Author:               model.RoleModel,
		ConversationRemoteID: ref.Remote,
		Responses:            responses,
		CreatedAt:            time.Now(),
	}, nil
}

func (f *fakeBackend) RateResponse(ctx context.Context, responseID string, rating model.Rating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateCalls++
	if f.rateErr != nil {
		return f.rateErr
	}
	f.ratings[responseID] = rating
	return nil
}

// recordingSink collects request log entries.
type recordingSink struct {
	mu      sync.Mutex
	entries []backend.LogEntry
}

func (r *recordingSink) Record(entry backend.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// newOrchestrator builds an orchestrator over fresh fakes.
func newOrchestrator(be *fakeBackend, opts ...func(*Config)) *Orchestrator {
	cfg := Config{
		Store:         store.New(),
		Conversations: be,
		Models:        be,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

// =============================================================================
// SEND SEQUENCE TESTS
// =============================================================================

func TestSendPrompt_FirstSendConfirmsThenSends(t *testing.T) {
	be := newFakeBackend()
	o := newOrchestrator(be)

	localID := o.NewConversation("gpt-large")
	conv, err := o.Store().Conversation(model.LocalRef(localID))
	if err != nil {
		t.Fatalf("Conversation failed: %v", err)
	}
	if !conv.IsDraft() {
		t.Fatal("new conversation should be a draft")
	}

	result, err := o.SendPrompt(context.Background(), localID, "hello", SendOptions{})
	if err != nil {
		t.Fatalf("SendPrompt failed: %v", err)
	}

	// The conversation is confirmed and the send targeted its remote ID.
	conv, _ = o.Store().Conversation(model.LocalRef(localID))
	if !conv.IsConfirmed() {
		t.Error("conversation should be confirmed after the first send")
	}
	if be.lastRef.Remote != conv.RemoteID {
		t.Errorf("send used ref %q, want the confirmed remote ID %q", be.lastRef.Remote, conv.RemoteID)
	}

	// Both the optimistic user message and the reply are stored, resolved.
	msgs := o.Store().MessagesFor(model.LocalRef(localID))
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	for i, msg := range msgs {
		if msg.ConversationRemoteID != conv.RemoteID {
			t.Errorf("message %d unresolved: %q", i, msg.ConversationRemoteID)
		}
	}
	if result.Reply == nil || len(result.Reply.Responses) != 1 {
		t.Fatal("expected one model response in the reply")
	}
}

func TestSendPrompt_OptimisticMessageVisibleBeforeReply(t *testing.T) {
	be := newFakeBackend()
	o := newOrchestrator(be)
	localID := o.NewConversation("gpt-large")

	result, err := o.SendPrompt(context.Background(), localID, "first question", SendOptions{})
	if err != nil {
		t.Fatalf("SendPrompt failed: %v", err)
	}
	if result.UserMessage == nil {
		t.Fatal("expected the optimistic user message in the result")
	}
	if result.UserMessage.Content != "first question" {
		t.Errorf("UserMessage content = %q", result.UserMessage.Content)
	}

	msgs := o.Store().MessagesFor(model.LocalRef(localID))
	if msgs[0].Author != model.RoleUser {
		t.Error("the user message should precede the reply")
	}
}

func TestSendPrompt_CreateFailureAbortsSend(t *testing.T) {
	be := newFakeBackend()
	be.createErr = errors.New("backend down")
	o := newOrchestrator(be)
	localID := o.NewConversation("gpt-large")

	result, err := o.SendPrompt(context.Background(), localID, "doomed", SendOptions{})

	var cerr *ConversationCreationError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want ConversationCreationError", err)
	}
	if be.sendCalls != 0 {
		t.Error("model send must not run after a failed confirmation")
	}

	// The conversation returns to draft; the optimistic message stays.
	conv, _ := o.Store().Conversation(model.LocalRef(localID))
	if !conv.IsDraft() {
		t.Error("conversation should be back in draft")
	}
	msgs := o.Store().MessagesFor(model.LocalRef(localID))
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want the optimistic message only", len(msgs))
	}
	if msgs[0].IsConfirmed() {
		t.Error("the optimistic message must stay unresolved")
	}
	if result == nil || result.UserMessage == nil {
		t.Error("the aborted result should still report the optimistic message")
	}

	// A later send retries the confirmation and succeeds end to end.
	be.mu.Lock()
	be.createErr = nil
	be.mu.Unlock()
	if _, err := o.SendPrompt(context.Background(), localID, "retry", SendOptions{}); err != nil {
		t.Fatalf("retry SendPrompt failed: %v", err)
	}
	msgs = o.Store().MessagesFor(model.LocalRef(localID))
	for i, msg := range msgs {
		if !msg.IsConfirmed() {
			t.Errorf("message %d unresolved after successful retry", i)
		}
	}
}

func TestSendPrompt_SendFailureKeepsUserMessage(t *testing.T) {
	be := newFakeBackend()
	be.sendErr = errors.New("model unavailable")
	o := newOrchestrator(be)
	localID := o.NewConversation("gpt-large")

	_, err := o.SendPrompt(context.Background(), localID, "question", SendOptions{})

	var serr *ModelSendError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want ModelSendError", err)
	}

	// The conversation stays confirmed, and only the user message exists.
	conv, _ := o.Store().Conversation(model.LocalRef(localID))
	if !conv.IsConfirmed() {
		t.Error("confirmation should survive a failed model send")
	}
	msgs := o.Store().MessagesFor(model.LocalRef(localID))
	if len(msgs) != 1 || msgs[0].Author != model.RoleUser {
		t.Errorf("got %d messages, want only the user message", len(msgs))
	}
}

func TestSendPrompt_NoModelSelected(t *testing.T) {
	be := newFakeBackend()
	o := newOrchestrator(be)
	localID := o.NewConversation("")

	_, err := o.SendPrompt(context.Background(), localID, "question", SendOptions{})
	if !errors.Is(err, ErrNoModelSelected) {
		t.Errorf("err = %v, want ErrNoModelSelected", err)
	}
}

func TestSendPrompt_EndpointResolutionOrder(t *testing.T) {
	be := newFakeBackend()
	o := newOrchestrator(be)
	o.SelectModel("selected-model")
	localID := o.NewConversation("conversation-model")

	// Explicit option wins over the selection and the conversation model.
	if _, err := o.SendPrompt(context.Background(), localID, "q", SendOptions{Endpoint: "explicit"}); err != nil {
		t.Fatalf("SendPrompt failed: %v", err)
	}
	if be.lastEndpoint != "explicit" {
		t.Errorf("endpoint = %q, want explicit", be.lastEndpoint)
	}

	// Without an option the selected model wins.
	if _, err := o.SendPrompt(context.Background(), localID, "q", SendOptions{}); err != nil {
		t.Fatalf("SendPrompt failed: %v", err)
	}
	if be.lastEndpoint != "selected-model" {
		t.Errorf("endpoint = %q, want selected-model", be.lastEndpoint)
	}
}

// =============================================================================
// CONFIRMATION COALESCING TESTS
// =============================================================================

func TestSendPrompt_ConcurrentSendsConfirmOnce(t *testing.T) {
	be := newFakeBackend()
	o := newOrchestrator(be)
	localID := o.NewConversation("gpt-large")

	const sends = 8
	var wg sync.WaitGroup
	errs := make([]error, sends)
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = o.SendPrompt(context.Background(), localID, fmt.Sprintf("prompt %d", i), SendOptions{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("send %d failed: %v", i, err)
		}
	}
	if be.createCalls != 1 {
		t.Errorf("CreateConversation called %d times, want 1", be.createCalls)
	}

	// Every stored message ends up resolved to the same remote ID.
	conv, _ := o.Store().Conversation(model.LocalRef(localID))
	for i, msg := range o.Store().MessagesFor(model.LocalRef(localID)) {
		if msg.ConversationRemoteID != conv.RemoteID {
			t.Errorf("message %d resolved to %q, want %q", i, msg.ConversationRemoteID, conv.RemoteID)
		}
	}
}

// =============================================================================
// CONTEXT TRANSFER TESTS
// =============================================================================

func TestSendPrompt_TransferContextAssemblesHistory(t *testing.T) {
	be := newFakeBackend()
	o := newOrchestrator(be)
	localID := o.NewConversation("alpha")

	if _, err := o.SendPrompt(context.Background(), localID, "first question", SendOptions{}); err != nil {
		t.Fatalf("SendPrompt failed: %v", err)
	}

	// Switch models and transfer the conversation.
	o.SelectModel("beta")
	if _, err := o.SendPrompt(context.Background(), localID, "second question", SendOptions{TransferContext: true}); err != nil {
		t.Fatalf("transfer SendPrompt failed: %v", err)
	}

	if !strings.HasPrefix(be.lastContent, "Previous conversation:\n\n") {
		t.Errorf("transferred content missing transcript header:\n%s", be.lastContent)
	}
	if !strings.Contains(be.lastContent, "User: first question") {
		t.Error("transcript missing the earlier user message")
	}
	if !strings.HasSuffix(be.lastContent, "Current prompt: second question") {
		t.Error("transcript missing the current prompt")
	}
	// The current prompt must not also appear as a history line.
	if strings.Contains(be.lastContent, "User: second question") {
		t.Error("current prompt duplicated into the history")
	}
}

func TestSendPrompt_TransferContextHonorsBudget(t *testing.T) {
	be := newFakeBackend()
	o := newOrchestrator(be, func(c *Config) { c.ContextBudget = 300 })
	localID := o.NewConversation("alpha")

	for i := 0; i < 10; i++ {
		if _, err := o.SendPrompt(context.Background(), localID, strings.Repeat("x", 400), SendOptions{}); err != nil {
			t.Fatalf("SendPrompt %d failed: %v", i, err)
		}
	}

	result, err := o.SendPrompt(context.Background(), localID, "final", SendOptions{TransferContext: true})
	if err != nil {
		t.Fatalf("transfer SendPrompt failed: %v", err)
	}
	if result.Truncation == nil || !result.Truncation.ShouldTruncate {
		t.Fatal("expected a truncation for an over-budget transfer")
	}
	if result.Truncation.KeepRecentMessages < 1 {
		t.Errorf("KeepRecentMessages = %d, want at least 1", result.Truncation.KeepRecentMessages)
	}
}

// =============================================================================
// AUTO-SELECTION TESTS
// =============================================================================

func TestSendPrompt_AutoSelectionSwitchesToBestModel(t *testing.T) {
	be := newFakeBackend()
	// A broadcast endpoint returns one response per model, with a clear
	// quality gap.
	be.responsesFor["broadcast"] = []*model.ModelResponse{
		{RemoteID: "r1", ModelName: "terse", Content: "ok", ResponseTimeMs: 100},
		{RemoteID: "r2", ModelName: "thorough", ResponseTimeMs: 200, Content: "This holds because the index is covering; however the planner " +
			"needs fresh stats.\n\n- analyze\n- re-run\n\nFor example, the p99 dropped. More?"},
	}

	o := newOrchestrator(be, func(c *Config) { c.Mode = score.ModeBestQuality })
	localID := o.NewConversation("broadcast")

	result, err := o.SendPrompt(context.Background(), localID, "compare", SendOptions{Endpoint: "broadcast"})
	if err != nil {
		t.Fatalf("SendPrompt failed: %v", err)
	}
	if result.SelectedModel != "thorough" {
		t.Errorf("SelectedModel = %q, want thorough", result.SelectedModel)
	}
	if o.SelectedModel() != "thorough" {
		t.Errorf("orchestrator selection = %q, want thorough", o.SelectedModel())
	}
}

func TestSendPrompt_ManualModeNeverSwitches(t *testing.T) {
	be := newFakeBackend()
	be.responsesFor["broadcast"] = []*model.ModelResponse{
		{RemoteID: "r1", ModelName: "other", Content: "A high quality answer because detail.\n\n- a\n- b\n\nQuestions?"},
	}

	o := newOrchestrator(be)
	o.SelectModel("chosen")
	localID := o.NewConversation("chosen")

	if _, err := o.SendPrompt(context.Background(), localID, "q", SendOptions{Endpoint: "broadcast"}); err != nil {
		t.Fatalf("SendPrompt failed: %v", err)
	}
	if o.SelectedModel() != "chosen" {
		t.Errorf("selection changed to %q in manual mode", o.SelectedModel())
	}
}

// =============================================================================
// REQUEST LOG TESTS
// =============================================================================

func TestSendPrompt_RecordsForSignedInUser(t *testing.T) {
	be := newFakeBackend()
	sink := &recordingSink{}
	o := newOrchestrator(be, func(c *Config) {
		c.Auth = backend.StaticAuth{User: model.User{ID: "u-1", Name: "Sam"}}
		c.Sink = sink
	})
	localID := o.NewConversation("gpt-large")

	if _, err := o.SendPrompt(context.Background(), localID, "log me", SendOptions{}); err != nil {
		t.Fatalf("SendPrompt failed: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("got %d log entries, want 1", sink.count())
	}

	sink.mu.Lock()
	entry := sink.entries[0]
	sink.mu.Unlock()
	if entry.UserID != "u-1" {
		t.Errorf("UserID = %q, want u-1", entry.UserID)
	}
	if entry.Prompt != "log me" {
		t.Errorf("Prompt = %q", entry.Prompt)
	}
	if entry.TokenCount <= 0 {
		t.Errorf("TokenCount = %d, want positive", entry.TokenCount)
	}
}

func TestSendPrompt_AnonymousSkipsRecording(t *testing.T) {
	be := newFakeBackend()
	sink := &recordingSink{}
	o := newOrchestrator(be, func(c *Config) { c.Sink = sink })
	localID := o.NewConversation("gpt-large")

	if _, err := o.SendPrompt(context.Background(), localID, "no log", SendOptions{}); err != nil {
		t.Fatalf("SendPrompt failed: %v", err)
	}
	if sink.count() != 0 {
		t.Errorf("got %d log entries, want 0 for anonymous sessions", sink.count())
	}
}

// =============================================================================
// RATING TESTS
// =============================================================================

func TestRateResponse_BackendFirstThenStore(t *testing.T) {
	be := newFakeBackend()
	o := newOrchestrator(be)
	localID := o.NewConversation("gpt-large")

	result, err := o.SendPrompt(context.Background(), localID, "q", SendOptions{})
	if err != nil {
		t.Fatalf("SendPrompt failed: %v", err)
	}
	respID := result.Reply.Responses[0].RemoteID

	if err := o.RateResponse(context.Background(), respID, model.RatingLike); err != nil {
		t.Fatalf("RateResponse failed: %v", err)
	}
	if be.ratings[respID] != model.RatingLike {
		t.Error("backend did not receive the rating")
	}
	resp, ok := o.Store().ResponseByID(respID)
	if !ok || resp.Rating != model.RatingLike {
		t.Error("store rating not updated")
	}
}

func TestRateResponse_BackendFailureLeavesStoreUntouched(t *testing.T) {
	be := newFakeBackend()
	o := newOrchestrator(be)
	localID := o.NewConversation("gpt-large")

	result, err := o.SendPrompt(context.Background(), localID, "q", SendOptions{})
	if err != nil {
		t.Fatalf("SendPrompt failed: %v", err)
	}
	respID := result.Reply.Responses[0].RemoteID

	be.mu.Lock()
	be.rateErr = errors.New("rating rejected")
	be.mu.Unlock()

	err = o.RateResponse(context.Background(), respID, model.RatingDislike)
	var rerr *RatingUpdateError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want RatingUpdateError", err)
	}

	resp, _ := o.Store().ResponseByID(respID)
	if resp.Rating != model.RatingNone {
		t.Error("store rating changed despite a backend failure")
	}
}

func TestRateResponse_InvalidRating(t *testing.T) {
	be := newFakeBackend()
	o := newOrchestrator(be)

	err := o.RateResponse(context.Background(), "resp-1", model.Rating("loved-it"))
	if !errors.Is(err, model.ErrInvalidRating) {
		t.Errorf("err = %v, want ErrInvalidRating", err)
	}
}

func TestRateResponse_UnknownResponse(t *testing.T) {
	be := newFakeBackend()
	o := newOrchestrator(be)

	err := o.RateResponse(context.Background(), "resp-missing", model.RatingLike)
	var rerr *RatingUpdateError
	if !errors.As(err, &rerr) {
		t.Errorf("err = %v, want RatingUpdateError", err)
	}
}
