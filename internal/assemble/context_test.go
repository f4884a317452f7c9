// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assemble

import (
	"strings"
	"testing"

	"github.com/jeranaias/parley/internal/model"
)

func TestBuildContext_Format(t *testing.T) {
	messages := []*model.Message{
		model.NewUserMessage("local_1", "What is a goroutine?"),
		model.NewModelMessage("local_1", []*model.ModelResponse{
			{ModelName: "alpha", Content: "A lightweight thread."},
		}),
	}

	got := BuildContext(messages, "And a channel?")
	want := "Previous conversation:\n\n" +
		"User: What is a goroutine?\n\n" +
		"[alpha]: A lightweight thread.\n\n" +
		"Current prompt: And a channel?"

	if got != want {
		t.Errorf("BuildContext mismatch:\ngot:\n%q\nwant:\n%q", got, want)
	}
}

func TestBuildContext_SkipsEmptyContent(t *testing.T) {
	// Model messages carry their text in responses; the empty container
	// content must not produce a bare "Model:" line.
	messages := []*model.Message{
		model.NewModelMessage("local_1", []*model.ModelResponse{
			{ModelName: "alpha", Content: "answer"},
		}),
	}

	got := BuildContext(messages, "next")
	if strings.Contains(got, "Model: ") {
		t.Errorf("transcript contains an empty model line:\n%s", got)
	}
	if !strings.Contains(got, "[alpha]: answer\n") {
		t.Errorf("transcript missing the response line:\n%s", got)
	}
}

func TestBuildContext_BroadcastResponses(t *testing.T) {
	messages := []*model.Message{
		model.NewModelMessage("local_1", []*model.ModelResponse{
			{ModelName: "alpha", Content: "first take"},
			{ModelName: "beta", Content: "second take"},
		}),
	}

	got := BuildContext(messages, "continue")
	alphaIdx := strings.Index(got, "[alpha]: first take")
	betaIdx := strings.Index(got, "[beta]: second take")
	if alphaIdx < 0 || betaIdx < 0 {
		t.Fatalf("transcript missing broadcast responses:\n%s", got)
	}
	if alphaIdx > betaIdx {
		t.Error("broadcast responses out of order")
	}
}

func TestBuildContext_EmptyHistory(t *testing.T) {
	got := BuildContext(nil, "hello")
	want := "Previous conversation:\n\nCurrent prompt: hello"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildBudgetedContext_DropsOldest(t *testing.T) {
	messages := make([]*model.Message, 0, 30)
	for i := 0; i < 30; i++ {
		messages = append(messages, model.NewUserMessage("local_1", strings.Repeat("x", 400)))
	}

	// 110 tokens per message plus overhead; a 1000-token budget keeps only
	// the most recent handful.
	got, suggestion := BuildBudgetedContext(messages, "latest question", 1000)
	if !suggestion.ShouldTruncate {
		t.Fatal("expected truncation")
	}
	if suggestion.KeepRecentMessages >= 30 {
		t.Errorf("KeepRecentMessages = %d, expected fewer than 30", suggestion.KeepRecentMessages)
	}
	if !strings.HasSuffix(got, "Current prompt: latest question") {
		t.Error("current prompt missing from truncated transcript")
	}

	// The kept transcript contains exactly the suggested number of turns.
	if n := strings.Count(got, "User: "); n != suggestion.KeepRecentMessages {
		t.Errorf("transcript has %d user lines, want %d", n, suggestion.KeepRecentMessages)
	}
}

func TestBuildBudgetedContext_UnderBudgetKeepsAll(t *testing.T) {
	messages := []*model.Message{
		model.NewUserMessage("local_1", "short history"),
	}

	got, suggestion := BuildBudgetedContext(messages, "prompt", 10000)
	if suggestion.ShouldTruncate {
		t.Error("expected no truncation under budget")
	}
	if !strings.Contains(got, "User: short history") {
		t.Error("history missing from transcript")
	}
}
