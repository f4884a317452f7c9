// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assemble

import (
	"strings"

	"github.com/jeranaias/parley/internal/estimate"
	"github.com/jeranaias/parley/internal/model"
)

// BuildContext renders the full transcript plus the current prompt.
//
// Layout:
//
//	Previous conversation:
//
//	<Role>: <content>
//	[<modelName>]: <content>
//
//	<Role>: <content>
//
//	Current prompt: <currentPrompt>
func BuildContext(messages []*model.Message, currentPrompt string) string {
	var sb strings.Builder
	sb.WriteString("Previous conversation:\n\n")

	for _, msg := range messages {
		if msg.Content != "" {
			sb.WriteString(msg.Author.DisplayName())
			sb.WriteString(": ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
		for _, resp := range msg.Responses {
			sb.WriteString("[")
			sb.WriteString(resp.ModelName)
			sb.WriteString("]: ")
			sb.WriteString(resp.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Current prompt: ")
	sb.WriteString(currentPrompt)
	return sb.String()
}

// BuildBudgetedContext truncates the history to the token budget before
// serializing. Oldest turns are dropped first; the current prompt is
// always included.
func BuildBudgetedContext(messages []*model.Message, currentPrompt string, maxTokens int) (string, estimate.Suggestion) {
	suggestion := estimate.SuggestTruncation(messages, maxTokens)
	kept := messages
	if suggestion.ShouldTruncate {
		kept = messages[len(messages)-suggestion.KeepRecentMessages:]
	}
	return BuildContext(kept, currentPrompt), suggestion
}
