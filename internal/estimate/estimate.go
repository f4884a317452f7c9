// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package estimate

import (
	"github.com/jeranaias/parley/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// charsPerToken is the GPT-style approximation of ~4 chars per token.
	charsPerToken = 4

	// encodingOverheadPct is the extra share added for encoding overhead.
	encodingOverheadPct = 10

	// SystemOverheadTokens is the fixed cost attributed to system framing
	// (role markers, separators) when requested.
	SystemOverheadTokens = 50

	// DefaultMaxContextTokens is the default truncation budget.
	DefaultMaxContextTokens = 32000
)

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// Tokens estimates the token count of a text.
// Deterministic and monotonic non-decreasing in len(text):
// ceil(len/4) plus 10% encoding overhead, both rounded up.
func Tokens(text string) int {
	base := (len(text) + charsPerToken - 1) / charsPerToken
	overhead := (base*encodingOverheadPct + 99) / 100
	return base + overhead
}

// Estimation is the token breakdown of a message sequence.
type Estimation struct {
	TotalTokens    int `json:"total_tokens"`
	UserMessages   int `json:"user_messages"`
	ModelResponses int `json:"model_responses"`
	SystemOverhead int `json:"system_overhead"`
}

// Context estimates the token footprint of a message sequence.
// It counts every user message's content and every model-response content
// found in the sequence, including responses nested under model messages.
// The fixed system overhead is added when requested.
func Context(messages []*model.Message, includeSystemOverhead bool) Estimation {
	var est Estimation
	for _, msg := range messages {
		est.add(msg)
	}
	if includeSystemOverhead {
		est.SystemOverhead = SystemOverheadTokens
	}
	est.TotalTokens = est.UserMessages + est.ModelResponses + est.SystemOverhead
	return est
}

// add accumulates a single message's contribution into the breakdown.
func (e *Estimation) add(msg *model.Message) {
	if msg.Author == model.RoleUser {
		e.UserMessages += Tokens(msg.Content)
	}
	for _, resp := range msg.Responses {
		e.ModelResponses += Tokens(resp.Content)
	}
}

// messageTokens is the total contribution of one message, regardless of
// which breakdown bucket it lands in.
func messageTokens(msg *model.Message) int {
	total := 0
	if msg.Author == model.RoleUser {
		total += Tokens(msg.Content)
	}
	for _, resp := range msg.Responses {
		total += Tokens(resp.Content)
	}
	return total
}

// =============================================================================
// TRUNCATION SUGGESTION
// =============================================================================

// Suggestion describes whether and how a conversation should be truncated
// to fit a token budget.
type Suggestion struct {
	ShouldTruncate       bool `json:"should_truncate"`
	KeepRecentMessages   int  `json:"keep_recent_messages"`
	EstimatedTokensAfter int  `json:"estimated_tokens_after"`
}

// SuggestTruncation decides how many recent messages fit within maxTokens.
// A maxTokens of zero or less means DefaultMaxContextTokens.
//
// Oldest messages are dropped first. Truncation never removes every
// message: KeepRecentMessages floors at 1 even if the single most recent
// message alone exceeds the budget.
//
// Uses a single pass of per-message sums rather than re-estimating the
// suffix on every step, so the cost is linear in the message count.
func SuggestTruncation(messages []*model.Message, maxTokens int) Suggestion {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}

	total := SystemOverheadTokens
	perMessage := make([]int, len(messages))
	for i, msg := range messages {
		perMessage[i] = messageTokens(msg)
		total += perMessage[i]
	}

	if len(messages) == 0 || total <= maxTokens {
		return Suggestion{
			ShouldTruncate:       false,
			KeepRecentMessages:   len(messages),
			EstimatedTokensAfter: total,
		}
	}

	// Drop oldest messages until the remaining suffix fits, keeping at
	// least the most recent message.
	drop := 0
	for drop < len(messages)-1 && total > maxTokens {
		total -= perMessage[drop]
		drop++
	}

	return Suggestion{
		ShouldTruncate:       true,
		KeepRecentMessages:   len(messages) - drop,
		EstimatedTokensAfter: total,
	}
}
