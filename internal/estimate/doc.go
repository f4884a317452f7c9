// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package estimate provides token and cost estimation for conversations.
//
// Tokens uses a deterministic character-count heuristic (~4 chars per
// token plus a 10% encoding overhead) rather than a real tokenizer, so
// estimates are stable across runs and cheap enough to recompute on
// every prompt. Context breaks an entire conversation down into user,
// model, and system buckets, and SuggestTruncation proposes a
// keep-the-most-recent cut when the total exceeds a budget.
package estimate
