// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session coordinates prompt sends across the stores, the scorer,
// and the backends.
//
// The Orchestrator is the single entry point: it appends the user message
// optimistically, confirms draft conversations (coalescing concurrent
// confirms into one backend call), assembles transfer context under the
// token budget, observes response scores, and auto-selects models per the
// configured mode. Failures surface as typed errors that leave the local
// state recoverable rather than rolled back.
package session
