// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and model responses.
//
// A Conversation starts life as a client-only draft with a local identifier
// and becomes confirmed once the backend assigns it a remote identifier.
// Messages are tagged with the conversation's local identifier at creation
// time so they can be reconciled when the conversation is confirmed.
//
// The types here are plain data; lifecycle rules (single remote-ID
// assignment, atomic message rewrite) are enforced by the store package.
package model
