// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store keeps conversations and messages mutually consistent.
//
// Both collections live behind a single mutex so the confirm-and-rewrite
// reconciliation is one transactional update: no reader ever observes a
// confirmed conversation whose messages still carry an empty remote
// reference.
package store
