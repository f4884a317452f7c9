// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reqlog records request log entries in a local SQLite database.
//
// The log is an observability aid, not a durability guarantee: entries
// are written fire-and-forget and a failed write is only logged locally.
package reqlog
