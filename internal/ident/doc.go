// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ident issues local identifiers for not-yet-confirmed
// conversations. Identifiers carry the "local_" prefix, so client- and
// server-issued IDs are distinguishable by construction.
package ident
