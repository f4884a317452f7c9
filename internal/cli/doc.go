// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the thin command-line surface over the session core.
//
// The core library never depends on this package; everything here reads
// the store through its selectors and drives the orchestrator.
package cli
