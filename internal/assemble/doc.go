// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assemble serializes conversation history for context transfer.
//
// When the user switches models and asks for entire-conversation context
// transfer, the newly selected model receives a plain-text transcript
// built by BuildContext. The format is an internal convention, but it is
// effectively a serialization format: ordering and the role labels
// ("User", "Assistant", "[modelName]") must stay stable so transcripts
// remain comparable across releases.
package assemble
