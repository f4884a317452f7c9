// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend defines the collaborator contracts the session core
// consumes, and an HTTP implementation of the conversation and model
// backends.
//
// Rendering, authentication providers, and billing live outside this
// system; they are reached only through the narrow interfaces here.
//
// # Key Types
//
//   - ConversationBackend: creates server-side conversations
//   - ModelBackend: sends prompts and returns model responses
//   - RatingBackend: forwards response ratings
//   - AuthContext: reports the signed-in user, if any
//   - LoggingSink: receives request log entries
//   - HTTPBackend: the HTTP/JSON implementation of all of the above
//     except AuthContext
//
// Backend failures map to sentinel errors (ErrAuthFailed, ErrRateLimited,
// ErrModelNotFound) where the status code is unambiguous, and to *APIError
// otherwise.
package backend
