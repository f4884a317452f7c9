// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
)

// ErrConfirmFailed is reported to callers that waited on a confirmation
// another send started, when that confirmation did not succeed.
var ErrConfirmFailed = errors.New("conversation confirmation failed")

// ErrNoModelSelected is returned when a send has no endpoint to target.
var ErrNoModelSelected = errors.New("no model selected")

// ConversationCreationError means the backend create call failed.
// The conversation stays in draft; the send that triggered it is aborted
// and its optimistic message remains in place.
type ConversationCreationError struct {
	LocalID string
	Err     error
}

// Error implements the error interface.
func (e *ConversationCreationError) Error() string {
	return fmt.Sprintf("conversation creation failed for %s: %v", e.LocalID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConversationCreationError) Unwrap() error { return e.Err }

// ModelSendError means the model backend call failed. No message is
// recorded for the failed response.
type ModelSendError struct {
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *ModelSendError) Error() string {
	return fmt.Sprintf("model send failed for %s: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ModelSendError) Unwrap() error { return e.Err }

// RatingUpdateError means a user rating could not be recorded. Unlike
// backend failures during a send, this is propagated to the caller: the
// rating is a direct user action expecting confirmation.
type RatingUpdateError struct {
	ResponseID string
	Err        error
}

// Error implements the error interface.
func (e *RatingUpdateError) Error() string {
	return fmt.Sprintf("rating update failed for %s: %v", e.ResponseID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RatingUpdateError) Unwrap() error { return e.Err }
