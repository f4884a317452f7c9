// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/parley/internal/model"
)

// Configuration constants for the HTTP backend.
const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// Prevents memory exhaustion from a misbehaving server.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	// defaultRequestsPerSecond limits outbound calls per backend.
	defaultRequestsPerSecond = 5

	// defaultBurst is the limiter burst size.
	defaultBurst = 10
)

// sharedHTTPClient pools connections across all backend instances.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: DefaultTimeout,
}

// Error variables for common backend errors.
var (
	// ErrNotConfigured indicates the base URL is not set.
	ErrNotConfigured = errors.New("backend base URL not configured")

	// ErrAuthFailed indicates authentication failed.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model endpoint does not exist.
	ErrModelNotFound = errors.New("model not found")
)

// APIError represents an error response from the backend API.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// createRequest is the payload for a conversation create call.
type createRequest struct {
	ModelID string `json:"model_id"`
}

// sendRequest is the payload for a model send call.
type sendRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// ratingRequest is the payload for a rating update.
type ratingRequest struct {
	Rating string `json:"rating"`
}

// wireResponse mirrors one model response on the wire.
type wireResponse struct {
	RemoteID       string    `json:"remote_id"`
	MessageID      string    `json:"message_id"`
	ModelName      string    `json:"model_name"`
	Content        string    `json:"content"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// wireMessage mirrors a recorded message on the wire.
type wireMessage struct {
	RemoteID       string         `json:"remote_id"`
	ConversationID string         `json:"conversation_id"`
	Author         string         `json:"author"`
	Content        string         `json:"content"`
	Responses      []wireResponse `json:"responses"`
	CreatedAt      time.Time      `json:"created_at"`
}

// apiErrorResponse represents an error body from the API.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// HTTP BACKEND
// =============================================================================

// HTTPBackend talks JSON over HTTP to the conversation and model services.
// It implements ConversationBackend, ModelBackend, and RatingBackend.
type HTTPBackend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPBackend creates a backend for the given base URL.
// An empty API key is allowed; requests then carry no Authorization header.
func NewHTTPBackend(baseURL, apiKey string) *HTTPBackend {
	return &HTTPBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: sharedHTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst),
	}
}

// WithHTTPClient overrides the HTTP client. Used by tests.
func (b *HTTPBackend) WithHTTPClient(c *http.Client) *HTTPBackend {
	b.httpClient = c
	return b
}

// WithRateLimit overrides the outbound request limit.
func (b *HTTPBackend) WithRateLimit(perSecond float64, burst int) *HTTPBackend {
	b.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return b
}

// CreateConversation asks the server to create a conversation for a model.
func (b *HTTPBackend) CreateConversation(ctx context.Context, modelID string) (Created, error) {
	var created Created
	err := b.postJSON(ctx, "/conversations", createRequest{ModelID: modelID}, &created)
	if err != nil {
		return Created{}, err
	}
	return created, nil
}

// Send forwards a prompt to the given model endpoint and returns the
// recorded message. The conversation reference must already be resolved;
// drafts are confirmed before the first send reaches this call.
func (b *HTTPBackend) Send(ctx context.Context, endpoint string, ref model.Ref, content string) (*model.Message, error) {
	path := "/models/" + url.PathEscape(endpoint) + "/messages"
	var wire wireMessage
	err := b.postJSON(ctx, path, sendRequest{
		ConversationID: ref.String(),
		Content:        content,
	}, &wire)
	if err != nil {
		return nil, err
	}
	return wire.toModel(), nil
}

// RateResponse persists a user rating for a model response.
func (b *HTTPBackend) RateResponse(ctx context.Context, responseID string, rating model.Rating) error {
	path := "/responses/" + url.PathEscape(responseID) + "/rating"
	return b.postJSON(ctx, path, ratingRequest{Rating: string(rating)}, nil)
}

// toModel converts a wire message into the domain message shape.
// The conversation's local tag is filled in by the caller, which knows
// which local conversation the send belonged to.
func (w *wireMessage) toModel() *model.Message {
	msg := &model.Message{
		RemoteID:             w.RemoteID,
		ConversationRemoteID: w.ConversationID,
		Author:               model.Role(w.Author),
		Content:              w.Content,
		CreatedAt:            w.CreatedAt,
	}
	if msg.Author == "" {
		msg.Author = model.RoleModel
	}
	for _, r := range w.Responses {
		msg.Responses = append(msg.Responses, &model.ModelResponse{
			RemoteID:       r.RemoteID,
			MessageID:      r.MessageID,
			ModelName:      r.ModelName,
			Content:        r.Content,
			ResponseTimeMs: r.ResponseTimeMs,
			CreatedAt:      r.CreatedAt,
		})
	}
	return msg
}

// =============================================================================
// HTTP PLUMBING
// =============================================================================

// postJSON issues a rate-limited POST and decodes the JSON response into
// out (when non-nil). Non-2xx statuses map to the sentinel errors above
// or an *APIError carrying the server's message.
func (b *HTTPBackend) postJSON(ctx context.Context, path string, payload, out any) error {
	if b.baseURL == "" {
		return ErrNotConfigured
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return b.mapError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// mapError converts an HTTP error status into a typed error.
func (b *HTTPBackend) mapError(status int, body []byte) error {
	var apiErr apiErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthFailed, apiErr.Error.Message)
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrModelNotFound, apiErr.Error.Message)
	}

	return &APIError{
		Code:    apiErr.Error.Code,
		Message: apiErr.Error.Message,
		Status:  status,
	}
}
