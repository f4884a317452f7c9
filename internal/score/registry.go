// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package score

import (
	"sync"

	"github.com/jeranaias/parley/internal/model"
)

// =============================================================================
// RUNNING SCORE
// =============================================================================

// RunningScore is the per-model running average of observed scores.
// Process-lifetime only; never persisted.
type RunningScore struct {
	Quality            float64 `json:"quality"`
	TokenEfficiency    float64 `json:"token_efficiency"`
	LastResponseTimeMs int64   `json:"last_response_time_ms"`
	Samples            int     `json:"samples"`
}

// =============================================================================
// SCORE REGISTRY
// =============================================================================

// Registry holds running scores per model. It is an owned structure passed
// by handle to the orchestrator rather than module-level state, so tests
// and multiple sessions can each have their own.
type Registry struct {
	mu     sync.RWMutex
	scores map[string]*RunningScore
}

// NewRegistry creates an empty score registry.
func NewRegistry() *Registry {
	return &Registry{
		scores: make(map[string]*RunningScore),
	}
}

// Observe scores a response and folds it into the model's running
// averages. Every observed response counts; coverage never shrinks.
func (r *Registry) Observe(resp *model.ModelResponse) {
	quality := Quality(resp)
	efficiency := TokenEfficiency(resp)

	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.scores[resp.ModelName]
	if !ok {
		rs = &RunningScore{}
		r.scores[resp.ModelName] = rs
	}

	n := float64(rs.Samples)
	rs.Quality = (rs.Quality*n + quality) / (n + 1)
	rs.TokenEfficiency = (rs.TokenEfficiency*n + efficiency) / (n + 1)
	rs.LastResponseTimeMs = resp.ResponseTimeMs
	rs.Samples++
}

// Get returns a copy of the running score for a model.
func (r *Registry) Get(modelName string) (RunningScore, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.scores[modelName]
	if !ok {
		return RunningScore{}, false
	}
	return *rs, true
}

// Snapshot returns a copy of all running scores keyed by model name.
func (r *Registry) Snapshot() map[string]RunningScore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]RunningScore, len(r.scores))
	for name, rs := range r.scores {
		out[name] = *rs
	}
	return out
}

// Best returns the model with the highest running score for the given
// mode, considering all observations so far rather than a single round.
// Tie-break: lexicographic on model name, so the result is deterministic
// regardless of map iteration order.
func (r *Registry) Best(mode Mode) (string, bool) {
	if mode == ModeManual {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	bestName := ""
	bestScore := -1.0
	for name, rs := range r.scores {
		s := rs.Quality
		if mode == ModeTokenEfficient {
			s = rs.TokenEfficiency
		}
		if s > bestScore || (s == bestScore && (bestName == "" || name < bestName)) {
			bestName, bestScore = name, s
		}
	}
	if bestName == "" {
		return "", false
	}
	return bestName, true
}
