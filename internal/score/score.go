// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package score

import (
	"strings"

	"github.com/jeranaias/parley/internal/estimate"
	"github.com/jeranaias/parley/internal/model"
)

// =============================================================================
// SELECTION MODE
// =============================================================================

// Mode selects which score drives model auto-selection.
type Mode string

const (
	// ModeManual disables auto-selection; the user picks the model.
	ModeManual Mode = "manual"

	// ModeBestQuality selects the model with the best quality score.
	ModeBestQuality Mode = "best_quality"

	// ModeTokenEfficient selects the model with the best efficiency score.
	ModeTokenEfficient Mode = "token_efficient"
)

// Valid reports whether the mode is one of the known values.
func (m Mode) Valid() bool {
	return m == ModeManual || m == ModeBestQuality || m == ModeTokenEfficient
}

// =============================================================================
// QUALITY SCORING
// =============================================================================

// explanatoryMarkers signal reasoning in a response.
var explanatoryMarkers = []string{"because", "therefore", "however"}

// exampleMarkers signal concrete examples in a response.
var exampleMarkers = []string{"for example", "such as"}

// Quality scores a single response on a 0..1 scale using a weighted
// heuristic over length, structure, explanatory markers, and lexical
// diversity. Pure and deterministic; marker matching is case-insensitive.
func Quality(resp *model.ModelResponse) float64 {
	content := resp.Content
	lower := strings.ToLower(content)
	s := 0.0

	// Length bucket: substantial but not rambling answers score best.
	n := len(content)
	switch {
	case n >= 50 && n <= 2000:
		s += 0.3
	case n > 2000:
		s += 0.2
	}

	// Structural signals.
	if strings.Contains(content, "\n\n") {
		s += 0.2
	}
	if hasListMarker(content) {
		s += 0.15
	}
	if strings.Contains(content, "?") {
		s += 0.1
	}

	// Explanatory and example markers.
	if containsAny(lower, explanatoryMarkers) {
		s += 0.15
	}
	if containsAny(lower, exampleMarkers) {
		s += 0.1
	}

	// Lexical diversity: unique words / total words, scaled by 0.1.
	s += lexicalDiversity(lower) * 0.1

	return clamp01(s)
}

// hasListMarker reports whether the content contains bullet or numbered
// list markers at the start of a line.
func hasListMarker(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "- ") ||
			strings.HasPrefix(trimmed, "* ") ||
			startsWithNumberedItem(trimmed) {
			return true
		}
	}
	return false
}

// startsWithNumberedItem reports whether a line starts like "1." or "12.".
func startsWithNumberedItem(line string) bool {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && i < len(line) && line[i] == '.'
}

// containsAny reports whether s contains any of the given substrings.
func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// lexicalDiversity returns unique-words / total-words for the given text,
// or zero for empty text.
func lexicalDiversity(lower string) float64 {
	words := strings.Fields(lower)
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return float64(len(seen)) / float64(len(words))
}

// =============================================================================
// TOKEN EFFICIENCY SCORING
// =============================================================================

// stopWords are excluded from the meaningful-word count.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "that": {}, "this": {}, "with": {},
	"from": {}, "have": {}, "will": {}, "your": {}, "they": {},
	"what": {}, "when": {}, "which": {}, "there": {}, "their": {},
	"would": {}, "could": {}, "should": {}, "about": {}, "been": {},
}

const (
	// densityWeight and timeWeight blend word density with response speed.
	densityWeight = 0.7
	timeWeight    = 0.3

	// timeBudgetMs is the response time at which the time-efficiency
	// term bottoms out at zero.
	timeBudgetMs = 10000
)

// TokenEfficiency scores how much signal a response packs per token,
// blended with how quickly it arrived. Result is clamped to 0..1.
func TokenEfficiency(resp *model.ModelResponse) float64 {
	tokens := estimate.Tokens(resp.Content)

	density := 0.0
	if tokens > 0 {
		meaningful := 0
		for _, w := range strings.Fields(strings.ToLower(resp.Content)) {
			if len(w) <= 3 {
				continue
			}
			if _, stop := stopWords[w]; stop {
				continue
			}
			meaningful++
		}
		density = float64(meaningful) / float64(tokens)
	}

	timeEff := 1.0 - float64(resp.ResponseTimeMs)/timeBudgetMs
	if timeEff < 0 {
		timeEff = 0
	}

	return clamp01(density*densityWeight + timeEff*timeWeight)
}

// =============================================================================
// BEST-MODEL SELECTION
// =============================================================================

// FindBestModel returns the model whose response has the maximum relevant
// score for the given mode within a single round. The second return value
// is false for an empty response set or ModeManual.
//
// Tie-break: first-seen order wins. The comparison is strictly greater,
// so among equal scores the earliest response in the slice is kept.
func FindBestModel(responses []*model.ModelResponse, mode Mode) (string, bool) {
	if len(responses) == 0 || mode == ModeManual {
		return "", false
	}

	best := responses[0]
	bestScore := scoreFor(best, mode)
	for _, resp := range responses[1:] {
		if s := scoreFor(resp, mode); s > bestScore {
			best, bestScore = resp, s
		}
	}
	return best.ModelName, true
}

// scoreFor returns the score relevant to the selection mode.
func scoreFor(resp *model.ModelResponse, mode Mode) float64 {
	if mode == ModeTokenEfficient {
		return TokenEfficiency(resp)
	}
	return Quality(resp)
}

// clamp01 clamps a score into the 0..1 range.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
