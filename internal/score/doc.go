// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package score rates model responses and drives automatic model selection.
//
// # Key Types
//
//   - Mode: the selection mode (manual, best_quality, token_efficient)
//   - Registry: process-lifetime running averages per model
//   - RunningScore: the accumulated scores for one model
//
// Quality and TokenEfficiency are deterministic heuristics over a single
// response; the Registry folds them into running averages and Best picks
// the model the current mode favors. FindBestModel does the same for one
// broadcast round without touching the Registry.
package score
