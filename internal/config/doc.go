// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for parley.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation.
//
// Configuration file location (in order of precedence):
//   - path given explicitly to LoadFromPath
//   - ~/.parley/config.toml
//   - Built-in defaults
//
// # Environment Variables
//
// PARLEY_* variables override file values (PARLEY_MODEL,
// PARLEY_BACKEND_URL, PARLEY_API_KEY, PARLEY_SELECTION_MODE,
// PARLEY_CONTEXT_MAX_TOKENS, PARLEY_LOG_PATH, PARLEY_LOG_ENABLED).
//
// # Hot Reload
//
// Watcher observes the config file with fsnotify and re-loads it on
// change after a debounce. A file that fails to load or validate keeps
// the previous configuration in effect.
package config
