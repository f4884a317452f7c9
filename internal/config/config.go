// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/parley/internal/score"
	"github.com/jeranaias/parley/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete parley configuration.
type Config struct {
	// DefaultModel is the model selected at startup.
	DefaultModel string `toml:"default_model"`

	// Models lists the configured model endpoints.
	Models []ModelConfig `toml:"models"`

	// Selection configures model auto-selection.
	Selection SelectionConfig `toml:"selection"`

	// Budget configures token budgets for context transfer.
	Budget BudgetConfig `toml:"budget"`

	// Backend configures the conversation/model services.
	Backend BackendConfig `toml:"backend"`

	// Log configures the local request log.
	Log LogConfig `toml:"log"`
}

// ModelConfig describes one model endpoint.
type ModelConfig struct {
	// Name is the display name used in scores and selection.
	Name string `toml:"name"`

	// Endpoint is the backend endpoint identifier for this model.
	Endpoint string `toml:"endpoint"`

	// MaxContextTokens caps context transfers to this model (0 = use the
	// global budget).
	MaxContextTokens int `toml:"max_context_tokens"`
}

// SelectionConfig configures model auto-selection.
type SelectionConfig struct {
	// Mode is "manual", "best_quality", or "token_efficient".
	Mode string `toml:"mode"`
}

// BudgetConfig configures token budgets.
type BudgetConfig struct {
	// ContextMaxTokens is the truncation budget for context transfer.
	ContextMaxTokens int `toml:"context_max_tokens"`
}

// BackendConfig configures the HTTP backend.
type BackendConfig struct {
	// BaseURL is the conversation/model service base URL.
	BaseURL string `toml:"base_url"`

	// APIKey authenticates outbound requests. Prefer the PARLEY_API_KEY
	// environment variable over putting the key in the file.
	APIKey string `toml:"api_key"`

	// RequestsPerSecond limits outbound calls (0 = library default).
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// LogConfig configures the local request log.
type LogConfig struct {
	// Enabled turns the SQLite request log on.
	Enabled bool `toml:"enabled"`

	// Path is the SQLite database path. Defaults under ~/.parley.
	Path string `toml:"path"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Selection: SelectionConfig{
			Mode: string(score.ModeManual),
		},
		Budget: BudgetConfig{
			ContextMaxTokens: 32000,
		},
		Log: LogConfig{
			Enabled: true,
			Path:    defaultLogPath(),
		},
	}
}

// Dir returns the parley configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".parley"), nil
}

// EnsureDir creates the configuration directory if it does not exist.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".parley", "config.toml")
}

// defaultLogPath returns the default request log database path.
func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "requests.db"
	}
	return filepath.Join(home, ".parley", "requests.db")
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the default config file, applies environment overrides, and
// validates. A missing file is not an error; defaults are used.
func Load() (*Config, error) {
	return LoadFromPath(DefaultPath())
}

// LoadFromPath reads the given config file, applies environment
// overrides, and validates. A missing file is not an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults apply.
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies PARLEY_* environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("PARLEY_MODEL"); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv("PARLEY_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("PARLEY_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("PARLEY_SELECTION_MODE"); v != "" {
		c.Selection.Mode = v
	}
	if v := os.Getenv("PARLEY_CONTEXT_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Budget.ContextMaxTokens = n
		}
	}
	if v := os.Getenv("PARLEY_LOG_PATH"); v != "" {
		c.Log.Path = v
	}
	if v := os.Getenv("PARLEY_LOG_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Log.Enabled = b
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if !score.Mode(c.Selection.Mode).Valid() {
		return fmt.Errorf("invalid selection mode %q", c.Selection.Mode)
	}
	if c.Budget.ContextMaxTokens < 0 {
		return fmt.Errorf("context_max_tokens must not be negative")
	}
	if c.Backend.BaseURL != "" {
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid backend base_url %q", c.Backend.BaseURL)
		}
	}
	seen := make(map[string]struct{}, len(c.Models))
	for _, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("model with empty name")
		}
		if m.Endpoint == "" {
			return fmt.Errorf("model %q has no endpoint", m.Name)
		}
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("duplicate model name %q", m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	if c.DefaultModel != "" && len(c.Models) > 0 {
		if _, ok := seen[c.DefaultModel]; !ok {
			return fmt.Errorf("default_model %q is not a configured model", c.DefaultModel)
		}
	}
	return nil
}

// ModelByName returns the configured model with the given name.
func (c *Config) ModelByName(name string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// SelectionMode returns the selection mode as a typed value.
func (c *Config) SelectionMode() score.Mode {
	return score.Mode(c.Selection.Mode)
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the default path atomically.
func Save(cfg *Config) error {
	return SaveToPath(cfg, DefaultPath())
}

// SaveToPath writes the configuration to the given path atomically.
func SaveToPath(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0o600)
}
