// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`default_model = ""`), 0o600))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	// Shorten the debounce so the test does not sit on the default.
	w.mu.Lock()
	w.debounce = 50 * time.Millisecond
	w.mu.Unlock()

	require.NoError(t, os.WriteFile(path, []byte(`
[budget]
context_max_tokens = 4242
`), 0o600))

	select {
	case cfg := <-reloaded:
		require.Equal(t, 4242, cfg.Budget.ContextMaxTokens)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestWatcher_InvalidFileKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(``), 0o600))

	reloaded := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(*Config) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()
	w.mu.Lock()
	w.debounce = 50 * time.Millisecond
	w.mu.Unlock()

	// A broken file must not reach the callback.
	require.NoError(t, os.WriteFile(path, []byte("not [valid"), 0o600))

	select {
	case <-reloaded:
		t.Fatal("callback fired for an invalid config")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(``), 0o600))

	reloaded := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(*Config) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()
	w.mu.Lock()
	w.debounce = 50 * time.Millisecond
	w.mu.Unlock()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))

	select {
	case <-reloaded:
		t.Fatal("callback fired for an unrelated file")
	case <-time.After(500 * time.Millisecond):
	}
}
