// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

// TruncateString truncates a string to maxLen runes, adding "..." when
// truncated. Rune-based so multi-byte characters are never split.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// PadString pads a string with spaces to the given display width.
func PadString(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return s
	}
	for i := len(runes); i < width; i++ {
		s += " "
	}
	return s
}
