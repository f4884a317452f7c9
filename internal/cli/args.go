// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
)

// ChatArgs holds the parsed flags for the chat command.
type ChatArgs struct {
	ConfigPath string
	Model      string
	BackendURL string
}

// ParseChatArgs parses chat-command flags. Flags may appear as
// --flag value or --flag=value.
func ParseChatArgs(args []string) (*ChatArgs, error) {
	out := &ChatArgs{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := splitFlag(arg)
		if name == "" {
			return nil, fmt.Errorf("unexpected argument %q", arg)
		}
		if !hasValue {
			if i+1 >= len(args) || strings.HasPrefix(args[i+1], "-") {
				return nil, fmt.Errorf("flag --%s requires a value", name)
			}
			i++
			value = args[i]
		}
		switch name {
		case "config":
			out.ConfigPath = value
		case "model":
			out.Model = value
		case "backend":
			out.BackendURL = value
		default:
			return nil, fmt.Errorf("unknown flag --%s", name)
		}
	}
	return out, nil
}

// splitFlag returns the flag name and inline value for --flag or
// --flag=value forms. name is empty for non-flag arguments.
func splitFlag(arg string) (name, value string, hasValue bool) {
	if !strings.HasPrefix(arg, "--") {
		return "", "", false
	}
	body := strings.TrimPrefix(arg, "--")
	if idx := strings.Index(body, "="); idx >= 0 {
		return body[:idx], body[idx+1:], true
	}
	return body, "", false
}
