// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (set at build time by main).
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is a parsed top-level command.
type Command string

const (
	CommandChat    Command = "chat"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// Parse splits os.Args into a command and its remaining arguments.
// The default command is chat.
func Parse() (Command, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return CommandChat, nil
	}
	switch args[0] {
	case "chat":
		return CommandChat, args[1:]
	case "version", "--version", "-v":
		return CommandVersion, nil
	case "help", "--help", "-h":
		return CommandHelp, nil
	default:
		if strings.HasPrefix(args[0], "-") {
			return CommandChat, args
		}
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		return CommandHelp, nil
	}
}

// PrintVersion writes version information to stdout.
func PrintVersion() {
	fmt.Printf("parley %s (%s, built %s)\n", Version, GitCommit, BuildDate)
}

// PrintHelp writes usage information to stdout.
func PrintHelp() {
	fmt.Print(`parley - conversational client for language-model backends

Usage:
  parley [chat] [flags]    Start an interactive chat session (default)
  parley version           Show version information
  parley help              Show this help

Chat flags:
  --config PATH       Config file (default ~/.parley/config.toml)
  --model NAME        Initial model (overrides config default_model)
  --backend URL       Backend base URL (overrides config)

Interactive commands (during chat):
  /model [name]       Show or manually select the model
  /switch NAME        Switch model, carrying the entire conversation
  /mode [mode]        Show or set selection mode
  /scores             Show running model scores
  /tokens             Show the conversation token estimate
  /rate ID like|dislike  Rate a model response
  /new [model]        Start a new conversation
  /quit               Exit
`)
}
