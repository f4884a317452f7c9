// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler for parley.
//
// Handles the "parley chat" command which provides an interactive REPL
// for conversing with model backends through the session orchestrator.
//
// Command: chat
// Short:   Start an interactive chat session
//
// Examples:
//   parley                          Start interactive chat (default model)
//   parley chat --model gpt-large   Use a specific model
//   parley chat --config ./alt.toml Use an alternate config file
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /model [name]       Show or manually select the model
//   /switch NAME        Switch model, carrying the conversation across
//   /mode [mode]        Show or set the selection mode
//   /scores             Show running per-model scores
//   /tokens             Show the conversation token estimate
//   /rate ID RATING     Rate a model response (like or dislike)
//   /new [model]        Start a new conversation
//   /quit, /q           Exit
//   Ctrl+C              Cancel the current request
//   Ctrl+D              Exit
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/parley/internal/backend"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/estimate"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/reqlog"
	"github.com/jeranaias/parley/internal/score"
	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/store"
	"github.com/jeranaias/parley/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.Dir()
	if err != nil {
		configDir = os.TempDir()
	}

	cli := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	cli.LoadHistory()
	return cli
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
// Supports history navigation with arrow keys.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history to file with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession holds the state for an interactive chat session.
type ChatSession struct {
	Config       *config.Config
	Orchestrator *session.Orchestrator
	Log          *reqlog.Log

	// Local ID of the active conversation.
	ConversationID string

	StartTime   time.Time
	TotalTokens int

	// cancelMu guards cancel, which is installed by the prompt loop and
	// invoked from the signal handler goroutine.
	cancelMu sync.Mutex
	cancel   context.CancelFunc

	// transferNext carries the conversation transcript on the next
	// prompt, set by /switch.
	transferNext bool

	InputCLI *ChatCLI
}

// NewChatSession wires the backend, request log, and orchestrator from
// configuration and opens a first draft conversation.
func NewChatSession(args *ChatArgs) (*ChatSession, error) {
	path := args.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	if args.BackendURL != "" {
		cfg.Backend.BaseURL = args.BackendURL
	}

	be := backend.NewHTTPBackend(cfg.Backend.BaseURL, cfg.Backend.APIKey)
	if cfg.Backend.RequestsPerSecond > 0 {
		be.WithRateLimit(cfg.Backend.RequestsPerSecond, 1)
	}

	var sink backend.LoggingSink = backend.DiscardLog{}
	var rlog *reqlog.Log
	if cfg.Log.Enabled && cfg.Log.Path != "" {
		rlog, err = reqlog.Open(cfg.Log.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[Warning] request log unavailable: %v\n", err)
		} else {
			sink = &reqlog.FireAndForget{Sink: rlog}
		}
	}

	modelName := args.Model
	if modelName == "" {
		modelName = cfg.DefaultModel
	}

	orch := session.New(session.Config{
		Store:         store.New(),
		Conversations: be,
		Models:        be,
		Sink:          sink,
		Mode:          cfg.SelectionMode(),
		DefaultModel:  modelName,
		ContextBudget: cfg.Budget.ContextMaxTokens,
	})

	localID := orch.NewConversation(modelName)

	return &ChatSession{
		Config:         cfg,
		Orchestrator:   orch,
		Log:            rlog,
		ConversationID: localID,
		StartTime:      time.Now(),
		InputCLI:       NewChatCLI(),
	}, nil
}

// setCancel installs the cancel function for the in-flight request.
// Pass nil to clear it.
func (s *ChatSession) setCancel(fn context.CancelFunc) {
	s.cancelMu.Lock()
	s.cancel = fn
	s.cancelMu.Unlock()
}

// cancelInFlight cancels the in-flight request, if any, and reports
// whether one was cancelled.
func (s *ChatSession) cancelInFlight() bool {
	s.cancelMu.Lock()
	fn := s.cancel
	s.cancel = nil
	s.cancelMu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Close releases session resources.
func (s *ChatSession) Close() {
	s.InputCLI.Close()
	if s.Log != nil {
		s.Log.Close()
	}
}

// endpointFor maps a model name to its backend endpoint via config.
// Unknown models fall back to using the name as the endpoint.
func (s *ChatSession) endpointFor(name string) string {
	if mc, ok := s.Config.ModelByName(name); ok {
		return mc.Endpoint
	}
	return name
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChatCommand handles the "chat" command with full interactive support.
func HandleChatCommand(args []string) error {
	parsed, err := ParseChatArgs(args)
	if err != nil {
		return err
	}

	chat, err := NewChatSession(parsed)
	if err != nil {
		return err
	}
	defer chat.Close()

	printWelcome(chat)

	// First Ctrl+C cancels the in-flight request instead of exiting.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigChan {
			if chat.cancelInFlight() {
				fmt.Fprintln(os.Stderr, "\n[Cancelled]")
			}
		}
	}()

	for {
		input, err := chat.InputCLI.ReadInput("parley> ")
		if err != nil {
			// Ctrl+C at the prompt, EOF (Ctrl+D), or a read error all exit.
			fmt.Println()
			printExitSummary(chat)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldContinue, err := handleSlashCommand(input, chat)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[Error] %v\n", err)
			}
			if !shouldContinue {
				printExitSummary(chat)
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			printExitSummary(chat)
			return nil
		}

		if err := processPrompt(chat, input); err != nil {
			fmt.Fprintf(os.Stderr, "[Error] %v\n", err)
		}
	}
}

// =============================================================================
// PROMPT PROCESSING
// =============================================================================

// processPrompt sends a prompt through the orchestrator and prints the
// model responses.
func processPrompt(chat *ChatSession, input string) error {
	ctx, cancel := context.WithCancel(context.Background())
	chat.setCancel(cancel)
	defer func() {
		chat.setCancel(nil)
		cancel()
	}()

	endpoint := chat.endpointFor(chat.Orchestrator.SelectedModel())
	transfer := chat.transferNext
	chat.transferNext = false

	start := time.Now()
	result, err := chat.Orchestrator.SendPrompt(ctx, chat.ConversationID, input, session.SendOptions{
		Endpoint:        endpoint,
		TransferContext: transfer,
	})
	if err != nil {
		var createErr *session.ConversationCreationError
		if errors.As(err, &createErr) {
			return fmt.Errorf("conversation could not be registered with the backend: %w", err)
		}
		return err
	}

	if result.Truncation != nil && result.Truncation.ShouldTruncate {
		fmt.Fprintf(os.Stderr, "[Context] Transferred the %d most recent messages (~%d tokens)\n",
			result.Truncation.KeepRecentMessages, result.Truncation.EstimatedTokensAfter)
	}

	fmt.Println()
	for _, resp := range result.Reply.Responses {
		fmt.Printf("[%s] %s\n", resp.ModelName, resp.Content)
		if resp.RemoteID != "" {
			fmt.Fprintf(os.Stderr, "  (response %s - rate with /rate %s like|dislike)\n",
				util.TruncateString(resp.RemoteID, 16), resp.RemoteID)
		}
		chat.TotalTokens += estimate.Tokens(resp.Content)
	}
	chat.TotalTokens += estimate.Tokens(input)
	fmt.Println()

	fmt.Fprintf(os.Stderr, "[Stats] model %s | %s\n",
		result.SelectedModel,
		time.Since(start).Round(time.Millisecond))

	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func handleSlashCommand(cmd string, chat *ChatSession) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		printChatHelp()
		return true, nil

	case "/model", "/m":
		return handleModelCommand(chat, args)

	case "/switch":
		return handleSwitchCommand(chat, args)

	case "/mode":
		return handleModeCommand(chat, args)

	case "/scores":
		printScores(chat)
		return true, nil

	case "/tokens":
		printTokens(chat)
		return true, nil

	case "/rate":
		return handleRateCommand(chat, args)

	case "/new", "/n":
		return handleNewCommand(chat, args)

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// handleModelCommand shows or manually selects the current model.
func handleModelCommand(chat *ChatSession, args []string) (bool, error) {
	if len(args) == 0 {
		current := chat.Orchestrator.SelectedModel()
		if current == "" {
			current = "(none)"
		}
		fmt.Printf("[Model] Current model: %s (mode: %s)\n",
			current, chat.Orchestrator.SelectionMode())
		return true, nil
	}

	name := args[0]
	if _, ok := chat.Config.ModelByName(name); !ok {
		fmt.Fprintf(os.Stderr, "[Warning] Model %q is not in the config, will attempt to use anyway\n", name)
	}
	chat.Orchestrator.SelectModel(name)
	fmt.Printf("[OK] Selected model: %s\n", name)
	return true, nil
}

// handleSwitchCommand switches to another model and carries the entire
// conversation history into the next prompt.
func handleSwitchCommand(chat *ChatSession, args []string) (bool, error) {
	if len(args) == 0 {
		return true, fmt.Errorf("usage: /switch MODEL")
	}

	name := args[0]
	if _, ok := chat.Config.ModelByName(name); !ok {
		fmt.Fprintf(os.Stderr, "[Warning] Model %q is not in the config, will attempt to use anyway\n", name)
	}
	chat.Orchestrator.SelectModel(name)

	suggestion := chat.Orchestrator.SuggestTruncation(model.LocalRef(chat.ConversationID))
	if suggestion.ShouldTruncate {
		fmt.Printf("[Switch] Model set to %s. Context exceeds the budget; only the most recent %d messages will transfer (~%d tokens).\n",
			name, suggestion.KeepRecentMessages, suggestion.EstimatedTokensAfter)
	} else {
		fmt.Printf("[Switch] Model set to %s. Full conversation will transfer on the next prompt.\n", name)
	}

	chat.transferNext = true
	return true, nil
}

// handleModeCommand shows or sets the model selection mode.
func handleModeCommand(chat *ChatSession, args []string) (bool, error) {
	if len(args) == 0 {
		fmt.Printf("[Mode] Selection mode: %s\n", chat.Orchestrator.SelectionMode())
		return true, nil
	}

	mode := score.Mode(strings.ToLower(args[0]))
	if !mode.Valid() {
		return true, fmt.Errorf("unknown mode %q (manual, best_quality, token_efficient)", args[0])
	}
	chat.Orchestrator.SetSelectionMode(mode)
	fmt.Printf("[OK] Selection mode: %s\n", mode)
	return true, nil
}

// handleRateCommand rates a model response by remote ID.
func handleRateCommand(chat *ChatSession, args []string) (bool, error) {
	if len(args) != 2 {
		return true, fmt.Errorf("usage: /rate RESPONSE-ID like|dislike")
	}

	var rating model.Rating
	switch strings.ToLower(args[1]) {
	case "like":
		rating = model.RatingLike
	case "dislike":
		rating = model.RatingDislike
	default:
		return true, fmt.Errorf("rating must be like or dislike")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := chat.Orchestrator.RateResponse(ctx, args[0], rating); err != nil {
		return true, err
	}
	fmt.Printf("[OK] Response %s rated %s\n", args[0], rating)
	return true, nil
}

// handleNewCommand starts a new draft conversation.
func handleNewCommand(chat *ChatSession, args []string) (bool, error) {
	modelID := chat.Orchestrator.SelectedModel()
	if len(args) > 0 {
		modelID = args[0]
		chat.Orchestrator.SelectModel(modelID)
	}

	chat.ConversationID = chat.Orchestrator.NewConversation(modelID)
	chat.transferNext = false
	fmt.Printf("[OK] New conversation (model: %s)\n", modelID)
	return true, nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

// printWelcome prints the welcome banner.
func printWelcome(chat *ChatSession) {
	fmt.Println()
	fmt.Println("parley interactive chat")
	fmt.Println(strings.Repeat("─", 30))

	current := chat.Orchestrator.SelectedModel()
	if current == "" {
		current = "(none - set one with /model NAME)"
	}
	fmt.Printf("Model: %s\n", current)
	fmt.Printf("Mode:  %s\n", chat.Orchestrator.SelectionMode())
	fmt.Printf("Backend: %s\n", chat.Config.Backend.BaseURL)

	fmt.Println()
	fmt.Println("Type your message and press Enter. Commands: /help, /quit")
	fmt.Println()
}

// printChatHelp prints available interactive commands.
func printChatHelp() {
	fmt.Println()
	fmt.Println("Available Commands")
	fmt.Println(strings.Repeat("─", 20))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/model [name]", "Show or manually select the model"},
		{"/switch NAME", "Switch model, carrying the conversation"},
		{"/mode [mode]", "Show or set selection mode"},
		{"/scores", "Show running per-model scores"},
		{"/tokens", "Show the conversation token estimate"},
		{"/rate ID RATING", "Rate a response (like or dislike)"},
		{"/new [model]", "Start a new conversation"},
		{"/quit, /q", "Exit"},
	}
	for _, c := range commands {
		fmt.Printf("  %-17s %s\n", c.cmd, c.desc)
	}

	fmt.Println()
	fmt.Println("Tip: Ctrl+C cancels the current request, Ctrl+D exits")
	fmt.Println()
}

// printScores prints the running per-model scores.
func printScores(chat *ChatSession) {
	snapshot := chat.Orchestrator.Registry().Snapshot()
	if len(snapshot) == 0 {
		fmt.Println("[Scores] No responses observed yet")
		return
	}

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println()
	fmt.Println("Model Scores")
	fmt.Println(strings.Repeat("─", 20))
	for _, name := range names {
		s := snapshot[name]
		fmt.Printf("  %s quality %.2f | efficiency %.2f | %d samples\n",
			util.PadString(name, 20), s.Quality, s.TokenEfficiency, s.Samples)
	}
	fmt.Println()
}

// printTokens prints the conversation token estimate and the truncation
// suggestion for the configured budget.
func printTokens(chat *ChatSession) {
	est := chat.Orchestrator.EstimateConversation(model.LocalRef(chat.ConversationID))

	fmt.Println()
	fmt.Println("Token Estimate")
	fmt.Println(strings.Repeat("─", 20))
	fmt.Printf("  Total:           %d\n", est.TotalTokens)
	fmt.Printf("  User messages:   %d\n", est.UserMessages)
	fmt.Printf("  Model responses: %d\n", est.ModelResponses)
	fmt.Printf("  System overhead: %d\n", est.SystemOverhead)

	suggestion := chat.Orchestrator.SuggestTruncation(model.LocalRef(chat.ConversationID))
	if suggestion.ShouldTruncate {
		fmt.Printf("  Over budget: keep the %d most recent messages (~%d tokens)\n",
			suggestion.KeepRecentMessages, suggestion.EstimatedTokensAfter)
	}
	fmt.Println()
}

// printExitSummary prints the session summary on exit.
func printExitSummary(chat *ChatSession) {
	elapsed := time.Since(chat.StartTime).Round(time.Second)

	if chat.TotalTokens == 0 {
		fmt.Println("Goodbye!")
		return
	}

	fmt.Println()
	fmt.Println("Session Summary")
	fmt.Println(strings.Repeat("─", 15))
	fmt.Printf("  Tokens (est.): %d\n", chat.TotalTokens)
	fmt.Printf("  Duration:      %s\n", elapsed)
	fmt.Println()
	fmt.Println("Goodbye!")
}
