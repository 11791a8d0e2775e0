// Komatachi is the runtime for a persistent conversational entity: one
// process, one conversation, whose transcript survives restarts and whose
// token footprint is kept bounded by identity-aware compaction.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/linustan/komatachi/pkg/config"
	"github.com/linustan/komatachi/pkg/conversation"
	"github.com/linustan/komatachi/pkg/komatachierr"
	"github.com/linustan/komatachi/pkg/logger"
	"github.com/linustan/komatachi/pkg/storage"
	"github.com/linustan/komatachi/pkg/tools"
	"github.com/linustan/komatachi/pkg/turn"
)

// conversationDir is the fixed subdirectory name under dataDir. Komatachi
// is one process, one entity, one conversation — there is no conversation
// id to select among.
const conversationDir = "conversation"

func main() {
	root := &cobra.Command{
		Use:   "komatachi",
		Short: "Runtime for a persistent conversational entity",
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newDoctorCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the stdin/stdout turn loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession()
		},
	}
}

func runSession() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}

	store := storage.New(cfg.DataDir)
	conv, err := conversation.New(store, conversationDir)
	if err != nil {
		return fmt.Errorf("opening conversation store: %w", err)
	}

	if _, _, err := conv.Load(); err != nil {
		if !komatachierr.Is(err, komatachierr.NotFound) {
			return fmt.Errorf("loading conversation: %w", err)
		}
		if err := conv.Initialize(&cfg.Model); err != nil {
			return fmt.Errorf("initializing conversation: %w", err)
		}
	}

	logger.SetLevel(logger.INFO)

	model := newAnthropicModel(cfg.AnthropicAPIKey, "")
	modelFunc := rateLimited(model.Call, newDefaultLimiter())

	loop := &turn.Loop{
		Conversation:  conv,
		HomeDir:       cfg.HomeDir,
		Tools:         []tools.Definition{},
		Model:         modelFunc,
		ModelName:     cfg.Model,
		MaxTokens:     cfg.MaxTokens,
		ContextWindow: cfg.ContextWindow,
	}

	in, out := openStdio()
	return runWireProtocol(context.Background(), in, out, loop)
}
