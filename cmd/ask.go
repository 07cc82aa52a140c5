package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/app"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/log"
)

var askSessionID string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question",
	Long: `Ask sends a single question through the full pipeline: retrieval,
history, prompt assembly, cache, and completion. Pass --session to
continue an existing conversation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSessionID, "session", "", "session ID to continue (default: new session)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelWarn})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		_ = a.Close()
	}()

	sessionID := askSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	question := strings.Join(args, " ")
	answer, err := a.Engine.Process(ctx, sessionID, question)
	if err != nil {
		return fmt.Errorf("processing question: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), answer.Text)
	if askSessionID == "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", sessionID)
	}
	return nil
}
