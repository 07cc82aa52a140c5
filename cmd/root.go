// Package cmd defines the ragline CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ragline",
	Short: "ragline - retrieval-augmented chat answering service",
	Long: `ragline answers chat messages by combining knowledge-base retrieval
with conversation history, assembling both into a bounded prompt, and
generating a completion with caching and retry around the provider.

Run "ragline serve" to start the HTTP API, or "ragline ask" for a
one-shot question.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
