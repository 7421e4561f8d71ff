// Package cmd contains the localrag CLI commands.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/localrag/localrag/internal/log"
)

var (
	flagLogLevel string
	flagLogJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "localrag",
	Short: "Local document knowledge base with conversational retrieval",
	Long: `localrag ingests PDF and Markdown documents into a content-addressed,
vector-indexed knowledge base and answers questions about them through a
conversational retrieval pipeline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit logs as JSON")
}

// newLogger builds the process logger from the global flags.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch flagLogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return log.New(log.Config{
		Level: level,
		JSON:  flagLogJSON,
	})
}
