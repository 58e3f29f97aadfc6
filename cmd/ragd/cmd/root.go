// Package cmd provides the CLI commands for ragd.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragd-project/ragd/internal/logging"
	"github.com/ragd-project/ragd/pkg/version"
)

var (
	flagDataDir   string
	flagConfig    string
	flagDebug     bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the ragd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragd",
		Short: "Local-first retrieval-augmented generation engine",
		Long: `ragd ingests documents, chunks and embeds them, and serves hybrid
(keyword + semantic) search with citation-checked context assembly.

It runs entirely on the local filesystem with zero external services
required: a bleve full-text index, an in-process HNSW vector index, and
a SQLite metadata store.`,
		Version:      version.Version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate("ragd version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory (default: ./.ragd)")
	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to ragd.yaml (default: ./ragd.yaml)")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging to ~/.ragd/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !flagDebug {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to set up debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// dataDir resolves the effective data directory: the --data-dir flag, or
// ./.ragd under the current working directory.
func dataDir() (string, error) {
	if flagDataDir != "" {
		return flagDataDir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return filepath.Join(cwd, ".ragd"), nil
}

// configPath resolves the effective config file path: the --config flag,
// or ./ragd.yaml under the current working directory.
func configPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return filepath.Join(cwd, "ragd.yaml"), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
