// Package cmd provides the CLI commands for memvault.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/memvault/memvault/internal/logging"
	"github.com/memvault/memvault/pkg/version"
)

// persistent flags shared by every subcommand.
var (
	flagRoot  string
	flagScope string
	flagDebug bool
)

// activeLogger is set by enableDebugLogging when --debug is given;
// openManager passes it to memory.Options.Logger so the Memory Manager
// logs through the same rotating file handler instead of slog.Default.
var (
	activeLogger   *slog.Logger
	loggingCleanup func()
)

// enableDebugLogging wires logging.Setup's JSON rotating-file logger in
// as the process default when --debug is set, matching the teacher's
// own --debug flag behavior.
func enableDebugLogging(*cobra.Command, []string) error {
	if !flagDebug {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to set up debug logging: %w", err)
	}
	activeLogger = logger
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	logger.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

// disableDebugLogging flushes and closes the debug log file, if one was
// opened for this invocation.
func disableDebugLogging(*cobra.Command, []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// NewRootCmd creates the root command for the memvault CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memvault",
		Short: "Local, persistent memory store for code-assistant agents",
		Long: `memvault stores typed memory items (snippets, patterns, configs,
insights, runbooks, facts, notes) across three scopes — global, local,
committed — and serves hybrid BM25+vector search over them.

This CLI drives one scope's Memory Manager per invocation; pick the
scope with --scope (default "local") and, for non-global scopes, the
project root with --root (default: walk up from the working directory
looking for .git or .memvault.yaml).`,
		Version:            version.Short(),
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  enableDebugLogging,
		PersistentPostRunE: disableDebugLogging,
	}

	cmd.SetVersionTemplate("memvault version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagRoot, "root", "", "project root (default: auto-detected)")
	cmd.PersistentFlags().StringVar(&flagScope, "scope", "local", "scope: global, local, or committed")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging to ~/.memvault/logs/")

	cmd.AddCommand(newUpsertCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newLinkCmd())
	cmd.AddCommand(newPinCmd())
	cmd.AddCommand(newTagCmd())
	cmd.AddCommand(newFeedbackCmd())
	cmd.AddCommand(newUseCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newSnapshotCmd())
	cmd.AddCommand(newCompactCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		return fmt.Errorf("memvault: %w", err)
	}
	return nil
}
