// Package commands defines the menubot command line.
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/menubot/core/cmd"
)

var configPath string

// Execute runs the root command with signal-aware context.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree. Running without a subcommand serves the bot.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "menubot",
		Short:        "Telegram menu bot with per-user sessions",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_PATH or config.yaml)")

	root.AddCommand(serveCmd(), migrateCmd(), journalCmd(), versionCmd())
	return root
}

func options() corecmd.Options {
	return corecmd.Options{ConfigPath: configPath}
}

func runServe(cmd *cobra.Command, _ []string) error {
	return corecmd.Serve(cmd.Context(), options())
}
