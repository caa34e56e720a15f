package commands

import (
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the health endpoint",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}
