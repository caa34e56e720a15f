package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/menubot/core/buildinfo"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Summary("menubot"))
		},
	}
}
