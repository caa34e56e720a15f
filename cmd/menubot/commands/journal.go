package commands

import (
	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/menubot/core/cmd"
)

func journalCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal <sender>",
		Short: "Print recent session lifecycle events for a sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return corecmd.History(cmd.Context(), options(), args[0], limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of events")
	return cmd
}
