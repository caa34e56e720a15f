package commands

import (
	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/menubot/core/cmd"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply session journal migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return corecmd.Migrate(cmd.Context(), options())
		},
	}
}
