package cli

import (
	"github.com/spf13/cobra"
)

var warmupCmd = &cobra.Command{
	Use:   "warmup",
	Short: "Fetch every network's programme catalog and report counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Warmup(cmd.Context())
	},
}
