package cli

import (
	"github.com/spf13/cobra"
)

var syncCountries []string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Diff programme membership against stored state and send alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sync(cmd.Context(), syncCountries)
	},
}

func init() {
	syncCmd.Flags().StringSliceVar(&syncCountries, "country", nil, "Countries to sync (defaults to display.countries)")
}
