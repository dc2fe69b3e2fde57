package cli

import (
	"github.com/spf13/cobra"

	"github.com/zaorak/affiliate-hub/internal/app"
)

var (
	programmesNetwork string
	programmesCountry string
	programmesFeeds   bool
)

var programmesCmd = &cobra.Command{
	Use:   "programmes",
	Short: "List one network's joined programmes for a country",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ProgrammesOptions{
			Network: programmesNetwork,
			Country: programmesCountry,
			Feeds:   programmesFeeds,
		}
		return getApp().Programmes(cmd.Context(), opts)
	},
}

func init() {
	programmesCmd.Flags().StringVar(&programmesNetwork, "network", "", "Network name (awin, addrevenue, impact, partnerize, 2performant, dognet)")
	programmesCmd.Flags().StringVar(&programmesCountry, "country", "", "ISO-2 country code")
	programmesCmd.Flags().BoolVar(&programmesFeeds, "feeds", false, "Also print resolved feed URLs")
}
