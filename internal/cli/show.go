package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zaorak/affiliate-hub/internal/app"
)

var (
	showLimit  int
	showAlerts bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent snapshot rows or the alert audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:  showLimit,
			Alerts: showAlerts,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of entries (alert log) or days back (snapshots)")
	showCmd.Flags().BoolVar(&showAlerts, "alerts", false, "Show the alert audit log instead of snapshot rows")
}
