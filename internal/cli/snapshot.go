package cli

import (
	"github.com/spf13/cobra"

	"github.com/zaorak/affiliate-hub/internal/app"
)

var (
	snapshotDryRun bool
	snapshotDays   int
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Aggregate commissions once and persist a snapshot row per network",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Snapshot(cmd.Context(), app.SnapshotOptions{DryRun: snapshotDryRun, Days: snapshotDays})
	},
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotDryRun, "dry-run", false, "Print the aggregation without persisting anything")
	snapshotCmd.Flags().IntVar(&snapshotDays, "days", 0, "Window length in days (defaults to display.days_back)")
}
