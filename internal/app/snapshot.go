package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Snapshot runs one aggregation cycle immediately. With DryRun the
// result is printed without touching the database or the spreadsheet.
func (a *App) Snapshot(ctx context.Context, opts SnapshotOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Days > 0 {
		a.Config.Display.DaysBack = opts.Days
	}

	svc := a.newService(store, nil)
	now := time.Now().UTC()

	if opts.DryRun {
		overview, err := svc.Overview(ctx, svc.BuildQuery(now))
		if err != nil {
			return err
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Network\tCurrency\tTotal\tConfirmed\tPending\tRows\tFiltered\tReason")
		for _, snap := range overview.Snapshots {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				snap.Network,
				snap.Currency,
				snap.Total.StringFixed(2),
				snap.Confirmed.StringFixed(2),
				snap.Pending.StringFixed(2),
				snap.Meta.RawCount,
				snap.Meta.FilteredCount,
				sanitizeInline(snap.Meta.Reason),
			)
		}
		fmt.Fprintf(writer, "TOTAL\t%s\t%s\t%s\t%s\t\t\t\n",
			overview.Currency,
			overview.Total.StringFixed(2),
			overview.Confirmed.StringFixed(2),
			overview.Pending.StringFixed(2),
		)
		writer.Flush()
		return nil
	}

	return svc.ProcessBucket(ctx, now)
}
